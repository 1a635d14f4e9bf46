package session

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// HTTPHandler обрабатывает HTTP запросы для управления сессиями
type HTTPHandler struct {
	manager *Manager
}

// NewHTTPHandler создает новый HTTP обработчик
func NewHTTPHandler(manager *Manager) *HTTPHandler {
	return &HTTPHandler{manager: manager}
}

// RegisterRoutes регистрирует маршруты
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/sessions").Subrouter()

	api.HandleFunc("", h.CreateSession).Methods("POST")
	api.HandleFunc("", h.ListSessions).Methods("GET")
	api.HandleFunc("/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/{id}", h.DeleteSession).Methods("DELETE")
	api.HandleFunc("/{id}/stop", h.StopSession).Methods("POST")
	api.HandleFunc("/{id}/save", h.SaveSession).Methods("POST")
	api.HandleFunc("/{id}/metrics", h.GetMetrics).Methods("GET")
	api.HandleFunc("/{id}/status", h.GetStatus).Methods("GET")
	api.HandleFunc("/{id}/falls", h.GetFalls).Methods("GET")
	api.HandleFunc("/{id}/data", h.GetSessionData).Methods("GET")
	api.HandleFunc("/{id}/reset", h.ResetDetection).Methods("POST")
	api.HandleFunc("/{id}/reset-pattern", h.ResetPattern).Methods("POST")
}

// CreateSession godoc
// @Summary Создать сессию мониторинга
// @Description Создает новую сессию детекции падений
// @Tags sessions
// @Accept json
// @Produce json
// @Param request body CreateSessionRequest true "Параметры сессии"
// @Success 201 {object} Session
// @Failure 400 {object} map[string]string
// @Router /api/sessions [post]
func (h *HTTPHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.CreatedFrom == "" {
		req.CreatedFrom = "web"
	}

	session, err := h.manager.CreateSession(r.Context(), &req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

// ListSessions godoc
// @Summary Список сессий
// @Tags sessions
// @Produce json
// @Param limit query int false "Лимит" default(50)
// @Param offset query int false "Смещение" default(0)
// @Success 200 {array} Session
// @Router /api/sessions [get]
func (h *HTTPHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit := getQueryInt(r, "limit", 50)
	offset := getQueryInt(r, "offset", 0)

	sessions, err := h.manager.ListSessions(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if sessions == nil {
		sessions = []*Session{}
	}
	respondJSON(w, http.StatusOK, sessions)
}

// GetSession godoc
// @Summary Получить сессию
// @Tags sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} Session
// @Failure 404 {object} map[string]string
// @Router /api/sessions/{id} [get]
func (h *HTTPHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	session, err := h.manager.GetSession(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	respondJSON(w, http.StatusOK, session)
}

// StopSession godoc
// @Summary Остановить сессию
// @Tags sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/sessions/{id}/stop [post]
func (h *HTTPHandler) StopSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := h.manager.StopSession(r.Context(), sessionID); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// SaveSession godoc
// @Summary Сохранить сессию в базу данных
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "ID сессии"
// @Param request body SaveSessionRequest false "Дополнительные заметки"
// @Success 200 {object} map[string]string
// @Router /api/sessions/{id}/save [post]
func (h *HTTPHandler) SaveSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req SaveSessionRequest
	// Тело запроса опционально
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.manager.SaveSession(r.Context(), sessionID, req.Notes); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// DeleteSession godoc
// @Summary Удалить сессию
// @Tags sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} map[string]string
// @Router /api/sessions/{id} [delete]
func (h *HTTPHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := h.manager.DeleteSession(r.Context(), sessionID); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GetMetrics godoc
// @Summary Метрики детекции по сессии
// @Tags detection
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} DetectionMetrics
// @Failure 404 {object} map[string]string
// @Router /api/sessions/{id}/metrics [get]
func (h *HTTPHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	metrics, err := h.manager.GetSessionMetrics(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "metrics not found")
		return
	}

	respondJSON(w, http.StatusOK, metrics)
}

// GetStatus godoc
// @Summary Текущие флаги паттерна падения
// @Tags detection
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} detector.PatternStatus
// @Failure 404 {object} map[string]string
// @Router /api/sessions/{id}/status [get]
func (h *HTTPHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	status, err := h.manager.GetStatus(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "status not found")
		return
	}

	respondJSON(w, http.StatusOK, status)
}

// GetFalls godoc
// @Summary Зарегистрированные падения сессии
// @Tags detection
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {array} FallRecord
// @Router /api/sessions/{id}/falls [get]
func (h *HTTPHandler) GetFalls(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	falls, err := h.manager.GetFalls(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if falls == nil {
		falls = []FallRecord{}
	}
	respondJSON(w, http.StatusOK, falls)
}

// GetSessionData godoc
// @Summary Все данные сессии
// @Tags sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} SessionData
// @Failure 404 {object} map[string]string
// @Router /api/sessions/{id}/data [get]
func (h *HTTPHandler) GetSessionData(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	data, err := h.manager.GetSessionData(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session data not found")
		return
	}

	respondJSON(w, http.StatusOK, data)
}

// ResetDetection godoc
// @Summary Полный сброс детектора сессии
// @Tags detection
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/sessions/{id}/reset [post]
func (h *HTTPHandler) ResetDetection(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := h.manager.ResetDetection(r.Context(), sessionID, true); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// ResetPattern godoc
// @Summary Отмена текущего эпизода детекции
// @Tags detection
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/sessions/{id}/reset-pattern [post]
func (h *HTTPHandler) ResetPattern(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := h.manager.ResetDetection(r.Context(), sessionID, false); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "pattern_reset"})
}

// respondJSON отправляет JSON ответ
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[ERROR] Failed to encode response: %v", err)
	}
}

// respondError отправляет ошибку в формате JSON
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// getQueryInt читает целочисленный query-параметр со значением по умолчанию
func getQueryInt(r *http.Request, key string, defaultValue int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return value
}
