package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AbdulRauf-Sidd/Gyroscope-fall-detection/internal/detector"
	"github.com/AbdulRauf-Sidd/Gyroscope-fall-detection/internal/ingest"
)

// metricsFlushEvery - период обновления метрик в кэше по количеству сэмплов,
// чтобы не ходить в Redis на каждом событии сенсора
const metricsFlushEvery = 200

// Manager управляет сессиями мониторинга падений (Application Layer).
// Каждая активная сессия владеет собственным экземпляром детектора.
type Manager struct {
	cache      CacheStore
	repository Repository
	detCfg     detector.Config

	mu             sync.RWMutex
	activeSessions map[string]*activeSession // Кэш активных сессий в памяти
	deviceIndex    map[string]string         // device_id -> session_id

	notifyChan chan Notification
}

// activeSession - активная сессия с живым детектором
type activeSession struct {
	mu      sync.Mutex
	session *Session
	det     *detector.Detector

	accelSamples    int64
	rotationSamples int64
	sinceFlush      int
}

// NewManager создает новый менеджер сессий
func NewManager(detCfg detector.Config, cache CacheStore, repository Repository) *Manager {
	return &Manager{
		cache:          cache,
		repository:     repository,
		detCfg:         detCfg,
		activeSessions: make(map[string]*activeSession),
		deviceIndex:    make(map[string]string),
		notifyChan:     make(chan Notification, 256),
	}
}

// Notifications возвращает канал уведомлений для WebSocket-хаба
func (m *Manager) Notifications() <-chan Notification {
	return m.notifyChan
}

// notify отправляет уведомление без блокировки горячего пути
func (m *Manager) notify(n Notification) {
	select {
	case m.notifyChan <- n:
	default:
		log.Printf("[WARN] Notification channel full, dropping %s for session %s", n.Type, n.SessionID)
	}
}

// CreateSession создает новую сессию
func (m *Manager) CreateSession(ctx context.Context, req *CreateSessionRequest) (*Session, error) {
	sessionID := uuid.New().String()

	session := &Session{
		ID:        sessionID,
		Status:    SessionStatusActive,
		StartedAt: time.Now(),
		Metadata: Metadata{
			DeviceID:    req.DeviceID,
			PatientID:   req.PatientID,
			WardID:      req.WardID,
			Notes:       req.Notes,
			CustomData:  req.CustomData,
			CreatedFrom: req.CreatedFrom,
		},
	}

	// Сохраняем в Redis
	if err := m.cache.SetSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session to cache: %w", err)
	}

	m.addActive(session)

	log.Printf("[SESSION] Created new session: %s (device: %s)", sessionID, req.DeviceID)
	return session, nil
}

// addActive регистрирует сессию в памяти вместе с новым детектором
func (m *Manager) addActive(session *Session) *activeSession {
	as := &activeSession{
		session: session,
		det:     detector.New(m.detCfg),
	}

	m.mu.Lock()
	m.activeSessions[session.ID] = as
	if session.Metadata.DeviceID != "" {
		m.deviceIndex[session.Metadata.DeviceID] = session.ID
	}
	m.mu.Unlock()

	return as
}

// HandleMotionSample реализует ingest.SampleHandler: принимает валидный
// сэмпл устройства и проводит его через детектор сессии
func (m *Manager) HandleMotionSample(ctx context.Context, deviceID string, channel ingest.Channel, sample detector.Sample) error {
	as, err := m.getOrCreateActive(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("failed to get or create session: %w", err)
	}
	if as == nil {
		// Сессия устройства существует, но не активна - данные игнорируем
		return nil
	}

	as.mu.Lock()
	sessionID := as.session.ID

	before := as.det.Status()

	var fall *detector.FallEvent
	switch channel {
	case ingest.ChannelAcceleration:
		fall = as.det.IngestAcceleration(sample)
		as.accelSamples++
	case ingest.ChannelRotation:
		fall = as.det.IngestRotation(sample)
		as.rotationSamples++
	default:
		as.mu.Unlock()
		return fmt.Errorf("unknown channel: %s", channel)
	}

	after := as.det.Status()
	counters := as.det.Counters()
	as.session.TotalSamples++
	as.sinceFlush++
	flushDue := as.sinceFlush >= metricsFlushEvery
	if flushDue {
		as.sinceFlush = 0
	}
	accelN, rotN := as.accelSamples, as.rotationSamples
	sessionCopy := *as.session
	as.mu.Unlock()

	if after != before {
		if err := m.cache.SetStatus(ctx, sessionID, after); err != nil {
			log.Printf("[WARN] Failed to cache pattern status: %v", err)
		}
		m.notify(Notification{
			Type:      NotificationStatus,
			SessionID: sessionID,
			Status:    &after,
			Counters:  &counters,
		})
	}

	if fall != nil {
		if err := m.recordFall(ctx, sessionID, fall, counters, accelN, rotN); err != nil {
			log.Printf("[WARN] Failed to record fall: %v", err)
		}
	} else if flushDue {
		metrics := MetricsFromCounters(sessionID, counters, accelN, rotN)
		if err := m.cache.SetMetrics(ctx, metrics); err != nil {
			log.Printf("[WARN] Failed to update metrics: %v", err)
		}
		if err := m.cache.SetSession(ctx, &sessionCopy); err != nil {
			log.Printf("[WARN] Failed to update session: %v", err)
		}
	}

	return nil
}

// recordFall персистит подтвержденное падение и рассылает уведомление
func (m *Manager) recordFall(ctx context.Context, sessionID string, fall *detector.FallEvent, counters detector.Counters, accelN, rotN int64) error {
	record := FallRecord{
		SessionID:  sessionID,
		TsMS:       fall.TsMS,
		ImpactTsMS: fall.ImpactTsMS,
		FallNumber: fall.FallCount,
		CreatedAt:  time.Now(),
	}

	exists, err := m.cache.FallExists(ctx, sessionID, fall.TsMS)
	if err == nil && !exists {
		if err := m.cache.AppendFalls(ctx, sessionID, []FallRecord{record}); err != nil {
			return fmt.Errorf("failed to append fall record: %w", err)
		}
	}

	metrics := MetricsFromCounters(sessionID, counters, accelN, rotN)
	if err := m.cache.SetMetrics(ctx, metrics); err != nil {
		log.Printf("[WARN] Failed to update metrics after fall: %v", err)
	}

	m.notify(Notification{
		Type:      NotificationFall,
		SessionID: sessionID,
		Fall:      &record,
		Counters:  &counters,
	})

	log.Printf("[SESSION] Fall confirmed: session=%s ts_ms=%d fall_count=%d",
		sessionID, fall.TsMS, fall.FallCount)
	return nil
}

// GetSession получает сессию по ID
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	// Сначала проверяем в памяти
	m.mu.RLock()
	if as, ok := m.activeSessions[sessionID]; ok {
		m.mu.RUnlock()
		as.mu.Lock()
		sessionCopy := *as.session
		as.mu.Unlock()
		return &sessionCopy, nil
	}
	m.mu.RUnlock()

	// Проверяем в Redis
	session, err := m.cache.GetSession(ctx, sessionID)
	if err == nil {
		return session, nil
	}

	// Проверяем в PostgreSQL
	return m.repository.GetSession(ctx, sessionID)
}

// StopSession останавливает сессию
func (m *Manager) StopSession(ctx context.Context, sessionID string) error {
	session, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("session not found: %w", err)
	}

	if session.Status != SessionStatusActive {
		return fmt.Errorf("session is not active: %s", session.Status)
	}

	// Финальные метрики перед выгрузкой детектора
	m.mu.RLock()
	as := m.activeSessions[sessionID]
	m.mu.RUnlock()

	if as != nil {
		as.mu.Lock()
		counters := as.det.Counters()
		metrics := MetricsFromCounters(sessionID, counters, as.accelSamples, as.rotationSamples)
		status := as.det.Status()
		as.mu.Unlock()

		if err := m.cache.SetMetrics(ctx, metrics); err != nil {
			log.Printf("[WARN] Failed to persist final metrics: %v", err)
		}
		if err := m.cache.SetStatus(ctx, sessionID, status); err != nil {
			log.Printf("[WARN] Failed to persist final status: %v", err)
		}
	}

	now := time.Now()
	session.Status = SessionStatusStopped
	session.StoppedAt = &now
	session.TotalDurationMs = now.Sub(session.StartedAt).Milliseconds()

	// Обновляем в Redis
	if err := m.cache.SetSession(ctx, session); err != nil {
		return fmt.Errorf("failed to update session in cache: %w", err)
	}

	m.removeActive(session)

	log.Printf("[SESSION] Stopped session: %s, duration: %dms", sessionID, session.TotalDurationMs)
	return nil
}

// removeActive выгружает сессию из памяти
func (m *Manager) removeActive(session *Session) {
	m.mu.Lock()
	delete(m.activeSessions, session.ID)
	if session.Metadata.DeviceID != "" {
		delete(m.deviceIndex, session.Metadata.DeviceID)
	}
	m.mu.Unlock()
}

// SaveSession сохраняет сессию в PostgreSQL
func (m *Manager) SaveSession(ctx context.Context, sessionID string, notes string) error {
	// Получаем все данные из Redis
	sessionData, err := m.cache.GetSessionData(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get session data from cache: %w", err)
	}

	// Обновляем метаданные
	if notes != "" {
		sessionData.Session.Metadata.Notes = notes
	}

	now := time.Now()
	sessionData.Session.Status = SessionStatusSaved
	sessionData.Session.SavedAt = &now

	// Сохраняем в PostgreSQL
	if err := m.repository.SaveSessionData(ctx, sessionData); err != nil {
		return fmt.Errorf("failed to save session to database: %w", err)
	}

	// Обновляем статус в Redis и продлеваем жизнь ключей
	if err := m.cache.SetSession(ctx, sessionData.Session); err != nil {
		log.Printf("[WARN] Failed to update session status in cache: %v", err)
	}
	if err := m.cache.SetSessionTTL(ctx, sessionID); err != nil {
		log.Printf("[WARN] Failed to refresh session TTL: %v", err)
	}

	log.Printf("[SESSION] Saved session to database: %s", sessionID)
	return nil
}

// ListSessions возвращает список сессий
func (m *Manager) ListSessions(ctx context.Context, limit, offset int) ([]*Session, error) {
	return m.repository.ListSessions(ctx, limit, offset)
}

// DeleteSession удаляет сессию
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	// Удаляем из памяти
	m.mu.Lock()
	if as, ok := m.activeSessions[sessionID]; ok {
		delete(m.activeSessions, sessionID)
		if as.session.Metadata.DeviceID != "" {
			delete(m.deviceIndex, as.session.Metadata.DeviceID)
		}
	}
	m.mu.Unlock()

	// Удаляем из Redis
	if err := m.cache.DeleteSession(ctx, sessionID); err != nil {
		log.Printf("[WARN] Failed to delete session from cache: %v", err)
	}

	// Удаляем из PostgreSQL
	if err := m.repository.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session from database: %w", err)
	}

	log.Printf("[SESSION] Deleted session: %s", sessionID)
	return nil
}

// ResetDetection сбрасывает детектор сессии. При total=true выполняется
// полный сброс (эпизод + счетчики + кулдаун), иначе отменяется только
// текущий эпизод.
func (m *Manager) ResetDetection(ctx context.Context, sessionID string, total bool) error {
	m.mu.RLock()
	as, ok := m.activeSessions[sessionID]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("session is not active: %s", sessionID)
	}

	as.mu.Lock()
	if total {
		as.det.Reset()
		as.accelSamples = 0
		as.rotationSamples = 0
	} else {
		as.det.ResetPattern()
	}
	status := as.det.Status()
	counters := as.det.Counters()
	accelN, rotN := as.accelSamples, as.rotationSamples
	as.mu.Unlock()

	if err := m.cache.SetStatus(ctx, sessionID, status); err != nil {
		log.Printf("[WARN] Failed to cache status after reset: %v", err)
	}
	metrics := MetricsFromCounters(sessionID, counters, accelN, rotN)
	if err := m.cache.SetMetrics(ctx, metrics); err != nil {
		log.Printf("[WARN] Failed to cache metrics after reset: %v", err)
	}

	m.notify(Notification{
		Type:      NotificationStatus,
		SessionID: sessionID,
		Status:    &status,
		Counters:  &counters,
	})

	log.Printf("[SESSION] Reset detection: session=%s total=%v", sessionID, total)
	return nil
}

// GetStatus возвращает снимок флагов паттерна сессии
func (m *Manager) GetStatus(ctx context.Context, sessionID string) (*detector.PatternStatus, error) {
	m.mu.RLock()
	if as, ok := m.activeSessions[sessionID]; ok {
		m.mu.RUnlock()
		status := as.det.Status()
		return &status, nil
	}
	m.mu.RUnlock()

	return m.cache.GetStatus(ctx, sessionID)
}

// GetSessionMetrics возвращает текущие метрики сессии
func (m *Manager) GetSessionMetrics(ctx context.Context, sessionID string) (*DetectionMetrics, error) {
	m.mu.RLock()
	if as, ok := m.activeSessions[sessionID]; ok {
		m.mu.RUnlock()
		as.mu.Lock()
		counters := as.det.Counters()
		metrics := MetricsFromCounters(sessionID, counters, as.accelSamples, as.rotationSamples)
		as.mu.Unlock()
		return metrics, nil
	}
	m.mu.RUnlock()

	return m.cache.GetMetrics(ctx, sessionID)
}

// GetFalls возвращает падения сессии
func (m *Manager) GetFalls(ctx context.Context, sessionID string) ([]FallRecord, error) {
	falls, err := m.cache.GetFalls(ctx, sessionID)
	if err == nil && len(falls) > 0 {
		return falls, nil
	}
	return m.repository.GetFalls(ctx, sessionID)
}

// GetSessionData возвращает все данные сессии
func (m *Manager) GetSessionData(ctx context.Context, sessionID string) (*SessionData, error) {
	return m.cache.GetSessionData(ctx, sessionID)
}

// IsSessionActive проверяет, активна ли сессия
func (m *Manager) IsSessionActive(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.activeSessions[sessionID]
	return exists
}

// getOrCreateActive получает активную сессию устройства или создает новую.
// Возвращает (nil, nil) если сессия устройства существует, но не активна.
func (m *Manager) getOrCreateActive(ctx context.Context, deviceID string) (*activeSession, error) {
	// Сначала проверяем в памяти (быстро)
	m.mu.RLock()
	sessionID, indexed := m.deviceIndex[deviceID]
	if !indexed {
		sessionID = deviceID
	}
	if as, exists := m.activeSessions[sessionID]; exists {
		m.mu.RUnlock()
		return as, nil
	}
	m.mu.RUnlock()

	// Проверяем в кэше (Redis)
	session, err := m.cache.GetSession(ctx, sessionID)
	if err != nil {
		// Проверяем в PostgreSQL (возможно, остановленная сессия)
		session, err = m.repository.GetSession(ctx, sessionID)
	}

	if err == nil {
		if session.Status != SessionStatusActive {
			log.Printf("[WARN] Received samples for non-active session: %s (status: %s)", sessionID, session.Status)
			return nil, nil
		}
		if cacheErr := m.cache.SetSession(ctx, session); cacheErr != nil {
			log.Printf("[WARN] Failed to cache session: %v", cacheErr)
		}
		log.Printf("[SESSION] Loaded existing session: %s", sessionID)
		return m.addActive(session), nil
	}

	// Сессия не найдена нигде - создаем новую от имени устройства
	log.Printf("[SESSION] Auto-creating new session from incoming data: device=%s", deviceID)

	session = &Session{
		ID:        deviceID,
		Status:    SessionStatusActive,
		StartedAt: time.Now(),
		Metadata: Metadata{
			DeviceID:    deviceID,
			CreatedFrom: "auto-created",
			Notes:       "Automatically created from device data",
		},
	}

	// Сохраняем в Redis
	if err := m.cache.SetSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save auto-created session to cache: %w", err)
	}

	return m.addActive(session), nil
}
