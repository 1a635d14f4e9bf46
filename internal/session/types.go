package session

import (
	"time"

	"github.com/AbdulRauf-Sidd/Gyroscope-fall-detection/internal/detector"
)

// SessionStatus представляет статус сессии
type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "ACTIVE"
	SessionStatusStopped SessionStatus = "STOPPED"
	SessionStatusSaved   SessionStatus = "SAVED"
)

// Session представляет сессию мониторинга падений одного устройства
type Session struct {
	ID              string        `json:"id"`
	Status          SessionStatus `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	StoppedAt       *time.Time    `json:"stopped_at,omitempty"`
	SavedAt         *time.Time    `json:"saved_at,omitempty"`
	TotalDurationMs int64         `json:"total_duration_ms"`
	TotalSamples    int64         `json:"total_samples"`
	Metadata        Metadata      `json:"metadata,omitempty"`
}

// Metadata содержит дополнительную информацию о сессии
type Metadata struct {
	DeviceID    string                 `json:"device_id,omitempty"`
	PatientID   string                 `json:"patient_id,omitempty"`
	WardID      string                 `json:"ward_id,omitempty"`
	Notes       string                 `json:"notes,omitempty"`
	CustomData  map[string]interface{} `json:"custom_data,omitempty"`
	CreatedFrom string                 `json:"created_from,omitempty"` // "web", "mobile", "emulator"
}

// DetectionMetrics содержит агрегированные метрики детекции по сессии
type DetectionMetrics struct {
	SessionID       string    `json:"session_id"`
	FallCount       int       `json:"fall_count"`
	LastFallTsMS    *int64    `json:"last_fall_ts_ms,omitempty"`
	Impacts         int64     `json:"impacts"`
	Timeouts        int64     `json:"timeouts"`
	Suppressed      int64     `json:"suppressed"`
	AccelSamples    int64     `json:"accel_samples"`
	RotationSamples int64     `json:"rotation_samples"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// FallRecord представляет одно подтвержденное падение в сессии
type FallRecord struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	TsMS       int64     `json:"ts_ms"`
	ImpactTsMS int64     `json:"impact_ts_ms"`
	FallNumber int       `json:"fall_number"`
	CreatedAt  time.Time `json:"created_at"`
}

// SessionData представляет все данные сессии для хранения
type SessionData struct {
	Session *Session                `json:"session"`
	Metrics *DetectionMetrics       `json:"metrics"`
	Falls   []FallRecord            `json:"falls"`
	Status  *detector.PatternStatus `json:"status,omitempty"`
}

// CreateSessionRequest представляет запрос на создание сессии
type CreateSessionRequest struct {
	DeviceID    string                 `json:"device_id,omitempty"`
	PatientID   string                 `json:"patient_id,omitempty"`
	WardID      string                 `json:"ward_id,omitempty"`
	Notes       string                 `json:"notes,omitempty"`
	CustomData  map[string]interface{} `json:"custom_data,omitempty"`
	CreatedFrom string                 `json:"created_from,omitempty"`
}

// SaveSessionRequest представляет запрос на сохранение сессии
type SaveSessionRequest struct {
	Notes string `json:"notes,omitempty"`
}

// NotificationType - тип уведомления для фронтенда
type NotificationType string

const (
	NotificationFall   NotificationType = "fall"
	NotificationStatus NotificationType = "status"
)

// Notification - уведомление, рассылаемое WebSocket-хабу
type Notification struct {
	Type      NotificationType        `json:"type"`
	SessionID string                  `json:"session_id"`
	Fall      *FallRecord             `json:"fall,omitempty"`
	Status    *detector.PatternStatus `json:"status,omitempty"`
	Counters  *detector.Counters      `json:"counters,omitempty"`
}

// MetricsFromCounters преобразует счетчики детектора в метрики сессии
func MetricsFromCounters(sessionID string, c detector.Counters, accelSamples, rotationSamples int64) *DetectionMetrics {
	m := &DetectionMetrics{
		SessionID:       sessionID,
		FallCount:       c.FallCount,
		Impacts:         c.Impacts,
		Timeouts:        c.Timeouts,
		Suppressed:      c.Suppressed,
		AccelSamples:    accelSamples,
		RotationSamples: rotationSamples,
		UpdatedAt:       time.Now(),
	}
	if c.HasLastFall {
		ts := c.LastFallTsMS
		m.LastFallTsMS = &ts
	}
	return m
}
