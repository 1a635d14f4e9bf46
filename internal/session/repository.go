package session

import (
	"context"

	"github.com/AbdulRauf-Sidd/Gyroscope-fall-detection/internal/detector"
)

// Repository определяет интерфейс для работы с хранилищем сессий (Domain Layer)
type Repository interface {
	// Управление сессиями
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	UpdateSession(ctx context.Context, session *Session) error
	ListSessions(ctx context.Context, limit, offset int) ([]*Session, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Работа с метриками
	SaveMetrics(ctx context.Context, metrics *DetectionMetrics) error
	GetMetrics(ctx context.Context, sessionID string) (*DetectionMetrics, error)

	// Работа с падениями
	SaveFalls(ctx context.Context, falls []FallRecord) error
	GetFalls(ctx context.Context, sessionID string) ([]FallRecord, error)

	// Сохранение полных данных сессии
	SaveSessionData(ctx context.Context, data *SessionData) error
}

// CacheStore определяет интерфейс для работы с кэшем (Redis)
type CacheStore interface {
	// Управление сессиями в кэше
	SetSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Метрики (перезаписываются целиком)
	SetMetrics(ctx context.Context, metrics *DetectionMetrics) error
	GetMetrics(ctx context.Context, sessionID string) (*DetectionMetrics, error)

	// Снимок флагов паттерна (перезаписывается целиком)
	SetStatus(ctx context.Context, sessionID string, status detector.PatternStatus) error
	GetStatus(ctx context.Context, sessionID string) (*detector.PatternStatus, error)

	// Падения (append-only)
	AppendFalls(ctx context.Context, sessionID string, falls []FallRecord) error
	GetFalls(ctx context.Context, sessionID string) ([]FallRecord, error)
	FallExists(ctx context.Context, sessionID string, tsMS int64) (bool, error)

	// Получение всех данных сессии
	GetSessionData(ctx context.Context, sessionID string) (*SessionData, error)

	// Продление времени жизни всех ключей сессии
	SetSessionTTL(ctx context.Context, sessionID string) error
}
