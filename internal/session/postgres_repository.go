package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRepository реализует Repository на основе PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepositoryFromDSN создает репозиторий из строки подключения
func NewPostgresRepositoryFromDSN(dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &PostgresRepository{db: db}
	if err := repo.createTables(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[INFO] Connected to PostgreSQL")
	return repo, nil
}

// Close закрывает соединение с базой данных
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// createTables создает таблицы, если они не существуют
func (r *PostgresRepository) createTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id VARCHAR(255) PRIMARY KEY,
			status VARCHAR(50) NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			stopped_at TIMESTAMPTZ,
			saved_at TIMESTAMPTZ,
			total_duration_ms BIGINT DEFAULT 0,
			total_samples BIGINT DEFAULT 0,
			metadata JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS session_metrics (
			session_id VARCHAR(255) PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
			fall_count INTEGER NOT NULL DEFAULT 0,
			last_fall_ts_ms BIGINT,
			impacts BIGINT NOT NULL DEFAULT 0,
			timeouts BIGINT NOT NULL DEFAULT 0,
			suppressed BIGINT NOT NULL DEFAULT 0,
			accel_samples BIGINT NOT NULL DEFAULT 0,
			rotation_samples BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fall_events (
			id BIGSERIAL PRIMARY KEY,
			session_id VARCHAR(255) NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			ts_ms BIGINT NOT NULL,
			impact_ts_ms BIGINT NOT NULL,
			fall_number INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (session_id, ts_ms)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fall_events_session ON fall_events(session_id)`,
	}

	for _, query := range queries {
		if _, err := r.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// CreateSession создает новую сессию в базе данных
func (r *PostgresRepository) CreateSession(ctx context.Context, session *Session) error {
	metadata, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO sessions (id, status, started_at, stopped_at, saved_at, total_duration_ms, total_samples, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			stopped_at = EXCLUDED.stopped_at,
			saved_at = EXCLUDED.saved_at,
			total_duration_ms = EXCLUDED.total_duration_ms,
			total_samples = EXCLUDED.total_samples,
			metadata = EXCLUDED.metadata`

	_, err = r.db.ExecContext(ctx, query,
		session.ID, session.Status, session.StartedAt, session.StoppedAt,
		session.SavedAt, session.TotalDurationMs, session.TotalSamples, metadata)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

// GetSession получает сессию по ID
func (r *PostgresRepository) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	query := `
		SELECT id, status, started_at, stopped_at, saved_at, total_duration_ms, total_samples, metadata
		FROM sessions WHERE id = $1`

	var session Session
	var metadata []byte

	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID, &session.Status, &session.StartedAt, &session.StoppedAt,
		&session.SavedAt, &session.TotalDurationMs, &session.TotalSamples, &metadata)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &session.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &session, nil
}

// UpdateSession обновляет сессию
func (r *PostgresRepository) UpdateSession(ctx context.Context, session *Session) error {
	return r.CreateSession(ctx, session)
}

// ListSessions возвращает список сессий с пагинацией
func (r *PostgresRepository) ListSessions(ctx context.Context, limit, offset int) ([]*Session, error) {
	query := `
		SELECT id, status, started_at, stopped_at, saved_at, total_duration_ms, total_samples, metadata
		FROM sessions ORDER BY started_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var session Session
		var metadata []byte

		if err := rows.Scan(&session.ID, &session.Status, &session.StartedAt, &session.StoppedAt,
			&session.SavedAt, &session.TotalDurationMs, &session.TotalSamples, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}

		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &session.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		sessions = append(sessions, &session)
	}

	return sessions, rows.Err()
}

// DeleteSession удаляет сессию и все связанные данные (каскадно)
func (r *PostgresRepository) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// SaveMetrics сохраняет метрики детекции (upsert)
func (r *PostgresRepository) SaveMetrics(ctx context.Context, metrics *DetectionMetrics) error {
	query := `
		INSERT INTO session_metrics (session_id, fall_count, last_fall_ts_ms, impacts, timeouts, suppressed, accel_samples, rotation_samples, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO UPDATE SET
			fall_count = EXCLUDED.fall_count,
			last_fall_ts_ms = EXCLUDED.last_fall_ts_ms,
			impacts = EXCLUDED.impacts,
			timeouts = EXCLUDED.timeouts,
			suppressed = EXCLUDED.suppressed,
			accel_samples = EXCLUDED.accel_samples,
			rotation_samples = EXCLUDED.rotation_samples,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		metrics.SessionID, metrics.FallCount, metrics.LastFallTsMS,
		metrics.Impacts, metrics.Timeouts, metrics.Suppressed,
		metrics.AccelSamples, metrics.RotationSamples, metrics.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert metrics: %w", err)
	}

	return nil
}

// GetMetrics получает метрики детекции по сессии
func (r *PostgresRepository) GetMetrics(ctx context.Context, sessionID string) (*DetectionMetrics, error) {
	query := `
		SELECT session_id, fall_count, last_fall_ts_ms, impacts, timeouts, suppressed, accel_samples, rotation_samples, updated_at
		FROM session_metrics WHERE session_id = $1`

	var metrics DetectionMetrics
	var lastFall sql.NullInt64

	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&metrics.SessionID, &metrics.FallCount, &lastFall,
		&metrics.Impacts, &metrics.Timeouts, &metrics.Suppressed,
		&metrics.AccelSamples, &metrics.RotationSamples, &metrics.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("metrics not found for session: %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}

	if lastFall.Valid {
		metrics.LastFallTsMS = &lastFall.Int64
	}

	return &metrics, nil
}

// SaveFalls сохраняет записи о падениях батчем в транзакции
func (r *PostgresRepository) SaveFalls(ctx context.Context, falls []FallRecord) error {
	if len(falls) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.saveFallsTx(ctx, tx, falls); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *PostgresRepository) saveFallsTx(ctx context.Context, tx *sql.Tx, falls []FallRecord) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fall_events (session_id, ts_ms, impact_ts_ms, fall_number, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, ts_ms) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare fall insert: %w", err)
	}
	defer stmt.Close()

	for _, fall := range falls {
		if _, err := stmt.ExecContext(ctx, fall.SessionID, fall.TsMS, fall.ImpactTsMS, fall.FallNumber, fall.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert fall record: %w", err)
		}
	}

	return nil
}

// GetFalls получает все записи о падениях сессии
func (r *PostgresRepository) GetFalls(ctx context.Context, sessionID string) ([]FallRecord, error) {
	query := `
		SELECT id, session_id, ts_ms, impact_ts_ms, fall_number, created_at
		FROM fall_events WHERE session_id = $1 ORDER BY ts_ms ASC`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query falls: %w", err)
	}
	defer rows.Close()

	var falls []FallRecord
	for rows.Next() {
		var fall FallRecord
		if err := rows.Scan(&fall.ID, &fall.SessionID, &fall.TsMS, &fall.ImpactTsMS, &fall.FallNumber, &fall.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fall row: %w", err)
		}
		falls = append(falls, fall)
	}

	return falls, rows.Err()
}

// SaveSessionData сохраняет все данные сессии в одной транзакции
func (r *PostgresRepository) SaveSessionData(ctx context.Context, data *SessionData) error {
	if data.Session == nil {
		return fmt.Errorf("session data has no session")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	metadata, err := json.Marshal(data.Session.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO sessions (id, status, started_at, stopped_at, saved_at, total_duration_ms, total_samples, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			stopped_at = EXCLUDED.stopped_at,
			saved_at = EXCLUDED.saved_at,
			total_duration_ms = EXCLUDED.total_duration_ms,
			total_samples = EXCLUDED.total_samples,
			metadata = EXCLUDED.metadata`

	if _, err := tx.ExecContext(ctx, query,
		data.Session.ID, data.Session.Status, data.Session.StartedAt, data.Session.StoppedAt,
		data.Session.SavedAt, data.Session.TotalDurationMs, data.Session.TotalSamples, metadata); err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	if data.Metrics != nil {
		metricsQuery := `
			INSERT INTO session_metrics (session_id, fall_count, last_fall_ts_ms, impacts, timeouts, suppressed, accel_samples, rotation_samples, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (session_id) DO UPDATE SET
				fall_count = EXCLUDED.fall_count,
				last_fall_ts_ms = EXCLUDED.last_fall_ts_ms,
				impacts = EXCLUDED.impacts,
				timeouts = EXCLUDED.timeouts,
				suppressed = EXCLUDED.suppressed,
				accel_samples = EXCLUDED.accel_samples,
				rotation_samples = EXCLUDED.rotation_samples,
				updated_at = EXCLUDED.updated_at`

		if _, err := tx.ExecContext(ctx, metricsQuery,
			data.Metrics.SessionID, data.Metrics.FallCount, data.Metrics.LastFallTsMS,
			data.Metrics.Impacts, data.Metrics.Timeouts, data.Metrics.Suppressed,
			data.Metrics.AccelSamples, data.Metrics.RotationSamples, data.Metrics.UpdatedAt); err != nil {
			return fmt.Errorf("failed to upsert metrics: %w", err)
		}
	}

	if len(data.Falls) > 0 {
		if err := r.saveFallsTx(ctx, tx, data.Falls); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session data: %w", err)
	}

	log.Printf("[INFO] Saved session data: %s (falls: %d)", data.Session.ID, len(data.Falls))
	return nil
}
