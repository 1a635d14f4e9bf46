package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AbdulRauf-Sidd/Gyroscope-fall-detection/internal/detector"
)

// RedisStore реализует CacheStore на основе Redis
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore создает новое хранилище Redis
func NewRedisStore(client *redis.Client, ttlSeconds int) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
	}
}

// Ключи Redis для данных сессии
func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s:metadata", sessionID)
}

func metricsKey(sessionID string) string {
	return fmt.Sprintf("session:%s:metrics:current", sessionID)
}

func statusKey(sessionID string) string {
	return fmt.Sprintf("session:%s:status:current", sessionID)
}

func fallsKey(sessionID string) string {
	return fmt.Sprintf("session:%s:falls", sessionID)
}

// SetSession сохраняет сессию в Redis
func (r *RedisStore) SetSession(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, sessionKey(session.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session in redis: %w", err)
	}

	return nil
}

// GetSession получает сессию из Redis
func (r *RedisStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// DeleteSession удаляет все данные сессии из Redis
func (r *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	pattern := fmt.Sprintf("session:%s:*", sessionID)

	var cursor uint64
	for {
		keys, nextCursor, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan session keys: %w", err)
		}

		if len(keys) > 0 {
			pipe := r.client.Pipeline()
			for _, key := range keys {
				pipe.Del(ctx, key)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("failed to delete session keys: %w", err)
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return nil
}

// SetMetrics сохраняет метрики детекции как hash
func (r *RedisStore) SetMetrics(ctx context.Context, metrics *DetectionMetrics) error {
	fields := map[string]interface{}{
		"session_id":       metrics.SessionID,
		"fall_count":       metrics.FallCount,
		"impacts":          metrics.Impacts,
		"timeouts":         metrics.Timeouts,
		"suppressed":       metrics.Suppressed,
		"accel_samples":    metrics.AccelSamples,
		"rotation_samples": metrics.RotationSamples,
		"updated_at":       metrics.UpdatedAt.Format(time.RFC3339Nano),
	}
	if metrics.LastFallTsMS != nil {
		fields["last_fall_ts_ms"] = *metrics.LastFallTsMS
	}

	key := metricsKey(metrics.SessionID)
	if err := r.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("failed to set metrics in redis: %w", err)
	}
	r.client.Expire(ctx, key, r.ttl)

	return nil
}

// GetMetrics получает метрики детекции из Redis
func (r *RedisStore) GetMetrics(ctx context.Context, sessionID string) (*DetectionMetrics, error) {
	fields, err := r.client.HGetAll(ctx, metricsKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics from redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("metrics not found for session: %s", sessionID)
	}

	metrics := &DetectionMetrics{SessionID: sessionID}
	metrics.FallCount, _ = strconv.Atoi(fields["fall_count"])
	metrics.Impacts, _ = strconv.ParseInt(fields["impacts"], 10, 64)
	metrics.Timeouts, _ = strconv.ParseInt(fields["timeouts"], 10, 64)
	metrics.Suppressed, _ = strconv.ParseInt(fields["suppressed"], 10, 64)
	metrics.AccelSamples, _ = strconv.ParseInt(fields["accel_samples"], 10, 64)
	metrics.RotationSamples, _ = strconv.ParseInt(fields["rotation_samples"], 10, 64)

	if raw, ok := fields["last_fall_ts_ms"]; ok {
		if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
			metrics.LastFallTsMS = &ts
		}
	}
	if raw, ok := fields["updated_at"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			metrics.UpdatedAt = t
		}
	}

	return metrics, nil
}

// SetStatus сохраняет снимок флагов паттерна
func (r *RedisStore) SetStatus(ctx context.Context, sessionID string, status detector.PatternStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	key := statusKey(sessionID)
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set status in redis: %w", err)
	}

	return nil
}

// GetStatus получает снимок флагов паттерна
func (r *RedisStore) GetStatus(ctx context.Context, sessionID string) (*detector.PatternStatus, error) {
	data, err := r.client.Get(ctx, statusKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("status not found for session: %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}

	var status detector.PatternStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}

	return &status, nil
}

// AppendFalls добавляет записи о падениях в список
func (r *RedisStore) AppendFalls(ctx context.Context, sessionID string, falls []FallRecord) error {
	if len(falls) == 0 {
		return nil
	}

	key := fallsKey(sessionID)
	values := make([]interface{}, 0, len(falls))
	for _, fall := range falls {
		data, err := json.Marshal(fall)
		if err != nil {
			return fmt.Errorf("failed to marshal fall record: %w", err)
		}
		values = append(values, data)
	}

	if err := r.client.RPush(ctx, key, values...).Err(); err != nil {
		return fmt.Errorf("failed to append falls to redis: %w", err)
	}
	r.client.Expire(ctx, key, r.ttl)

	return nil
}

// GetFalls получает все записи о падениях сессии
func (r *RedisStore) GetFalls(ctx context.Context, sessionID string) ([]FallRecord, error) {
	items, err := r.client.LRange(ctx, fallsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get falls from redis: %w", err)
	}

	falls := make([]FallRecord, 0, len(items))
	for _, item := range items {
		var fall FallRecord
		if err := json.Unmarshal([]byte(item), &fall); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fall record: %w", err)
		}
		falls = append(falls, fall)
	}

	return falls, nil
}

// FallExists проверяет, записано ли падение с данной временной меткой
func (r *RedisStore) FallExists(ctx context.Context, sessionID string, tsMS int64) (bool, error) {
	falls, err := r.GetFalls(ctx, sessionID)
	if err != nil {
		return false, err
	}

	for _, fall := range falls {
		if fall.TsMS == tsMS {
			return true, nil
		}
	}

	return false, nil
}

// GetSessionData собирает все данные сессии из Redis
func (r *RedisStore) GetSessionData(ctx context.Context, sessionID string) (*SessionData, error) {
	session, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	data := &SessionData{Session: session}

	if metrics, err := r.GetMetrics(ctx, sessionID); err == nil {
		data.Metrics = metrics
	}
	if status, err := r.GetStatus(ctx, sessionID); err == nil {
		data.Status = status
	}
	if falls, err := r.GetFalls(ctx, sessionID); err == nil {
		data.Falls = falls
	}

	return data, nil
}

// SetSessionTTL обновляет TTL для всех ключей сессии
func (r *RedisStore) SetSessionTTL(ctx context.Context, sessionID string) error {
	pattern := fmt.Sprintf("session:%s:*", sessionID)
	expiration := r.ttl

	var cursor uint64
	for {
		keys, nextCursor, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan session keys: %w", err)
		}

		if len(keys) > 0 {
			pipe := r.client.Pipeline()
			for _, key := range keys {
				pipe.Expire(ctx, key, expiration)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("failed to set ttl on session keys: %w", err)
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return nil
}
