package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/AbdulRauf-Sidd/Gyroscope-fall-detection/internal/detector"
	"github.com/AbdulRauf-Sidd/Gyroscope-fall-detection/internal/ingest"
)

// fakeCache - кэш в памяти для тестов
type fakeCache struct {
	sessions map[string]*Session
	metrics  map[string]*DetectionMetrics
	statuses map[string]detector.PatternStatus
	falls    map[string][]FallRecord
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		sessions: make(map[string]*Session),
		metrics:  make(map[string]*DetectionMetrics),
		statuses: make(map[string]detector.PatternStatus),
		falls:    make(map[string][]FallRecord),
	}
}

func (f *fakeCache) SetSession(_ context.Context, session *Session) error {
	copied := *session
	f.sessions[session.ID] = &copied
	return nil
}

func (f *fakeCache) GetSession(_ context.Context, sessionID string) (*Session, error) {
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	copied := *session
	return &copied, nil
}

func (f *fakeCache) DeleteSession(_ context.Context, sessionID string) error {
	delete(f.sessions, sessionID)
	delete(f.metrics, sessionID)
	delete(f.statuses, sessionID)
	delete(f.falls, sessionID)
	return nil
}

func (f *fakeCache) SetMetrics(_ context.Context, metrics *DetectionMetrics) error {
	copied := *metrics
	f.metrics[metrics.SessionID] = &copied
	return nil
}

func (f *fakeCache) GetMetrics(_ context.Context, sessionID string) (*DetectionMetrics, error) {
	metrics, ok := f.metrics[sessionID]
	if !ok {
		return nil, fmt.Errorf("metrics not found: %s", sessionID)
	}
	copied := *metrics
	return &copied, nil
}

func (f *fakeCache) SetStatus(_ context.Context, sessionID string, status detector.PatternStatus) error {
	f.statuses[sessionID] = status
	return nil
}

func (f *fakeCache) GetStatus(_ context.Context, sessionID string) (*detector.PatternStatus, error) {
	status, ok := f.statuses[sessionID]
	if !ok {
		return nil, fmt.Errorf("status not found: %s", sessionID)
	}
	return &status, nil
}

func (f *fakeCache) AppendFalls(_ context.Context, sessionID string, falls []FallRecord) error {
	f.falls[sessionID] = append(f.falls[sessionID], falls...)
	return nil
}

func (f *fakeCache) GetFalls(_ context.Context, sessionID string) ([]FallRecord, error) {
	return f.falls[sessionID], nil
}

func (f *fakeCache) FallExists(_ context.Context, sessionID string, tsMS int64) (bool, error) {
	for _, fall := range f.falls[sessionID] {
		if fall.TsMS == tsMS {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCache) GetSessionData(ctx context.Context, sessionID string) (*SessionData, error) {
	session, err := f.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	data := &SessionData{Session: session}
	if metrics, err := f.GetMetrics(ctx, sessionID); err == nil {
		data.Metrics = metrics
	}
	if status, ok := f.statuses[sessionID]; ok {
		data.Status = &status
	}
	data.Falls = f.falls[sessionID]
	return data, nil
}

func (f *fakeCache) SetSessionTTL(_ context.Context, _ string) error {
	return nil
}

// fakeRepository - репозиторий в памяти для тестов
type fakeRepository struct {
	sessions map[string]*Session
	saved    []*SessionData
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{sessions: make(map[string]*Session)}
}

func (f *fakeRepository) CreateSession(_ context.Context, session *Session) error {
	copied := *session
	f.sessions[session.ID] = &copied
	return nil
}

func (f *fakeRepository) GetSession(_ context.Context, sessionID string) (*Session, error) {
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	copied := *session
	return &copied, nil
}

func (f *fakeRepository) UpdateSession(ctx context.Context, session *Session) error {
	return f.CreateSession(ctx, session)
}

func (f *fakeRepository) ListSessions(_ context.Context, _, _ int) ([]*Session, error) {
	var sessions []*Session
	for _, session := range f.sessions {
		copied := *session
		sessions = append(sessions, &copied)
	}
	return sessions, nil
}

func (f *fakeRepository) DeleteSession(_ context.Context, sessionID string) error {
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeRepository) SaveMetrics(_ context.Context, _ *DetectionMetrics) error { return nil }

func (f *fakeRepository) GetMetrics(_ context.Context, sessionID string) (*DetectionMetrics, error) {
	return nil, fmt.Errorf("metrics not found: %s", sessionID)
}

func (f *fakeRepository) SaveFalls(_ context.Context, _ []FallRecord) error { return nil }

func (f *fakeRepository) GetFalls(_ context.Context, _ string) ([]FallRecord, error) {
	return nil, nil
}

func (f *fakeRepository) SaveSessionData(ctx context.Context, data *SessionData) error {
	f.saved = append(f.saved, data)
	return f.CreateSession(ctx, data.Session)
}

func newTestManager() (*Manager, *fakeCache, *fakeRepository) {
	cache := newFakeCache()
	repo := newFakeRepository()
	return NewManager(detector.DefaultConfig(), cache, repo), cache, repo
}

// feedFallEpisode прогоняет через менеджер последовательность сэмплов,
// образующую полный паттерн падения: покой, удар, вращение, неподвижность
func feedFallEpisode(t *testing.T, m *Manager, deviceID string, t0 int64) {
	t.Helper()
	ctx := context.Background()

	for i := int64(0); i < 10; i++ {
		sample := detector.Sample{X: 9.8, Y: 0, Z: 0, TsMS: t0 - 1000 + i*100}
		if err := m.HandleMotionSample(ctx, deviceID, ingest.ChannelAcceleration, sample); err != nil {
			t.Fatalf("HandleMotionSample rest: %v", err)
		}
	}

	spike := detector.Sample{X: 20.0, Y: 0, Z: 0, TsMS: t0}
	if err := m.HandleMotionSample(ctx, deviceID, ingest.ChannelAcceleration, spike); err != nil {
		t.Fatalf("HandleMotionSample spike: %v", err)
	}

	rotation := detector.Sample{X: 5.0, Y: 0, Z: 0, TsMS: t0 + 300}
	if err := m.HandleMotionSample(ctx, deviceID, ingest.ChannelRotation, rotation); err != nil {
		t.Fatalf("HandleMotionSample rotation: %v", err)
	}

	for i := int64(0); i < 10; i++ {
		sample := detector.Sample{X: 0.5, Y: 0, Z: 0, TsMS: t0 + 400 + i*60}
		if err := m.HandleMotionSample(ctx, deviceID, ingest.ChannelAcceleration, sample); err != nil {
			t.Fatalf("HandleMotionSample low: %v", err)
		}
	}
}

func drainNotifications(m *Manager) []Notification {
	var notifications []Notification
	for {
		select {
		case n := <-m.Notifications():
			notifications = append(notifications, n)
		default:
			return notifications
		}
	}
}

func TestManager_AutoCreatesSessionAndRecordsFall(t *testing.T) {
	m, cache, _ := newTestManager()
	ctx := context.Background()

	feedFallEpisode(t, m, "device-1", 2000)

	if !m.IsSessionActive("device-1") {
		t.Fatal("expected auto-created session to be active")
	}

	session, err := m.GetSession(ctx, "device-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session.Metadata.CreatedFrom != "auto-created" {
		t.Errorf("expected auto-created origin, got %q", session.Metadata.CreatedFrom)
	}

	falls, err := cache.GetFalls(ctx, "device-1")
	if err != nil {
		t.Fatalf("GetFalls: %v", err)
	}
	if len(falls) != 1 {
		t.Fatalf("expected 1 fall record, got %d", len(falls))
	}
	if falls[0].ImpactTsMS != 2000 {
		t.Errorf("expected impact ts 2000, got %d", falls[0].ImpactTsMS)
	}
	if falls[0].FallNumber != 1 {
		t.Errorf("expected fall number 1, got %d", falls[0].FallNumber)
	}

	metrics, err := m.GetSessionMetrics(ctx, "device-1")
	if err != nil {
		t.Fatalf("GetSessionMetrics: %v", err)
	}
	if metrics.FallCount != 1 {
		t.Errorf("expected fall count 1, got %d", metrics.FallCount)
	}
	if metrics.AccelSamples != 21 || metrics.RotationSamples != 1 {
		t.Errorf("unexpected sample counts: accel=%d rotation=%d", metrics.AccelSamples, metrics.RotationSamples)
	}
}

func TestManager_EmitsFallAndStatusNotifications(t *testing.T) {
	m, _, _ := newTestManager()

	feedFallEpisode(t, m, "device-2", 2000)

	notifications := drainNotifications(m)
	if len(notifications) == 0 {
		t.Fatal("expected notifications to be emitted")
	}

	var fallSeen, statusSeen bool
	for _, n := range notifications {
		switch n.Type {
		case NotificationFall:
			fallSeen = true
			if n.Fall == nil || n.Fall.SessionID != "device-2" {
				t.Errorf("fall notification missing fall record: %+v", n)
			}
		case NotificationStatus:
			statusSeen = true
			if n.Status == nil {
				t.Errorf("status notification missing status: %+v", n)
			}
		}
	}
	if !fallSeen {
		t.Error("expected a fall notification")
	}
	if !statusSeen {
		t.Error("expected status notifications on flag transitions")
	}
}

func TestManager_CreateStopSaveLifecycle(t *testing.T) {
	m, cache, repo := newTestManager()
	ctx := context.Background()

	session, err := m.CreateSession(ctx, &CreateSessionRequest{
		DeviceID:    "wearable-7",
		PatientID:   "patient-42",
		CreatedFrom: "web",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	// Сэмплы устройства должны попадать в созданную сессию, а не порождать новую
	feedFallEpisode(t, m, "wearable-7", 2000)

	if !m.IsSessionActive(session.ID) {
		t.Fatal("expected created session to be active")
	}
	falls, _ := cache.GetFalls(ctx, session.ID)
	if len(falls) != 1 {
		t.Fatalf("expected fall recorded under session %s, got %d records", session.ID, len(falls))
	}

	if err := m.StopSession(ctx, session.ID); err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	if m.IsSessionActive(session.ID) {
		t.Error("expected session to be inactive after stop")
	}

	stopped, err := m.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession after stop: %v", err)
	}
	if stopped.Status != SessionStatusStopped {
		t.Errorf("expected status STOPPED, got %s", stopped.Status)
	}

	if err := m.SaveSession(ctx, session.ID, "observed fall"); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if len(repo.saved) != 1 {
		t.Fatalf("expected 1 saved session data, got %d", len(repo.saved))
	}
	if repo.saved[0].Session.Status != SessionStatusSaved {
		t.Errorf("expected saved status, got %s", repo.saved[0].Session.Status)
	}
	if repo.saved[0].Session.Metadata.Notes != "observed fall" {
		t.Errorf("expected notes to be updated, got %q", repo.saved[0].Session.Metadata.Notes)
	}
}

func TestManager_NewAutoSessionAfterStop(t *testing.T) {
	m, cache, _ := newTestManager()
	ctx := context.Background()

	session, err := m.CreateSession(ctx, &CreateSessionRequest{DeviceID: "device-3"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := m.StopSession(ctx, session.ID); err != nil {
		t.Fatalf("StopSession: %v", err)
	}

	// После остановки индекс устройства снят, поэтому новые данные
	// создадут свежую автосессию с ID устройства
	feedFallEpisode(t, m, "device-3", 2000)

	if !m.IsSessionActive("device-3") {
		t.Fatal("expected new auto-created session for device after stop")
	}
	falls, _ := cache.GetFalls(ctx, "device-3")
	if len(falls) != 1 {
		t.Fatalf("expected 1 fall in new session, got %d", len(falls))
	}
}

func TestManager_ResetDetection(t *testing.T) {
	m, _, _ := newTestManager()
	ctx := context.Background()

	feedFallEpisode(t, m, "device-4", 2000)

	if err := m.ResetDetection(ctx, "device-4", true); err != nil {
		t.Fatalf("ResetDetection: %v", err)
	}

	metrics, err := m.GetSessionMetrics(ctx, "device-4")
	if err != nil {
		t.Fatalf("GetSessionMetrics: %v", err)
	}
	if metrics.FallCount != 0 || metrics.Impacts != 0 {
		t.Errorf("expected counters cleared after total reset, got %+v", metrics)
	}
	if metrics.AccelSamples != 0 || metrics.RotationSamples != 0 {
		t.Errorf("expected sample counts cleared, got %+v", metrics)
	}

	if err := m.ResetDetection(ctx, "unknown-session", true); err == nil {
		t.Error("expected error for unknown session")
	}
}
