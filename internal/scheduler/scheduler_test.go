// internal/scheduler/scheduler_test.go
package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/halcyonsec/scangate/api/schemas"
	"github.com/halcyonsec/scangate/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memStore is an in-memory ScheduleStore.
type memStore struct {
	mu   sync.Mutex
	defs map[string]schemas.ScheduleDefinition
}

func newMemStore() *memStore {
	return &memStore{defs: make(map[string]schemas.ScheduleDefinition)}
}

func (m *memStore) CreateSchedule(_ context.Context, def *schemas.ScheduleDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defs[def.ID] = *def
	return nil
}

func (m *memStore) UpdateSchedule(_ context.Context, def *schemas.ScheduleDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.defs[def.ID]; !ok {
		return schemas.ErrNotFound
	}
	m.defs[def.ID] = *def
	return nil
}

func (m *memStore) DeleteSchedule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.defs[id]; !ok {
		return schemas.ErrNotFound
	}
	delete(m.defs, id)
	return nil
}

func (m *memStore) GetSchedule(_ context.Context, id string) (*schemas.ScheduleDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	def, ok := m.defs[id]
	if !ok {
		return nil, schemas.ErrNotFound
	}
	return &def, nil
}

func (m *memStore) ListSchedules(_ context.Context) ([]schemas.ScheduleDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]schemas.ScheduleDefinition, 0, len(m.defs))
	for _, def := range m.defs {
		out = append(out, def)
	}
	return out, nil
}

func (m *memStore) ListDueSchedules(_ context.Context, now time.Time) ([]schemas.ScheduleDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []schemas.ScheduleDefinition
	for _, def := range m.defs {
		if def.Enabled && def.Type != schemas.ScheduleManual &&
			def.NextRunAt != nil && !def.NextRunAt.After(now) {
			due = append(due, def)
		}
	}
	return due, nil
}

// stubRunner records run invocations; an optional gate blocks completion.
type stubRunner struct {
	mu      sync.Mutex
	calls   []string
	block   chan struct{}
	started chan struct{}
}

func (r *stubRunner) Run(ctx context.Context, repositoryRef, triggeredBy string) error {
	r.mu.Lock()
	r.calls = append(r.calls, triggeredBy)
	r.mu.Unlock()
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *stubRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestScheduler(t *testing.T, store schemas.ScheduleStore, runner Runner, opts ...Option) *Scheduler {
	t.Helper()
	cfg := config.SchedulerConfig{SweepInterval: time.Hour, SweepRate: 100}
	s, err := New(store, runner, cfg, zap.NewNop(), opts...)
	require.NoError(t, err)
	return s
}

func TestCreateComputesNextRun(t *testing.T) {
	now := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)
	s := newTestScheduler(t, newMemStore(), &stubRunner{}, WithClock(func() time.Time { return now }))

	def := &schemas.ScheduleDefinition{
		RepositoryRef: "acme/shop",
		Type:          schemas.ScheduleDaily,
		Enabled:       true,
	}
	require.NoError(t, s.Create(context.Background(), def))

	assert.NotEmpty(t, def.ID, "an id is assigned at creation")
	require.NotNil(t, def.NextRunAt)
	assert.Equal(t, time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC), *def.NextRunAt)
}

func TestCreateRejectsInvalidDefinitions(t *testing.T) {
	s := newTestScheduler(t, newMemStore(), &stubRunner{})
	ctx := context.Background()
	badHour := 24

	tests := []struct {
		name string
		def  schemas.ScheduleDefinition
	}{
		{"missing repository", schemas.ScheduleDefinition{Type: schemas.ScheduleDaily}},
		{"unknown type", schemas.ScheduleDefinition{RepositoryRef: "a/b", Type: "hourly"}},
		{"hour out of range", schemas.ScheduleDefinition{
			RepositoryRef: "a/b", Type: schemas.ScheduleDaily,
			Config: schemas.ScheduleConfig{Hour: &badHour},
		}},
		{"bad timezone", schemas.ScheduleDefinition{
			RepositoryRef: "a/b", Type: schemas.ScheduleDaily, Timezone: "Mars/Olympus",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := tt.def
			assert.Error(t, s.Create(ctx, &def))
		})
	}
}

func TestManualScheduleNeverArms(t *testing.T) {
	store := newMemStore()
	runner := &stubRunner{}
	s := newTestScheduler(t, store, runner)

	def := &schemas.ScheduleDefinition{
		RepositoryRef: "acme/shop",
		Type:          schemas.ScheduleManual,
		Enabled:       true,
	}
	require.NoError(t, s.Create(context.Background(), def))
	assert.Nil(t, def.NextRunAt, "manual schedules have no next run")

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	s.mu.Lock()
	_, armed := s.timers[def.ID]
	s.mu.Unlock()
	assert.False(t, armed)
}

func TestExecuteNowRunsAndAdvancesBookkeeping(t *testing.T) {
	store := newMemStore()
	runner := &stubRunner{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := newTestScheduler(t, store, runner, WithClock(func() time.Time { return now }))

	def := &schemas.ScheduleDefinition{
		RepositoryRef: "acme/shop",
		Type:          schemas.ScheduleDaily,
		Enabled:       true,
	}
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, def))
	require.NoError(t, s.ExecuteNow(ctx, def.ID))

	assert.Equal(t, []string{"schedule:" + def.ID}, runner.calls)

	stored, err := store.GetSchedule(ctx, def.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastRunAt)
	assert.Equal(t, now, *stored.LastRunAt)
	require.NotNil(t, stored.NextRunAt)
	assert.Equal(t, time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC), *stored.NextRunAt,
		"next run is recomputed after execution")
}

func TestOverlappingTriggerIsSkipped(t *testing.T) {
	store := newMemStore()
	runner := &stubRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	s := newTestScheduler(t, store, runner)

	def := &schemas.ScheduleDefinition{
		RepositoryRef: "acme/shop",
		Type:          schemas.ScheduleDaily,
		Enabled:       true,
	}
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, def))

	done := make(chan error, 1)
	go func() { done <- s.ExecuteNow(ctx, def.ID) }()
	<-runner.started // First execution is now in flight.

	// Second trigger for the same id must be skipped, not queued.
	require.NoError(t, s.ExecuteNow(ctx, def.ID))
	assert.Equal(t, 1, runner.callCount())

	close(runner.block)
	require.NoError(t, <-done)
}

func TestStopIsIdempotentAndHaltsSweep(t *testing.T) {
	store := newMemStore()
	s := newTestScheduler(t, store, &stubRunner{})

	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()), "double start is rejected")

	s.Stop()
	s.Stop() // Second stop is a no-op.
}

func TestSweepExecutesOverdueSchedules(t *testing.T) {
	store := newMemStore()
	runner := &stubRunner{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := newTestScheduler(t, store, runner, WithClock(func() time.Time { return now }))

	overdue := now.Add(-time.Hour)
	require.NoError(t, store.CreateSchedule(context.Background(), &schemas.ScheduleDefinition{
		ID:            "late-1",
		RepositoryRef: "acme/shop",
		Type:          schemas.ScheduleDaily,
		Enabled:       true,
		NextRunAt:     &overdue,
	}))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	s.sweep()
	assert.Equal(t, 1, runner.callCount())

	stored, err := store.GetSchedule(context.Background(), "late-1")
	require.NoError(t, err)
	require.NotNil(t, stored.NextRunAt)
	assert.True(t, stored.NextRunAt.After(now), "sweep advances the overdue schedule")
}
