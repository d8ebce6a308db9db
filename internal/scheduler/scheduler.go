// Package scheduler drives recurring scans. A Scheduler owns its own timer
// registry with explicit lifecycle methods, so multiple isolated instances
// can coexist (tests, multi-tenant embedding) without process-wide state.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/halcyonsec/scangate/api/schemas"
	"github.com/halcyonsec/scangate/internal/config"
)

// Runner executes one scan for a schedule. In production this is the scan
// service (orchestrate, map, gate, persist, notify); tests inject a stub.
type Runner interface {
	Run(ctx context.Context, repositoryRef, triggeredBy string) error
}

// Scheduler maintains schedule definitions, arms a timer per enabled
// non-manual schedule, and sweeps for overdue runs in the background.
type Scheduler struct {
	store  schemas.ScheduleStore
	runner Runner
	logger *zap.Logger

	sweepInterval time.Duration
	limiter       *rate.Limiter
	now           func() time.Time

	mu       sync.Mutex
	timers   map[string]*time.Timer
	inflight map[string]struct{}
	started  bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock injects a time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler. Start must be called before timers fire.
func New(store schemas.ScheduleStore, runner Runner, cfg config.SchedulerConfig, logger *zap.Logger, opts ...Option) (*Scheduler, error) {
	if store == nil || runner == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize scheduler with nil dependencies")
	}
	s := &Scheduler{
		store:         store,
		runner:        runner,
		logger:        logger.Named("scheduler"),
		sweepInterval: cfg.SweepInterval,
		limiter:       rate.NewLimiter(rate.Limit(cfg.SweepRate), 1),
		now:           time.Now,
		timers:        make(map[string]*time.Timer),
		inflight:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start loads persisted schedules, arms their timers, and launches the
// catch-up sweep. The given context parents all executions the scheduler
// triggers.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.mu.Unlock()

	defs, err := s.store.ListSchedules(s.baseCtx)
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}
	for i := range defs {
		s.arm(&defs[i])
	}

	s.wg.Add(1)
	go s.sweepLoop()

	s.logger.Info("Scheduler started",
		zap.Int("schedules", len(defs)), zap.Duration("sweep_interval", s.sweepInterval))
	return nil
}

// Stop disarms all timers, cancels in-flight executions, and waits for them
// to finish. Safe to call once after Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// Create validates and persists a new schedule, arming its timer when the
// scheduler is running. Configuration errors are rejected here, never
// deferred to execution time.
func (s *Scheduler) Create(ctx context.Context, def *schemas.ScheduleDefinition) error {
	if err := validate(def); err != nil {
		return err
	}
	if def.ID == "" {
		def.ID = uuid.New().String()
	}

	now := s.now()
	def.CreatedAt = now.UTC()
	def.UpdatedAt = def.CreatedAt
	next, err := NextRun(*def, now)
	if err != nil {
		return err
	}
	def.NextRunAt = next

	if err := s.store.CreateSchedule(ctx, def); err != nil {
		return fmt.Errorf("failed to persist schedule: %w", err)
	}
	s.arm(def)
	s.logger.Info("Schedule created",
		zap.String("schedule_id", def.ID),
		zap.String("repository", def.RepositoryRef),
		zap.String("type", string(def.Type)))
	return nil
}

// Update validates the new definition, recomputes the next run from the new
// configuration, persists, and re-arms.
func (s *Scheduler) Update(ctx context.Context, def *schemas.ScheduleDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("schedule id is required")
	}
	if err := validate(def); err != nil {
		return err
	}

	def.UpdatedAt = s.now().UTC()
	next, err := NextRun(*def, s.now())
	if err != nil {
		return err
	}
	def.NextRunAt = next

	if err := s.store.UpdateSchedule(ctx, def); err != nil {
		return fmt.Errorf("failed to persist schedule: %w", err)
	}

	s.disarm(def.ID)
	s.arm(def)
	return nil
}

// Delete removes the schedule and its timer.
func (s *Scheduler) Delete(ctx context.Context, id string) error {
	s.disarm(id)
	if err := s.store.DeleteSchedule(ctx, id); err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	s.logger.Info("Schedule deleted", zap.String("schedule_id", id))
	return nil
}

// Get returns one schedule definition.
func (s *Scheduler) Get(ctx context.Context, id string) (*schemas.ScheduleDefinition, error) {
	return s.store.GetSchedule(ctx, id)
}

// List returns all schedule definitions.
func (s *Scheduler) List(ctx context.Context) ([]schemas.ScheduleDefinition, error) {
	return s.store.ListSchedules(ctx)
}

// ExecuteNow triggers a schedule immediately, regardless of its cadence.
// This is the only way a manual schedule ever runs.
func (s *Scheduler) ExecuteNow(ctx context.Context, id string) error {
	def, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	return s.execute(ctx, def)
}

// validate applies the creation-time configuration checks.
func validate(def *schemas.ScheduleDefinition) error {
	if def.RepositoryRef == "" {
		return fmt.Errorf("repository reference is required")
	}
	if !def.Type.Valid() {
		return fmt.Errorf("unknown schedule type %q", def.Type)
	}
	if err := def.Config.Validate(); err != nil {
		return err
	}
	if _, err := def.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", def.Timezone, err)
	}
	return nil
}

// arm installs a timer for the schedule. Disabled and manual schedules never
// get one; that invariant is what "disable" means.
func (s *Scheduler) arm(def *schemas.ScheduleDefinition) {
	if !def.Enabled || def.Type == schemas.ScheduleManual || def.NextRunAt == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}

	id := def.ID
	delay := def.NextRunAt.Sub(s.now())
	if delay < 0 {
		// Overdue schedules are the sweep's job; arming them here would race
		// with it.
		return
	}
	s.timers[id] = time.AfterFunc(delay, func() {
		// Register with the waitgroup only while running, so Stop's Wait
		// cannot race with a timer that fires during shutdown.
		s.mu.Lock()
		if !s.started {
			s.mu.Unlock()
			return
		}
		s.wg.Add(1)
		s.mu.Unlock()
		defer s.wg.Done()
		s.fire(id)
	})
}

// disarm stops and removes the schedule's timer, if any.
func (s *Scheduler) disarm(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
}

// fire handles one timer expiry: reload the definition (it may have changed
// since arming) and execute.
func (s *Scheduler) fire(id string) {
	ctx := s.baseCtx
	def, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		s.logger.Error("Timer fired for unloadable schedule", zap.String("schedule_id", id), zap.Error(err))
		return
	}
	if err := s.execute(ctx, def); err != nil {
		s.logger.Error("Scheduled scan failed", zap.String("schedule_id", id), zap.Error(err))
	}
}

// execute runs one scan for the schedule, then advances its bookkeeping.
// At most one execution per schedule id is in flight at any time; overlapping
// triggers are skipped, since concurrent scans of the same repository would
// be wasteful and could race on checkout paths.
func (s *Scheduler) execute(ctx context.Context, def *schemas.ScheduleDefinition) error {
	s.mu.Lock()
	if _, running := s.inflight[def.ID]; running {
		s.mu.Unlock()
		s.logger.Warn("Skipping trigger: schedule already has a scan in flight",
			zap.String("schedule_id", def.ID))
		return nil
	}
	s.inflight[def.ID] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, def.ID)
		s.mu.Unlock()
	}()

	runErr := s.runner.Run(ctx, def.RepositoryRef, "schedule:"+def.ID)

	// Bookkeeping advances even when the run failed, so a permanently broken
	// repository doesn't retrigger on every sweep.
	now := s.now()
	last := now.UTC()
	def.LastRunAt = &last
	next, err := NextRun(*def, now)
	if err != nil {
		return err
	}
	def.NextRunAt = next
	def.UpdatedAt = last
	if err := s.store.UpdateSchedule(ctx, def); err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}

	s.disarm(def.ID)
	s.arm(def)
	return runErr
}

// sweepLoop periodically triggers schedules whose next run is in the past.
// This is the catch-up path after process restarts or missed timers.
// Individual failures are logged, never abort the sweep.
func (s *Scheduler) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.baseCtx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Scheduler) sweep() {
	ctx := s.baseCtx
	due, err := s.store.ListDueSchedules(ctx, s.now())
	if err != nil {
		s.logger.Error("Catch-up sweep failed to list due schedules", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}
	s.logger.Info("Catch-up sweep triggering overdue schedules", zap.Int("count", len(due)))

	for i := range due {
		if err := s.limiter.Wait(ctx); err != nil {
			return // Context cancelled.
		}
		if err := s.execute(ctx, &due[i]); err != nil {
			s.logger.Error("Catch-up execution failed",
				zap.String("schedule_id", due[i].ID), zap.Error(err))
		}
	}
}
