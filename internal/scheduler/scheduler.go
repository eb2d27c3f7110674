package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/marketpulse/backend/internal/metrics"
	"github.com/marketpulse/backend/pkg/logger"
)

var (
	ErrUnknownJob  = errors.New("unknown job")
	ErrJobRunning  = errors.New("job already running")
	ErrDuplicateID = errors.New("job already registered")
)

// Job is one unit of periodic work. The context carries the job timeout
// and is cancelled when the scheduler stops.
type Job func(ctx context.Context) error

// Status is a point-in-time view of a registered job.
type Status struct {
	Name      string    `json:"name"`
	Interval  string    `json:"interval"`
	Running   bool      `json:"running"`
	LastRunID string    `json:"last_run_id,omitempty"`
	LastStart time.Time `json:"last_start,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	NextRun   time.Time `json:"next_run,omitempty"`
}

type entry struct {
	name     string
	interval time.Duration
	run      Job
	cronID   cron.EntryID

	// guard is held for the whole run; a trigger that cannot take it is dropped.
	guard sync.Mutex

	mu        sync.Mutex
	running   bool
	lastRunID string
	lastStart time.Time
	lastErr   error
}

// Scheduler fires registered jobs on fixed intervals. A job never overlaps
// itself: a cron tick or manual trigger arriving mid-run is skipped rather
// than queued. Different jobs run independently.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	log     *zap.Logger

	mu      sync.RWMutex
	entries map[string]*entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a scheduler whose runs are bounded by timeout (30m when zero).
func New(timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	log := logger.Named("scheduler")
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger{log: log.Sugar()}),
			cron.WithChain(cron.Recover(cronLogger{log: log.Sugar()})),
		),
		timeout: timeout,
		log:     log,
		entries: make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds a job firing every interval.
func (s *Scheduler) Register(name string, interval time.Duration, run Job) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, name)
	}

	e := &entry{name: name, interval: interval, run: run}
	id, err := s.cron.AddFunc("@every "+interval.String(), func() {
		s.tryRun(e, uuid.New().String())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	e.cronID = id
	s.entries[name] = e

	s.log.Info("Job registered", zap.String("job", name), zap.Duration("interval", interval))
	return nil
}

// Start begins firing jobs. With runNow set, every job is triggered once
// immediately instead of waiting a full interval.
func (s *Scheduler) Start(runNow bool) {
	s.cron.Start()
	s.log.Info("Scheduler started", zap.Int("jobs", len(s.entries)))

	if !runNow {
		return
	}
	for _, name := range s.names() {
		if _, err := s.Trigger(name); err != nil {
			s.log.Warn("Initial run skipped", zap.String("job", name), zap.Error(err))
		}
	}
}

// Stop halts new triggers, cancels running jobs and waits for them to return
// or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	cronDone := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger starts a run of the named job in the background and returns its
// run id. A job that is already running yields ErrJobRunning.
func (s *Scheduler) Trigger(name string) (string, error) {
	e, ok := s.entry(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if !e.guard.TryLock() {
		metrics.JobRuns.WithLabelValues(name, "skipped").Inc()
		return "", fmt.Errorf("%w: %s", ErrJobRunning, name)
	}

	runID := uuid.New().String()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer e.guard.Unlock()
		s.execute(e, runID)
	}()
	return runID, nil
}

// Jobs lists registered jobs by name.
func (s *Scheduler) Jobs() []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Status, 0, len(s.entries))
	for _, e := range s.entries {
		e.mu.Lock()
		st := Status{
			Name:      e.name,
			Interval:  e.interval.String(),
			Running:   e.running,
			LastRunID: e.lastRunID,
			LastStart: e.lastStart,
			NextRun:   s.cron.Entry(e.cronID).Next,
		}
		if e.lastErr != nil {
			st.LastError = e.lastErr.Error()
		}
		e.mu.Unlock()
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) tryRun(e *entry, runID string) {
	if !e.guard.TryLock() {
		metrics.JobRuns.WithLabelValues(e.name, "skipped").Inc()
		s.log.Warn("Job still running, trigger dropped", zap.String("job", e.name))
		return
	}
	defer e.guard.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()
	s.execute(e, runID)
}

func (s *Scheduler) execute(e *entry, runID string) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	e.mu.Lock()
	e.running = true
	e.lastRunID = runID
	e.lastStart = start
	e.mu.Unlock()

	log := s.log.With(zap.String("job", e.name), zap.String("run_id", runID))
	log.Info("Job started")

	err := e.run(ctx)

	elapsed := time.Since(start)
	e.mu.Lock()
	e.running = false
	e.lastErr = err
	e.mu.Unlock()

	metrics.JobDuration.WithLabelValues(e.name).Observe(elapsed.Seconds())
	if err != nil {
		metrics.JobRuns.WithLabelValues(e.name, "error").Inc()
		log.Error("Job failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return
	}
	metrics.JobRuns.WithLabelValues(e.name, "ok").Inc()
	log.Info("Job finished", zap.Duration("elapsed", elapsed))
}

func (s *Scheduler) entry(name string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	return e, ok
}

func (s *Scheduler) names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// cronLogger routes cron's own messages through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
