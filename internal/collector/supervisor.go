package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/campus-carbon/carbon-portal/internal/metrics"
)

const (
	CollectSpec = "0 * * * *"
	DailySpec   = "0 0 * * *"
	MonthlySpec = "0 0 1 * *"

	DefaultRetryDelay = 5 * time.Minute
	DefaultMaxRetries = 12
)

// Runner performs one collection.
type Runner interface {
	Collect(ctx context.Context) (*Result, error)
}

// Reporter produces the scheduled reports.
type Reporter interface {
	RunDaily(ctx context.Context, at time.Time) error
	RunMonthly(ctx context.Context, at time.Time) error
}

// Notifier is told about failed collections in production.
type Notifier interface {
	NotifyCollectionFailure(ctx context.Context, cause error, consecutive int) error
}

type timer interface {
	Stop() bool
}

type SupervisorOptions struct {
	Runner     Runner
	Reporter   Reporter
	Notifier   Notifier
	Location   *time.Location
	RetryDelay time.Duration
	// MaxRetries caps the retry chain at this many consecutive failures; <= 0 means unbounded.
	MaxRetries int
	Production bool
	Now        func() time.Time
	AfterFunc  func(d time.Duration, f func()) timer
}

// JobStatus describes one cron entry.
type JobStatus struct {
	Name    string    `json:"name"`
	Spec    string    `json:"spec"`
	NextRun time.Time `json:"next_run"`
}

type Status struct {
	Running             bool        `json:"running"`
	StartedAt           *time.Time  `json:"started_at"`
	LastRunAt           *time.Time  `json:"last_run_at"`
	LastSuccessAt       *time.Time  `json:"last_success_at"`
	LastError           string      `json:"last_error,omitempty"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	RetryPending        bool        `json:"retry_pending"`
	NextRetryAt         *time.Time  `json:"next_retry_at"`
	Jobs                []JobStatus `json:"jobs"`
}

type job struct {
	name string
	spec string
	id   cron.EntryID
}

// Supervisor owns the collection schedule and its retry chain.
type Supervisor struct {
	runner     Runner
	reporter   Reporter
	notifier   Notifier
	loc        *time.Location
	retryDelay time.Duration
	maxRetries int
	production bool
	now        func() time.Time
	afterFunc  func(d time.Duration, f func()) timer

	mu            sync.Mutex
	cron          *cron.Cron
	jobs          []job
	running       bool
	runCtx        context.Context
	cancel        context.CancelFunc
	startedAt     time.Time
	lastRunAt     time.Time
	lastSuccessAt time.Time
	lastError     string
	failures      int
	retry         timer
	nextRetryAt   time.Time
}

func NewSupervisor(opts SupervisorOptions) *Supervisor {
	s := &Supervisor{
		runner:     opts.Runner,
		reporter:   opts.Reporter,
		notifier:   opts.Notifier,
		loc:        opts.Location,
		retryDelay: opts.RetryDelay,
		maxRetries: opts.MaxRetries,
		production: opts.Production,
		now:        opts.Now,
		afterFunc:  opts.AfterFunc,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.retryDelay <= 0 {
		s.retryDelay = DefaultRetryDelay
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.afterFunc == nil {
		s.afterFunc = func(d time.Duration, f func()) timer { return time.AfterFunc(d, f) }
	}
	return s
}

// Start schedules the jobs and kicks off an immediate collection. Starting a
// running supervisor is a no-op.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithLocation(s.loc))
	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"collect", CollectSpec, func() { s.run(runCtx, "schedule") }},
		{"daily_report", DailySpec, func() { s.report(runCtx, "daily") }},
		{"monthly_report", MonthlySpec, func() { s.report(runCtx, "monthly") }},
	}
	s.jobs = s.jobs[:0]
	for _, j := range jobs {
		id, err := c.AddFunc(j.spec, j.fn)
		if err != nil {
			cancel()
			return fmt.Errorf("invalid cron expression %q: %w", j.spec, err)
		}
		s.jobs = append(s.jobs, job{name: j.name, spec: j.spec, id: id})
	}
	c.Start()

	s.cron = c
	s.runCtx = runCtx
	s.cancel = cancel
	s.running = true
	s.startedAt = s.now()
	log.Info().Str("collect", CollectSpec).Str("tz", s.loc.String()).Msg("collector scheduler started")

	go s.run(runCtx, "startup")
	return nil
}

// Stop halts the schedule, cancels any pending retry and waits for running jobs to return.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.clearRetryLocked()
	if !s.running {
		s.mu.Unlock()
		return
	}
	c := s.cron
	s.cancel()
	s.running = false
	s.cron = nil
	s.mu.Unlock()

	<-c.Stop().Done()
	log.Info().Msg("collector scheduler stopped")
}

// RunNow performs a collection on the caller's context and records its outcome.
func (s *Supervisor) RunNow(ctx context.Context) (*Result, error) {
	return s.run(ctx, "manual")
}

func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:             s.running,
		StartedAt:           timePtr(s.startedAt),
		LastRunAt:           timePtr(s.lastRunAt),
		LastSuccessAt:       timePtr(s.lastSuccessAt),
		LastError:           s.lastError,
		ConsecutiveFailures: s.failures,
		RetryPending:        s.retry != nil,
		NextRetryAt:         timePtr(s.nextRetryAt),
		Jobs:                []JobStatus{},
	}
	if s.running {
		for _, j := range s.jobs {
			st.Jobs = append(st.Jobs, JobStatus{Name: j.name, Spec: j.spec, NextRun: s.cron.Entry(j.id).Next})
		}
	}
	return st
}

func (s *Supervisor) run(ctx context.Context, trigger string) (*Result, error) {
	res, err := s.runner.Collect(ctx)

	s.mu.Lock()
	s.lastRunAt = s.now()
	if err == nil {
		s.failures = 0
		s.lastError = ""
		s.lastSuccessAt = s.lastRunAt
		metrics.CollectorConsecutiveFailures.Set(0)
		s.mu.Unlock()
		return res, nil
	}

	s.failures++
	s.lastError = err.Error()
	failures := s.failures
	metrics.CollectorConsecutiveFailures.Set(float64(failures))
	// a run cut short by Stop or a closed request is not retried
	if ctx.Err() == nil {
		s.scheduleRetryLocked()
	}
	s.mu.Unlock()

	log.Warn().Err(err).Str("trigger", trigger).Int("consecutive_failures", failures).Msg("collection run failed")
	if s.production && s.notifier != nil {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if nerr := s.notifier.NotifyCollectionFailure(nctx, err, failures); nerr != nil {
			log.Error().Err(nerr).Msg("collection failure notification")
		}
		cancel()
	}
	return nil, err
}

// scheduleRetryLocked arms a single retry timer unless one is pending or the
// failure cap was reached. While stopped the retry runs detached from any
// schedule until Stop clears it.
func (s *Supervisor) scheduleRetryLocked() {
	if s.retry != nil {
		return
	}
	if s.maxRetries > 0 && s.failures >= s.maxRetries {
		log.Error().Int("consecutive_failures", s.failures).Msg("collector retry limit reached, waiting for next scheduled run")
		return
	}

	ctx := context.Background()
	if s.running {
		ctx = s.runCtx
	}
	s.nextRetryAt = s.now().Add(s.retryDelay)
	var t timer
	t = s.afterFunc(s.retryDelay, func() {
		s.mu.Lock()
		if s.retry != t {
			s.mu.Unlock()
			return
		}
		s.retry = nil
		s.nextRetryAt = time.Time{}
		s.mu.Unlock()
		s.run(ctx, "retry")
	})
	s.retry = t
	metrics.CollectorRetriesScheduled.Inc()
	log.Info().Dur("delay", s.retryDelay).Time("at", s.nextRetryAt).Msg("collection retry scheduled")
}

func (s *Supervisor) clearRetryLocked() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	s.nextRetryAt = time.Time{}
}

func (s *Supervisor) report(ctx context.Context, kind string) {
	if s.reporter == nil {
		return
	}
	at := s.now().In(s.loc)
	var err error
	switch kind {
	case "daily":
		err = s.reporter.RunDaily(ctx, at)
	case "monthly":
		err = s.reporter.RunMonthly(ctx, at)
	}
	if err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("report generation failed")
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
