// Package scheduler runs named recurring jobs on fixed intervals.
//
// Every job is single-flight: a tick that lands while the previous run is
// still going is skipped, and manual runs join the in-flight one instead
// of starting a second.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	svcErr "github.com/oggyb/muzz-daily/internal/errors"
)

// Report is what a job run returns for logging and operators.
type Report struct {
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Job is one named recurring task.
type Job struct {
	Name       string
	Interval   time.Duration
	RunOnStart bool
	Run        func(ctx context.Context) (Report, error)
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	Running  bool          `json:"running"`
	LastRun  *time.Time    `json:"lastRun,omitempty"`
	LastErr  string        `json:"lastError,omitempty"`
}

type jobState struct {
	job     Job
	running atomic.Bool
	mu      sync.Mutex
	lastRun *time.Time
	lastErr string
}

// Scheduler owns the tickers.
type Scheduler struct {
	production bool
	logger     *slog.Logger

	mu     sync.RWMutex
	jobs   map[string]*jobState
	group  singleflight.Group
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. production disables manual triggers.
func New(production bool, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		production: production,
		logger:     logger,
		jobs:       make(map[string]*jobState),
	}
}

// Register adds a job. Names are unique.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("%w: job needs a name and a run func", svcErr.ErrInvalidArgument)
	}
	if job.Interval <= 0 {
		return fmt.Errorf("%w: job %q needs a positive interval", svcErr.ErrInvalidArgument, job.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("%w: job %q already registered", svcErr.ErrInvalidArgument, job.Name)
	}
	s.jobs[job.Name] = &jobState{job: job}
	return nil
}

// Start launches one ticker goroutine per job. Stop or cancelling ctx ends them.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	states := make([]*jobState, 0, len(s.jobs))
	for _, st := range s.jobs {
		states = append(states, st)
	}
	s.mu.Unlock()

	for _, st := range states {
		s.wg.Add(1)
		go s.loop(ctx, st)
	}
	s.logger.Info("scheduler started", "jobs", len(states))
}

// Stop cancels the loops and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, st *jobState) {
	defer s.wg.Done()
	if st.job.RunOnStart {
		s.tick(ctx, st)
	}

	ticker := time.NewTicker(st.job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, st)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, st *jobState) {
	if st.running.Load() {
		s.logger.Warn("job still running, skipping tick", "job", st.job.Name)
		return
	}
	_, _ = s.run(ctx, st)
}

// RunNow runs a job immediately, joining a run already in flight.
func (s *Scheduler) RunNow(ctx context.Context, name string) (Report, error) {
	s.mu.RLock()
	st, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return Report{}, svcErr.NotFound("job " + name)
	}
	return s.run(ctx, st)
}

// Trigger is the operator entry point. It refuses in production.
func (s *Scheduler) Trigger(ctx context.Context, name string) (Report, error) {
	if s.production {
		return Report{}, fmt.Errorf("%w: job %q", svcErr.ErrManualTriggerForbidden, name)
	}
	s.logger.Info("manual job trigger", "job", name)
	return s.RunNow(ctx, name)
}

// Jobs lists registered jobs by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, st := range s.jobs {
		st.mu.Lock()
		out = append(out, JobInfo{
			Name:     st.job.Name,
			Interval: st.job.Interval,
			Running:  st.running.Load(),
			LastRun:  st.lastRun,
			LastErr:  st.lastErr,
		})
		st.mu.Unlock()
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type result struct {
	report Report
	err    error
}

func (s *Scheduler) run(ctx context.Context, st *jobState) (Report, error) {
	v, _, _ := s.group.Do(st.job.Name, func() (any, error) {
		st.running.Store(true)
		defer st.running.Store(false)

		start := time.Now()
		rep, err := s.safeRun(ctx, st.job)
		finished := time.Now().UTC()

		st.mu.Lock()
		st.lastRun = &finished
		st.lastErr = ""
		if err != nil {
			st.lastErr = err.Error()
		}
		st.mu.Unlock()

		log := s.logger.With("job", st.job.Name, "duration", time.Since(start),
			"processed", rep.Processed, "succeeded", rep.Succeeded, "failed", rep.Failed)
		switch {
		case err != nil:
			log.Error("job failed", "err", err)
		case rep.Failed > 0:
			log.Warn("job finished with errors", "errors", rep.Errors)
		default:
			log.Info("job finished")
		}
		return result{report: rep, err: err}, nil
	})
	r := v.(result)
	return r.report, r.err
}

func (s *Scheduler) safeRun(ctx context.Context, job Job) (rep Report, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %q panicked: %v", job.Name, p)
		}
	}()
	return job.Run(ctx)
}
