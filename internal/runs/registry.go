// Package runs tracks asynchronous pipeline runs by id
package runs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stock-analyzer/internal/cancellation"
	"stock-analyzer/internal/pipeline"
)

// StatusRunning is reported while a run has no outcome yet
const StatusRunning = "running"

var (
	// ErrTooManyRuns is returned when MaxActive runs are already in progress
	ErrTooManyRuns = errors.New("too many active runs")

	// ErrShuttingDown is returned once the registry stopped accepting runs
	ErrShuttingDown = errors.New("run registry is shutting down")
)

// Runner executes one pipeline run
type Runner interface {
	Run(ctx context.Context, req pipeline.Request, ctrl *cancellation.Controller, sink pipeline.Sink) *pipeline.Outcome
}

// Config configures the registry
type Config struct {
	Retention  time.Duration
	MaxActive  int
	RunTimeout time.Duration
}

// Run is one asynchronous pipeline run
type Run struct {
	ID        string
	Request   pipeline.Request
	CreatedAt time.Time

	ctrl     *cancellation.Controller
	recorder *pipeline.Recorder
	done     chan struct{}

	mu         sync.RWMutex
	outcome    *pipeline.Outcome
	finishedAt time.Time
}

// Cancel requests cancellation and reports whether this call requested it
func (r *Run) Cancel() bool {
	return r.ctrl.Cancel()
}

// CancelRequested reports whether cancellation was requested
func (r *Run) CancelRequested() bool {
	return r.ctrl.IsRequested()
}

// Done is closed when the run has an outcome
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Recorder returns the sink the run reports to
func (r *Run) Recorder() *pipeline.Recorder {
	return r.recorder
}

// Outcome returns the outcome, or nil while running
func (r *Run) Outcome() *pipeline.Outcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.outcome
}

// Status returns the outcome status or "running"
func (r *Run) Status() string {
	if o := r.Outcome(); o != nil {
		return string(o.Status)
	}
	return StatusRunning
}

// FinishedAt returns when the run ended, zero while running
func (r *Run) FinishedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finishedAt
}

func (r *Run) finish(outcome *pipeline.Outcome, at time.Time) {
	r.mu.Lock()
	r.outcome = outcome
	r.finishedAt = at
	r.mu.Unlock()
	r.recorder.Close()
	close(r.done)
}

// Registry starts runs and keeps them until their retention expires
type Registry struct {
	runner Runner
	config Config
	logger *logrus.Logger
	now    func() time.Time

	base     context.Context
	stopBase context.CancelFunc

	mu      sync.RWMutex
	runs    map[string]*Run
	active  int
	closing bool
	wg      sync.WaitGroup
}

// NewRegistry creates a run registry
func NewRegistry(runner Runner, config Config, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if config.MaxActive <= 0 {
		config.MaxActive = 32
	}
	if config.Retention <= 0 {
		config.Retention = 15 * time.Minute
	}

	base, stop := context.WithCancel(context.Background())
	return &Registry{
		runner:   runner,
		config:   config,
		logger:   logger,
		now:      time.Now,
		base:     base,
		stopBase: stop,
		runs:     make(map[string]*Run),
	}
}

// Start launches a run in the background with a fresh controller
func (g *Registry) Start(req pipeline.Request) (*Run, error) {
	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if g.active >= g.config.MaxActive {
		g.mu.Unlock()
		return nil, ErrTooManyRuns
	}

	parent, release := g.base, context.CancelFunc(func() {})
	if g.config.RunTimeout > 0 {
		parent, release = context.WithTimeout(g.base, g.config.RunTimeout)
	}

	run := &Run{
		ID:        uuid.New().String(),
		Request:   req,
		CreatedAt: g.now(),
		ctrl:      cancellation.New(parent),
		recorder:  pipeline.NewRecorder(),
		done:      make(chan struct{}),
	}
	g.runs[run.ID] = run
	g.active++
	g.wg.Add(1)
	g.mu.Unlock()

	g.logger.WithFields(logrus.Fields{
		"run_id":  run.ID,
		"tickers": req.Tickers,
	}).Info("Run started")

	go func() {
		defer g.wg.Done()
		defer release()

		outcome := g.runner.Run(run.ctrl.Context(), req, run.ctrl, run.recorder)
		run.finish(outcome, g.now())

		g.mu.Lock()
		g.active--
		g.mu.Unlock()

		g.logger.WithFields(logrus.Fields{
			"run_id": run.ID,
			"status": outcome.Status,
		}).Info("Run finished")
	}()

	return run, nil
}

// Get returns a run by id
func (g *Registry) Get(id string) (*Run, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	run, ok := g.runs[id]
	return run, ok
}

// Cancel requests cancellation of a run. Cancelling twice is not an error.
func (g *Registry) Cancel(id string) (*Run, bool) {
	run, ok := g.Get(id)
	if !ok {
		return nil, false
	}
	if run.Cancel() {
		g.logger.WithField("run_id", id).Info("Run cancellation requested")
	}
	return run, true
}

// Active returns the number of runs in progress
func (g *Registry) Active() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active
}

// Sweep evicts finished runs older than the retention and returns how many
func (g *Registry) Sweep() int {
	cutoff := g.now().Add(-g.config.Retention)

	g.mu.Lock()
	defer g.mu.Unlock()

	evicted := 0
	for id, run := range g.runs {
		finished := run.FinishedAt()
		if !finished.IsZero() && finished.Before(cutoff) {
			delete(g.runs, id)
			evicted++
		}
	}
	if evicted > 0 {
		g.logger.WithField("evicted", evicted).Debug("Evicted finished runs")
	}
	return evicted
}

// RunSweeper calls Sweep every interval until ctx is done
func (g *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Sweep()
		}
	}
}

// Shutdown stops accepting runs, cancels the active ones and waits for them
// to finish or for ctx to expire
func (g *Registry) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()

	g.stopBase()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
