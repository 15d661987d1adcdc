// Package cancellation provides the per-run cooperative cancellation signal
// shared by every pipeline stage.
package cancellation

import (
	"context"
	"sync"
	"sync/atomic"
)

// State is the controller state. The only transition is Idle -> Requested.
type State int32

const (
	StateIdle State = iota
	StateRequested
)

// String implements fmt.Stringer
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequested:
		return "requested"
	default:
		return "unknown"
	}
}

// Controller is a one-shot cancellation signal for a single run. A fresh
// controller must be created for every run; Requested is terminal.
type Controller struct {
	ctx    context.Context
	cancel context.CancelFunc
	state  atomic.Int32
	mu     sync.Mutex
	stops  []func() bool
}

// New creates an idle controller. Cancellation of parent also moves the
// controller to Requested.
func New(parent context.Context) *Controller {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	c := &Controller{ctx: ctx, cancel: cancel}
	context.AfterFunc(ctx, func() {
		c.state.Store(int32(StateRequested))
	})
	return c
}

// Context returns the context observed by the stages of the run
func (c *Controller) Context() context.Context {
	return c.ctx
}

// Cancel requests cancellation. It returns true only for the call that
// performed the transition; later calls are no-ops.
func (c *Controller) Cancel() bool {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRequested)) {
		return false
	}
	c.cancel()
	return true
}

// IsRequested reports whether cancellation has been requested
func (c *Controller) IsRequested() bool {
	return c.State() == StateRequested || c.ctx.Err() != nil
}

// State returns the current state
func (c *Controller) State() State {
	if c.ctx.Err() != nil {
		return StateRequested
	}
	return State(c.state.Load())
}

// Done is closed once cancellation is requested
func (c *Controller) Done() <-chan struct{} {
	return c.ctx.Done()
}

// OnRequested registers fn to run exactly once, in its own goroutine, when
// cancellation is requested. If cancellation was already requested fn runs
// immediately. Callbacks still pending at Release are dropped.
func (c *Controller) OnRequested(fn func()) {
	stop := context.AfterFunc(c.ctx, fn)

	c.mu.Lock()
	c.stops = append(c.stops, stop)
	c.mu.Unlock()
}

// Release detaches pending callbacks at the end of a run. The state is left
// untouched: a released idle controller still reports Idle.
func (c *Controller) Release() {
	c.mu.Lock()
	stops := c.stops
	c.stops = nil
	c.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
}
