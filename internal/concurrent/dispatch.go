package concurrent

import (
	"sync"
	"sync/atomic"
)

// DispatchState is the state of an aggregation's dispatch loop
type DispatchState int32

const (
	// DispatchRunning hands out units until the input is exhausted
	DispatchRunning DispatchState = iota
	// DispatchStopped hands out nothing more; units already received finish and are kept
	DispatchStopped
	// DispatchCancelled aborts the batch; units already received finish and are discarded
	DispatchCancelled
)

func (s DispatchState) String() string {
	switch s {
	case DispatchRunning:
		return "running"
	case DispatchStopped:
		return "stop_dispatch"
	case DispatchCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// dispatchControl is shared by the dispatch loop and its workers. It leaves
// DispatchRunning at most once.
type dispatchControl struct {
	state   atomic.Int32
	halted  chan struct{}
	closeMu sync.Once
}

func newDispatchControl() *dispatchControl {
	return &dispatchControl{halted: make(chan struct{})}
}

func (d *dispatchControl) State() DispatchState {
	return DispatchState(d.state.Load())
}

// Stop switches Running to StopDispatch and reports whether this call did it
func (d *dispatchControl) Stop() bool {
	return d.leave(DispatchStopped)
}

// Cancel switches Running to Cancelled and reports whether this call did it
func (d *dispatchControl) Cancel() bool {
	return d.leave(DispatchCancelled)
}

// Halted is closed once the loop has left DispatchRunning
func (d *dispatchControl) Halted() <-chan struct{} {
	return d.halted
}

func (d *dispatchControl) leave(to DispatchState) bool {
	if !d.state.CompareAndSwap(int32(DispatchRunning), int32(to)) {
		return false
	}
	d.closeMu.Do(func() { close(d.halted) })
	return true
}
