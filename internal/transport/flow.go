package transport

import "time"

// flowWait is the synchronization cell for one outstanding flow-controlled
// data send. A cell is armed under the flow lock before the send goes out,
// so a go signal arriving between send and wait is never missed. Cells are
// created per send and discarded afterwards.
type flowWait struct {
	ch chan struct{}
}

func newFlowWait() *flowWait {
	return &flowWait{ch: make(chan struct{}, 1)}
}

// signal marks the go as received. Safe to call more than once and from any
// goroutine; only the first signal matters.
func (w *flowWait) signal() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// wait blocks until a go is signalled or the deadline elapses, and reports
// whether the go was observed.
func (w *flowWait) wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-w.ch:
		return true
	case <-t.C:
		return false
	}
}
