package transport

import "sync"

// stateDispatcher delivers state-change notifications one at a time, in the
// order they were posted, on its own goroutine. Posting never blocks, so a
// caller inside the state lock cannot deadlock against a sink that reenters
// the client.
type stateDispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []State
	closed bool

	notify func(State)
	done   chan struct{}
}

func newStateDispatcher(notify func(State)) *stateDispatcher {
	d := &stateDispatcher{
		notify: notify,
		done:   make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *stateDispatcher) post(s State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, s)
	d.cond.Signal()
}

func (d *stateDispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		s := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.notify(s)
	}
}

// close stops the dispatcher after draining already-posted notifications and
// waits for the worker to exit.
func (d *stateDispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.cond.Signal()
	d.mu.Unlock()
	<-d.done
}
