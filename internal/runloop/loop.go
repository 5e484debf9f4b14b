// Package runloop serializes the work of one map session onto a single
// goroutine: layer loads, pointer events and animation frames all run as
// posted closures, one at a time, in the order they were posted.
package runloop

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned when posting to a loop that has shut down.
var ErrStopped = errors.New("run loop stopped")

// Loop runs posted functions one at a time.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

// New creates a loop. Nothing runs until Run is called.
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post queues fn. It never blocks; posts after Stop are dropped.
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrStopped
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Call queues fn and waits for it to run.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	if err := l.Post(func() {
		defer close(ran)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-ran:
		return nil
	case <-l.done:
		// The loop may have run fn just before stopping.
		select {
		case <-ran:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) {
	defer l.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case <-l.wake:
		}

		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			fn()
		}
	}
}

// Stop shuts the loop down. Queued functions that have not run are
// discarded.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	l.queue = nil
	close(l.done)
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Every posts fn(now) at the given interval until the loop stops or the
// returned stop function is called. A tick is skipped while the previous
// one is still queued.
func (l *Loop) Every(interval time.Duration, fn func(now time.Time)) (stop func()) {
	quit := make(chan struct{})
	var once sync.Once
	stop = func() { once.Do(func() { close(quit) }) }

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		var pending sync.Mutex
		for {
			select {
			case <-l.done:
				return
			case <-quit:
				return
			case now := <-t.C:
				if !pending.TryLock() {
					continue
				}
				if err := l.Post(func() {
					defer pending.Unlock()
					fn(now)
				}); err != nil {
					return
				}
			}
		}
	}()
	return stop
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped || len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}
