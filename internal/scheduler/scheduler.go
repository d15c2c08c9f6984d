// Package scheduler provides a throttled FIFO task scheduler.
//
// Tasks are executed one at a time, in the order they were added, with a
// randomized pause between consecutive tasks. It is used to pace trace
// emission so that a human can read the pipeline as it happens.
package scheduler

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"
)

// Task is a zero-argument unit of work.
type Task = func()

// Default pause bounds between tasks.
const (
	DefaultMinDelay = 1000 * time.Millisecond
	DefaultMaxDelay = 3000 * time.Millisecond
)

// ErrClosed is returned by Add after Close.
var ErrClosed = errors.New("scheduler: closed")

// Throttler serializes tasks with a randomized inter-task delay.
//
// Invariants:
//   - at most one drain goroutine exists at any time
//   - draining is set exactly once when a drain starts and cleared exactly once,
//     under mu, in the same critical section that observed an empty queue
//   - idle is closed whenever draining is false
type Throttler struct {
	mu       sync.Mutex
	tasks    []Task
	draining bool
	closed   bool
	idle     chan struct{}

	minDelay time.Duration
	maxDelay time.Duration
	random   func() float64
	sleep    func(time.Duration)
	stop     chan struct{}
}

// Option configures a Throttler.
type Option func(*Throttler)

// WithDelay sets the pause bounds. max below min is raised to min.
func WithDelay(lo, hi time.Duration) Option {
	return func(t *Throttler) {
		if lo < 0 {
			lo = 0
		}
		if hi < lo {
			hi = lo
		}
		t.minDelay = lo
		t.maxDelay = hi
	}
}

// WithRand replaces the uniform [0,1) source.
func WithRand(random func() float64) Option {
	return func(t *Throttler) {
		if random != nil {
			t.random = random
		}
	}
}

// WithSleep replaces the pause implementation, mostly for tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(t *Throttler) {
		if sleep != nil {
			t.sleep = sleep
		}
	}
}

// New creates a Throttler with the default [1s, 3s] delay range.
func New(opts ...Option) *Throttler {
	idle := make(chan struct{})
	close(idle)

	t := &Throttler{
		idle:     idle,
		minDelay: DefaultMinDelay,
		maxDelay: DefaultMaxDelay,
		random:   rand.Float64,
		stop:     make(chan struct{}),
	}
	t.sleep = t.interruptibleSleep

	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Add enqueues task and starts draining if no drain is in progress.
func (t *Throttler) Add(task func()) error {
	if task == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}

	t.tasks = append(t.tasks, task)
	if !t.draining {
		t.draining = true
		t.idle = make(chan struct{})
		go t.drain(t.idle)
	}
	return nil
}

// drain runs queued tasks until the queue is observed empty.
func (t *Throttler) drain(idle chan struct{}) {
	for {
		t.mu.Lock()
		if len(t.tasks) == 0 || t.closed {
			t.tasks = nil
			t.draining = false
			close(idle)
			t.mu.Unlock()
			return
		}
		task := t.tasks[0]
		t.tasks[0] = nil
		t.tasks = t.tasks[1:]
		t.mu.Unlock()

		task()
		t.sleep(t.Delay())
	}
}

// Delay draws one pause from [min, max].
func (t *Throttler) Delay() time.Duration {
	span := t.maxDelay - t.minDelay
	if span <= 0 {
		return t.minDelay
	}
	return t.minDelay + time.Duration(t.random()*float64(span))
}

// Bounds returns the configured delay range.
func (t *Throttler) Bounds() (time.Duration, time.Duration) {
	return t.minDelay, t.maxDelay
}

// Len returns the number of tasks waiting to run.
func (t *Throttler) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}

// Draining reports whether a drain loop is active.
func (t *Throttler) Draining() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.draining
}

// Wait blocks until the queue has drained or ctx is done.
func (t *Throttler) Wait(ctx context.Context) error {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drops pending tasks, interrupts the current pause and rejects
// further Adds. The task currently running is allowed to finish.
func (t *Throttler) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.tasks = nil
	close(t.stop)
}

func (t *Throttler) interruptibleSleep(d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-t.stop:
	}
}
