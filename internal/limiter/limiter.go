// Package limiter bounds the number of concurrently running units of work
// and admits queued units in strict submission order.
package limiter

import (
	"fmt"
	"sync"
)

// Limiter runs at most max submitted functions at a time. The zero value is
// not usable; construct one with New.
type Limiter struct {
	max int

	mu     sync.Mutex
	active int
	queue  []*Task
}

// Task is the handle for one submitted unit.
type Task struct {
	fn   func() error
	done chan struct{}
	err  error
}

// New returns a limiter admitting up to max concurrent units. Values below
// one are treated as one.
func New(max int) *Limiter {
	if max < 1 {
		max = 1
	}
	return &Limiter{max: max}
}

// Submit queues fn and returns immediately. Queued units are admitted first
// in, first out, each the moment a slot frees. An admitted unit is never
// cancelled.
func (l *Limiter) Submit(fn func() error) *Task {
	t := &Task{fn: fn, done: make(chan struct{})}
	l.mu.Lock()
	l.queue = append(l.queue, t)
	next := l.admitLocked()
	l.mu.Unlock()
	for _, n := range next {
		go l.run(n)
	}
	return t
}

// Wait blocks until the unit finished and returns its error. A panic in the
// unit is reported as an error.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// Done is closed once the unit finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Active returns the number of running units.
func (l *Limiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Queued returns the number of units waiting for a slot.
func (l *Limiter) Queued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Limiter) admitLocked() []*Task {
	var admitted []*Task
	for l.active < l.max && len(l.queue) > 0 {
		t := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.active++
		admitted = append(admitted, t)
	}
	return admitted
}

func (l *Limiter) run(t *Task) {
	defer func() {
		if r := recover(); r != nil {
			t.err = fmt.Errorf("task panicked: %v", r)
		}
		l.mu.Lock()
		l.active--
		next := l.admitLocked()
		l.mu.Unlock()
		close(t.done)
		for _, n := range next {
			go l.run(n)
		}
	}()
	if t.fn == nil {
		return
	}
	t.err = t.fn()
}
