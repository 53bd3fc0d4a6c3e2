// Package schedule provides the timers the workspace tracker runs on:
// repeating tasks and debouncers with explicit start/stop lifecycles.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Task is the unit of work a Repeating runs on each tick.
type Task func(ctx context.Context)

// Repeating runs a Task every Interval until stopped.
type Repeating struct {
	name     string
	interval time.Duration
	task     Task
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	ticks   int
}

// NewRepeating creates a stopped repeating task.
func NewRepeating(name string, interval time.Duration, task Task, logger zerolog.Logger) *Repeating {
	return &Repeating{
		name:     name,
		interval: interval,
		task:     task,
		logger:   logger.With().Str("component", "schedule").Str("job", name).Logger(),
	}
}

// Start launches the ticker goroutine. The task first runs one interval
// after Start. Cancelling ctx has the same effect as Stop.
func (r *Repeating) Start(ctx context.Context) error {
	if r.interval <= 0 {
		return fmt.Errorf("schedule: %s: interval must be positive", r.name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("schedule: %s already running", r.name)
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go r.run(ctx, r.done)

	r.logger.Debug().Dur("interval", r.interval).Msg("repeating task started")
	return nil
}

// Stop cancels the ticker and waits for an in-progress task to return.
// Stopping a stopped task is a no-op.
func (r *Repeating) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done
}

// IsRunning reports whether the ticker goroutine is active.
func (r *Repeating) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Ticks returns how many times the task has run.
func (r *Repeating) Ticks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks
}

func (r *Repeating) run(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer func() {
		ticker.Stop()
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		close(done)
		r.logger.Debug().Msg("repeating task stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.task(ctx)
			r.mu.Lock()
			r.ticks++
			r.mu.Unlock()
		}
	}
}
