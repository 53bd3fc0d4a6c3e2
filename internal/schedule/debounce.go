package schedule

import (
	"sync"
	"time"
)

// Debouncer runs fn once Delay has passed without another Trigger.
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
	wg      sync.WaitGroup
}

// NewDebouncer creates an idle debouncer.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger (re-)arms the timer. It is ignored after Stop.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil && d.timer.Stop() {
		// the pending fire was cancelled before it started
		d.wg.Done()
	}
	d.gen++
	gen := d.gen
	d.wg.Add(1)
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Pending reports whether a fire is scheduled and has not started yet.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil && !d.stopped
}

// Stop cancels any pending fire, waits for a running fire to finish and
// disables further triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	if d.timer != nil && d.timer.Stop() {
		d.wg.Done()
	}
	d.timer = nil
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Debouncer) fire(gen uint64) {
	defer d.wg.Done()

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.gen == gen {
		d.timer = nil
	}
	d.mu.Unlock()

	d.fn()
}
