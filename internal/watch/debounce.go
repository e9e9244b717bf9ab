package watch

import (
	"sort"
	"sync"
	"time"
)

// Debouncer collects keys and hands them to its callback once no new key has
// arrived for the configured duration
type Debouncer struct {
	duration time.Duration
	timer    *time.Timer
	pending  map[string]struct{}
	mutex    sync.Mutex
	callback func([]string)
	stopped  bool
}

// NewDebouncer creates a new debouncer instance
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{
		duration: duration,
		pending:  make(map[string]struct{}),
	}
}

// Add records key and restarts the quiet period
func (d *Debouncer) Add(key string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.stopped {
		return
	}

	d.pending[key] = struct{}{}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, d.flush)
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mutex.Unlock()
		return
	}
	keys := make([]string, 0, len(d.pending))
	for k := range d.pending {
		keys = append(keys, k)
	}
	d.pending = make(map[string]struct{})
	callback := d.callback
	d.mutex.Unlock()

	sort.Strings(keys)
	if callback != nil {
		callback(keys)
	}
}

// SetCallback sets the callback function
func (d *Debouncer) SetCallback(callback func([]string)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.callback = callback
}

// Stop cancels the pending flush. Later keys are ignored.
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.stopped = true
}
