package capture

import (
	"sync"
	"time"
)

// FlashDuration is how long the capture acknowledgement stays visible.
const FlashDuration = 150 * time.Millisecond

// Flasher raises the capture acknowledgement.
type Flasher interface {
	Trigger()
}

// Flash is a self-clearing flag. Triggering while active restarts the window.
type Flash struct {
	mu       sync.Mutex
	active   bool
	gen      uint64
	duration time.Duration
	onChange func(active bool)
}

// NewFlash returns a Flash calling onChange (if non-nil) whenever the flag flips.
func NewFlash(onChange func(active bool)) *Flash {
	return &Flash{duration: FlashDuration, onChange: onChange}
}

func (f *Flash) Trigger() {
	f.mu.Lock()
	f.gen++
	gen := f.gen
	wasActive := f.active
	f.active = true
	d := f.duration
	f.mu.Unlock()

	if !wasActive {
		f.notify(true)
	}
	time.AfterFunc(d, func() { f.expire(gen) })
}

func (f *Flash) expire(gen uint64) {
	f.mu.Lock()
	if gen != f.gen || !f.active {
		f.mu.Unlock()
		return
	}
	f.active = false
	f.mu.Unlock()
	f.notify(false)
}

func (f *Flash) notify(active bool) {
	if f.onChange != nil {
		f.onChange(active)
	}
}

// Active reports whether the acknowledgement is showing.
func (f *Flash) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

