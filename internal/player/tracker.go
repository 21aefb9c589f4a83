// Package player keeps an authoritative, pollable view of one media
// element's playback and exposes the transport operations of the editor.
package player

import (
	"context"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/ysrdora/nextframe/internal/domain/port"
	"github.com/ysrdora/nextframe/internal/media"
	"github.com/ysrdora/nextframe/internal/timecode"
)

// Direction of a single-frame step.
type Direction int

const (
	Backward Direction = -1
	Forward  Direction = 1
)

// Tracker bridges element events to a State snapshot. The snapshot is only
// written from event listeners, except for the optimistic updates made by
// TogglePlay, Seek and StepFrame.
//
// Every operation is a no-op while no element is attached.
type Tracker struct {
	logger *zap.Logger

	mu       sync.Mutex
	el       port.MediaElement
	state    State
	removers []func()
	subs     map[chan State]struct{}
}

func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{
		logger: logger,
		state:  initialState(),
		subs:   make(map[chan State]struct{}),
	}
}

// Attach binds the tracker to el, dropping any previous element. A nil el
// detaches.
func (t *Tracker) Attach(el port.MediaElement) {
	t.mu.Lock()
	removers := t.removers
	t.removers = nil
	t.el = el
	t.state = initialState()
	if el != nil {
		t.syncLocked(el)
	}
	t.publishLocked()
	t.mu.Unlock()

	for _, remove := range removers {
		remove()
	}
	if el == nil {
		return
	}

	listen := func(ev port.MediaEvent, fn func(port.MediaElement)) {
		remove := el.On(ev, func() { fn(el) })
		t.mu.Lock()
		t.removers = append(t.removers, remove)
		t.mu.Unlock()
	}
	listen(port.EventEmptied, t.onEmptied)
	listen(port.EventLoadedMetadata, t.onLoadedMetadata)
	listen(port.EventTimeUpdate, t.onTimeUpdate)
	listen(port.EventPlay, func(el port.MediaElement) { t.setPlaying(el, true) })
	listen(port.EventPause, func(el port.MediaElement) { t.setPlaying(el, false) })
	listen(port.EventEnded, func(el port.MediaElement) { t.setPlaying(el, false) })
}

// Element returns the attached element, or nil.
func (t *Tracker) Element() port.MediaElement {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.el
}

// State returns the current snapshot.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Subscribe delivers every new snapshot; a slow reader only ever sees the
// latest one. The returned function ends the subscription.
func (t *Tracker) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	t.mu.Lock()
	t.subs[ch] = struct{}{}
	ch <- t.state
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, ch)
			t.mu.Unlock()
		})
	}
}

// TogglePlay requests play when paused and pause otherwise, marking the
// snapshot optimistically. The play/pause events that follow reconcile it;
// a rejected play request is reconciled right away.
func (t *Tracker) TogglePlay() {
	el := t.Element()
	if el == nil {
		return
	}

	if el.Paused() {
		t.setPlaying(el, true)
		if err := el.Play(); err != nil {
			t.logger.Debug("play request rejected", zap.Error(err))
			t.setPlaying(el, !el.Paused())
		}
		return
	}

	t.setPlaying(el, false)
	el.Pause()
}

// Seek jumps to percent (0..100) of the duration and updates the snapshot
// without waiting for the seek to complete.
func (t *Tracker) Seek(percent float64) {
	el := t.Element()
	if el == nil {
		return
	}
	d := el.Duration()
	if !validDuration(d) {
		return
	}

	pos := clamp(percent, 0, 100) / 100 * d
	el.SetCurrentTime(pos)

	t.mu.Lock()
	if t.el == el {
		t.recomputeLocked(pos, d)
		t.publishLocked()
	}
	t.mu.Unlock()
}

// SeekTo moves to an absolute time and returns once the element confirms
// the frame at that position is presented. It returns nil at once when no
// element is attached, and ctx.Err() if ctx ends first.
func (t *Tracker) SeekTo(ctx context.Context, seconds float64) error {
	el := t.Element()
	if el == nil {
		return nil
	}
	return media.SeekAndWait(ctx, el, seconds)
}

// StepFrame pauses playback and moves one frame in dir, clamped to
// [0, duration]. The snapshot is updated immediately.
func (t *Tracker) StepFrame(dir Direction) {
	el := t.Element()
	if el == nil || dir == 0 {
		return
	}
	d := el.Duration()
	if !validDuration(d) {
		return
	}

	if !el.Paused() {
		el.Pause()
	}

	step := timecode.FrameDuration
	if dir < 0 {
		step = -step
	}
	pos := clamp(el.CurrentTime()+step, 0, d)
	el.SetCurrentTime(pos)

	t.mu.Lock()
	if t.el == el {
		t.state.IsPlaying = false
		t.recomputeLocked(pos, d)
		t.publishLocked()
	}
	t.mu.Unlock()
}

// syncLocked adopts whatever the element already knows, for elements
// attached after their metadata loaded.
func (t *Tracker) syncLocked(el port.MediaElement) {
	t.state.HasSource = el.Source() != ""
	if el.ReadyState() < port.HaveMetadata {
		return
	}
	d := el.Duration()
	t.state.IsLoaded = true
	t.state.IsPlaying = !el.Paused()
	if validDuration(d) {
		t.recomputeLocked(el.CurrentTime(), d)
	}
}

func (t *Tracker) onEmptied(el port.MediaElement) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.el != el {
		return
	}
	t.state = initialState()
	t.state.HasSource = el.Source() != ""
	t.publishLocked()
}

func (t *Tracker) onLoadedMetadata(el port.MediaElement) {
	d := el.Duration()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.el != el {
		return
	}
	t.state.HasSource = true
	t.state.IsLoaded = true
	t.state.Duration = d
	t.state.CurrentTime = 0
	t.state.Progress = 0
	t.state.Timecode = timecode.Zero
	t.publishLocked()
}

func (t *Tracker) onTimeUpdate(el port.MediaElement) {
	d := el.Duration()
	if !validDuration(d) {
		return
	}
	pos := el.CurrentTime()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.el != el {
		return
	}
	t.recomputeLocked(pos, d)
	t.publishLocked()
}

func (t *Tracker) setPlaying(el port.MediaElement, playing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.el != el || t.state.IsPlaying == playing {
		return
	}
	t.state.IsPlaying = playing
	t.publishLocked()
}

// recomputeLocked is the only place position-derived fields are written.
func (t *Tracker) recomputeLocked(pos, duration float64) {
	t.state.CurrentTime = pos
	t.state.Duration = duration
	t.state.Progress = pos / duration * 100
	t.state.Timecode = timecode.Format(pos)
}

func (t *Tracker) publishLocked() {
	for ch := range t.subs {
		select {
		case <-ch:
		default:
		}
		ch <- t.state
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
