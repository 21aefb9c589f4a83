// Package mediatest provides an in-memory MediaElement for tests.
package mediatest

import (
	"errors"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/ysrdora/nextframe/internal/domain/port"
)

// ErrPlayRejected is returned by Play on an element without metadata.
var ErrPlayRejected = errors.New("mediatest: play rejected")

// AnySource is a library key matching every source without its own entry.
const AnySource = "*"

// Media describes a source the fake can "decode".
type Media struct {
	Duration float64
	Width    int
	Height   int
}

// Element is a synchronous MediaElement: every event fires on the calling
// goroutine before the triggering method returns, unless the element is told
// to hold seeks.
type Element struct {
	mu        sync.Mutex
	library   map[string]Media
	src       string
	duration  float64
	position  float64
	paused    bool
	ready     port.ReadyState
	width     int
	height    int
	muted     bool
	preload   port.Preload
	err       error
	holdSeeks bool
	seekErrAt func(t float64) error
	pending   []float64

	seekCalls  []float64
	loadCalls  int
	playCalls  int
	pauseCalls int

	lmu       sync.Mutex
	listeners map[port.MediaEvent]map[int]func()
	nextID    int
}

// NewElement returns an unbound element resolving sources from library.
func NewElement(library map[string]Media) *Element {
	return &Element{
		library:   library,
		duration:  math.NaN(),
		paused:    true,
		preload:   port.PreloadAuto,
		listeners: make(map[port.MediaEvent]map[int]func()),
	}
}

// Loaded returns an element already bound to src with metadata and a first
// frame available, without firing any event.
func Loaded(src string, m Media) *Element {
	el := NewElement(map[string]Media{src: m})
	el.src = src
	el.duration = m.Duration
	el.width, el.height = m.Width, m.Height
	el.ready = port.HaveEnoughData
	return el
}

// HoldSeeks makes SetCurrentTime record the request without completing it;
// ReleaseSeeks completes every held seek.
func (e *Element) HoldSeeks() {
	e.mu.Lock()
	e.holdSeeks = true
	e.mu.Unlock()
}

func (e *Element) ReleaseSeeks() {
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.holdSeeks = false
	e.mu.Unlock()
	for range pending {
		e.Fire(port.EventSeeked)
		e.Fire(port.EventTimeUpdate)
	}
}

// FailSeeks makes every seek for which fn returns an error raise EventError.
func (e *Element) FailSeeks(fn func(t float64) error) {
	e.mu.Lock()
	e.seekErrAt = fn
	e.mu.Unlock()
}

// SetPosition moves the playhead without any event, as playback would.
func (e *Element) SetPosition(t float64) {
	e.mu.Lock()
	e.position = t
	e.mu.Unlock()
}

// SetPausedState flips the native paused flag without any event.
func (e *Element) SetPausedState(paused bool) {
	e.mu.Lock()
	e.paused = paused
	e.mu.Unlock()
}

// SetSize overrides the natural size, e.g. to simulate no decoded frame.
func (e *Element) SetSize(w, h int) {
	e.mu.Lock()
	e.width, e.height = w, h
	e.mu.Unlock()
}

// SetReadyState overrides the readiness level without any event.
func (e *Element) SetReadyState(rs port.ReadyState) {
	e.mu.Lock()
	e.ready = rs
	e.mu.Unlock()
}

// Muted and PreloadHint expose the options set by the code under test.
func (e *Element) Muted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

func (e *Element) PreloadHint() port.Preload {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.preload
}

// Seeks returns every SetCurrentTime argument, in call order.
func (e *Element) Seeks() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.seekCalls...)
}

// Loads counts explicit Load calls.
func (e *Element) Loads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadCalls
}

// Plays and Pauses count transport requests.
func (e *Element) Plays() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playCalls
}

func (e *Element) Pauses() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pauseCalls
}

// ListenerCount reports how many listeners are registered for ev.
func (e *Element) ListenerCount(ev port.MediaEvent) int {
	e.lmu.Lock()
	defer e.lmu.Unlock()
	return len(e.listeners[ev])
}

func (e *Element) Source() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src
}

func (e *Element) SetSource(src string) {
	e.mu.Lock()
	e.src = src
	e.mu.Unlock()
	e.reload()
}

func (e *Element) Load() {
	e.mu.Lock()
	e.loadCalls++
	e.mu.Unlock()
	e.reload()
}

func (e *Element) reload() {
	e.mu.Lock()
	e.duration = math.NaN()
	e.position = 0
	e.paused = true
	e.ready = port.HaveNothing
	e.width, e.height = 0, 0
	e.err = nil
	e.pending = nil
	m, ok := e.library[e.src]
	if !ok {
		m, ok = e.library[AnySource]
	}
	src := e.src
	e.mu.Unlock()

	e.Fire(port.EventEmptied)
	if src == "" || !ok {
		return
	}

	e.mu.Lock()
	e.duration = m.Duration
	e.ready = port.HaveMetadata
	e.mu.Unlock()
	e.Fire(port.EventLoadedMetadata)

	e.mu.Lock()
	e.width, e.height = m.Width, m.Height
	e.ready = port.HaveEnoughData
	e.mu.Unlock()
	e.Fire(port.EventLoadedData)
}

func (e *Element) Play() error {
	e.mu.Lock()
	e.playCalls++
	if e.src == "" || math.IsNaN(e.duration) {
		e.mu.Unlock()
		return ErrPlayRejected
	}
	wasPaused := e.paused
	e.paused = false
	e.mu.Unlock()
	if wasPaused {
		e.Fire(port.EventPlay)
	}
	return nil
}

func (e *Element) Pause() {
	e.mu.Lock()
	e.pauseCalls++
	wasPaused := e.paused
	e.paused = true
	e.mu.Unlock()
	if !wasPaused {
		e.Fire(port.EventPause)
	}
}

func (e *Element) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *Element) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

func (e *Element) SetCurrentTime(t float64) {
	e.mu.Lock()
	e.seekCalls = append(e.seekCalls, t)
	if !math.IsNaN(e.duration) {
		t = math.Max(0, math.Min(t, e.duration))
	}
	e.position = t
	var failure error
	if e.seekErrAt != nil {
		failure = e.seekErrAt(t)
	}
	if failure != nil {
		e.err = failure
		e.mu.Unlock()
		e.Fire(port.EventError)
		return
	}
	if e.holdSeeks {
		e.pending = append(e.pending, t)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.Fire(port.EventSeeked)
	e.Fire(port.EventTimeUpdate)
}

func (e *Element) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

func (e *Element) ReadyState() port.ReadyState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

func (e *Element) VideoSize() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.width, e.height
}

// CurrentFrame paints a solid frame whose red channel encodes the position
// in whole seconds, so tests can tell frames apart.
func (e *Element) CurrentFrame() image.Image {
	e.mu.Lock()
	w, h, pos := e.width, e.height, e.position
	e.mu.Unlock()
	if w == 0 || h == 0 {
		return nil
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c := color.RGBA{R: uint8(int(pos) % 256), G: 64, B: 128, A: 255}
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func (e *Element) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Element) SetMuted(muted bool) {
	e.mu.Lock()
	e.muted = muted
	e.mu.Unlock()
}

func (e *Element) SetPreload(p port.Preload) {
	e.mu.Lock()
	e.preload = p
	e.mu.Unlock()
}

func (e *Element) On(ev port.MediaEvent, fn func()) func() {
	e.lmu.Lock()
	defer e.lmu.Unlock()
	if e.listeners[ev] == nil {
		e.listeners[ev] = make(map[int]func())
	}
	id := e.nextID
	e.nextID++
	e.listeners[ev][id] = fn
	return func() {
		e.lmu.Lock()
		defer e.lmu.Unlock()
		delete(e.listeners[ev], id)
	}
}

// Fire invokes every listener of ev on the calling goroutine.
func (e *Element) Fire(ev port.MediaEvent) {
	e.lmu.Lock()
	fns := make([]func(), 0, len(e.listeners[ev]))
	for _, fn := range e.listeners[ev] {
		fns = append(fns, fn)
	}
	e.lmu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Factory hands out fake elements sharing one library and remembers them.
type Factory struct {
	mu       sync.Mutex
	library  map[string]Media
	setup    func(*Element)
	Elements []*Element
}

// NewFactory returns a factory; setup, if non-nil, runs on every new element.
func NewFactory(library map[string]Media, setup func(*Element)) *Factory {
	return &Factory{library: library, setup: setup}
}

func (f *Factory) NewElement() port.MediaElement {
	el := NewElement(f.library)
	if f.setup != nil {
		f.setup(el)
	}
	f.mu.Lock()
	f.Elements = append(f.Elements, el)
	f.mu.Unlock()
	return el
}

// Created returns the elements built so far.
func (f *Factory) Created() []*Element {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Element(nil), f.Elements...)
}
