package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ysrdora/nextframe/internal/domain/entity"
	"github.com/ysrdora/nextframe/internal/domain/port"
)

// ErrNotLoaded is returned by Play before metadata is known.
var ErrNotLoaded = errors.New("media not loaded")

const DefaultTickInterval = 250 * time.Millisecond

type MediaProber interface {
	Probe(ctx context.Context, src string) (entity.MediaInfo, error)
}

type PictureDecoder interface {
	DecodeAt(ctx context.Context, src string, t float64) (image.Image, error)
}

type ElementConfig struct {
	// TickInterval is the playback clock resolution and timeupdate cadence.
	TickInterval time.Duration
	// OnSeek, if set, receives the decode latency of every completed seek.
	OnSeek func(time.Duration)
}

// Element is a port.MediaElement backed by ffprobe and ffmpeg. Loads and
// seeks run in the background and report through events; listeners run
// one at a time on a dispatcher goroutine that exits when idle.
type Element struct {
	prober  MediaProber
	decoder PictureDecoder
	cfg     ElementConfig
	logger  *zap.Logger

	mu         sync.Mutex
	src        string
	duration   float64
	position   float64
	paused     bool
	ready      port.ReadyState
	frame      image.Image
	err        error
	muted      bool
	preload    port.Preload
	loadGen    uint64
	seekGen    uint64
	settled    uint64
	presentGen uint64
	presenting bool
	inflight   uint64
	loadCtx    context.Context
	cancelLoad context.CancelFunc
	stopPlay   context.CancelFunc

	lmu       sync.Mutex
	listeners map[port.MediaEvent]map[int]func()
	nextID    int

	qmu         sync.Mutex
	queue       []port.MediaEvent
	dispatching bool
}

func NewElement(prober MediaProber, decoder PictureDecoder, cfg ElementConfig, logger *zap.Logger) *Element {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Element{
		prober:     prober,
		decoder:    decoder,
		cfg:        cfg,
		logger:     logger,
		duration:   math.NaN(),
		paused:     true,
		preload:    port.PreloadAuto,
		loadCtx:    ctx,
		cancelLoad: cancel,
		listeners:  make(map[port.MediaEvent]map[int]func()),
	}
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
	e.Load()
}

func (e *Element) Load() {
	e.mu.Lock()
	e.resetLocked()
	src, preload := e.src, e.preload
	gen, ctx := e.loadGen, e.loadCtx
	e.mu.Unlock()

	e.emit(port.EventEmptied)
	if src == "" {
		return
	}
	go e.load(ctx, gen, src, preload)
}

// resetLocked aborts all in-flight work and drops everything decoded.
func (e *Element) resetLocked() {
	e.cancelLoad()
	e.stopPlaybackLocked()
	e.loadGen++
	e.seekGen++
	e.presentGen++
	e.loadCtx, e.cancelLoad = context.WithCancel(context.Background())
	e.duration = math.NaN()
	e.position = 0
	e.paused = true
	e.ready = port.HaveNothing
	e.frame = nil
	e.err = nil
}

func (e *Element) load(ctx context.Context, gen uint64, src string, preload port.Preload) {
	info, err := e.prober.Probe(ctx, src)
	if err != nil {
		e.fail(gen, fmt.Errorf("probe %s: %w", src, err))
		return
	}

	e.mu.Lock()
	if e.loadGen != gen {
		e.mu.Unlock()
		return
	}
	e.duration = info.Duration
	e.ready = port.HaveMetadata
	e.position = clampPosition(e.position, e.duration)
	pos, seek := e.position, e.seekGen
	e.mu.Unlock()
	e.emit(port.EventLoadedMetadata)

	if preload != port.PreloadAuto {
		return
	}

	img, err := e.decoder.DecodeAt(ctx, src, pos)
	if err != nil {
		e.fail(gen, fmt.Errorf("decode first frame: %w", err))
		return
	}
	e.mu.Lock()
	if e.loadGen != gen {
		e.mu.Unlock()
		return
	}
	if e.seekGen == seek {
		e.frame = img
	}
	e.ready = port.HaveEnoughData
	e.mu.Unlock()
	e.emit(port.EventLoadedData)
}

func (e *Element) fail(gen uint64, err error) {
	e.mu.Lock()
	if e.loadGen != gen {
		e.mu.Unlock()
		return
	}
	e.err = err
	e.mu.Unlock()

	e.logger.Debug("media element error", zap.Error(err))
	e.emit(port.EventError)
}

func (e *Element) Play() error {
	e.mu.Lock()
	if e.src == "" || e.ready < port.HaveMetadata || !validDuration(e.duration) {
		e.mu.Unlock()
		return ErrNotLoaded
	}
	if !e.paused {
		e.mu.Unlock()
		return nil
	}
	if e.position >= e.duration {
		e.position = 0
	}
	e.paused = false
	ctx, stop := context.WithCancel(e.loadCtx)
	e.stopPlay = stop
	gen := e.loadGen
	e.mu.Unlock()

	e.emit(port.EventPlay)
	go e.run(ctx, gen)
	return nil
}

// run advances the playback clock until paused, ended or reloaded.
func (e *Element) run(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			elapsed := now.Sub(last).Seconds()
			last = now
			if !e.advance(gen, elapsed) {
				return
			}
		}
	}
}

func (e *Element) advance(gen uint64, elapsed float64) bool {
	e.mu.Lock()
	if e.loadGen != gen || e.paused {
		e.mu.Unlock()
		return false
	}
	e.position += elapsed
	ended := e.position >= e.duration
	if ended {
		e.position = e.duration
		e.paused = true
		e.stopPlaybackLocked()
	}
	e.mu.Unlock()

	e.emit(port.EventTimeUpdate)
	if ended {
		e.emit(port.EventPause)
		e.emit(port.EventEnded)
	}
	e.present(ended)
	return !ended
}

func (e *Element) Pause() {
	e.mu.Lock()
	if e.paused {
		e.mu.Unlock()
		return
	}
	e.paused = true
	e.stopPlaybackLocked()
	e.mu.Unlock()

	e.emit(port.EventPause)
	e.present(true)
}

// present decodes the picture at the current position in the background
// without raising events. Unless forced it is skipped while another
// presentation is still decoding.
func (e *Element) present(force bool) {
	e.mu.Lock()
	if e.presenting && !force {
		e.mu.Unlock()
		return
	}
	e.presenting = true
	e.presentGen++
	e.inflight = e.presentGen
	gen, seek, present := e.loadGen, e.seekGen, e.presentGen
	ctx, src, pos := e.loadCtx, e.src, e.position
	e.mu.Unlock()

	go func() {
		img, err := e.decoder.DecodeAt(ctx, src, pos)

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.inflight == present {
			e.presenting = false
		}
		if err != nil {
			e.logger.Debug("present frame failed", zap.Float64("position", pos), zap.Error(err))
			return
		}
		if e.loadGen == gen && e.seekGen == seek && e.presentGen == present {
			e.frame = img
		}
	}()
}

func (e *Element) stopPlaybackLocked() {
	if e.stopPlay != nil {
		e.stopPlay()
		e.stopPlay = nil
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

// SetCurrentTime moves the playhead at once and decodes the picture there in
// the background. Only the latest seek reports seeked.
func (e *Element) SetCurrentTime(t float64) {
	e.mu.Lock()
	e.position = clampPosition(t, e.duration)
	if e.ready < port.HaveMetadata {
		e.mu.Unlock()
		return
	}
	e.seekGen++
	e.presentGen++
	gen, seek := e.loadGen, e.seekGen
	ctx, src, pos := e.loadCtx, e.src, e.position
	e.mu.Unlock()

	go e.seek(ctx, gen, seek, src, pos)
}

func (e *Element) SeekIssued() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seekGen
}

func (e *Element) SeekSettled() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settled
}

func (e *Element) seek(ctx context.Context, gen, seek uint64, src string, t float64) {
	start := time.Now()
	img, err := e.decoder.DecodeAt(ctx, src, t)

	e.mu.Lock()
	if e.loadGen != gen || e.seekGen != seek {
		e.mu.Unlock()
		return
	}
	if err != nil {
		e.err = fmt.Errorf("seek to %.3f: %w", t, err)
		e.mu.Unlock()
		e.logger.Debug("seek failed", zap.Float64("target", t), zap.Error(err))
		e.emit(port.EventError)
		return
	}
	e.frame = img
	e.settled = seek
	if e.ready < port.HaveEnoughData {
		e.ready = port.HaveEnoughData
	}
	e.mu.Unlock()

	if e.cfg.OnSeek != nil {
		e.cfg.OnSeek(time.Since(start))
	}
	e.emit(port.EventSeeked)
	e.emit(port.EventTimeUpdate)
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
	if e.frame == nil {
		return 0, 0
	}
	b := e.frame.Bounds()
	return b.Dx(), b.Dy()
}

// CurrentFrame returns the last decoded picture. Pictures are never
// modified after decoding.
func (e *Element) CurrentFrame() image.Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frame
}

func (e *Element) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// SetMuted is recorded only; the element never renders audio.
func (e *Element) SetMuted(muted bool) {
	e.mu.Lock()
	e.muted = muted
	e.mu.Unlock()
}

func (e *Element) Muted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

// SetPreload applies from the next load. Anything but PreloadAuto stops
// after metadata; the first picture then arrives with the first seek.
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

	var once sync.Once
	return func() {
		once.Do(func() {
			e.lmu.Lock()
			delete(e.listeners[ev], id)
			e.lmu.Unlock()
		})
	}
}

// emit queues ev; a dispatcher goroutine is started if none is running.
func (e *Element) emit(ev port.MediaEvent) {
	e.qmu.Lock()
	e.queue = append(e.queue, ev)
	if e.dispatching {
		e.qmu.Unlock()
		return
	}
	e.dispatching = true
	e.qmu.Unlock()

	go e.dispatch()
}

func (e *Element) dispatch() {
	for {
		e.qmu.Lock()
		if len(e.queue) == 0 {
			e.dispatching = false
			e.qmu.Unlock()
			return
		}
		ev := e.queue[0]
		e.queue = e.queue[1:]
		e.qmu.Unlock()

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
}

func clampPosition(t, duration float64) float64 {
	if math.IsNaN(t) || t < 0 {
		return 0
	}
	if validDuration(duration) && t > duration {
		return duration
	}
	return t
}

func validDuration(d float64) bool {
	return !math.IsNaN(d) && !math.IsInf(d, 0) && d > 0
}

// Factory builds elements sharing one prober, decoder and configuration.
type Factory struct {
	prober  MediaProber
	decoder PictureDecoder
	cfg     ElementConfig
	logger  *zap.Logger
}

func NewFactory(prober MediaProber, decoder PictureDecoder, cfg ElementConfig, logger *zap.Logger) *Factory {
	return &Factory{prober: prober, decoder: decoder, cfg: cfg, logger: logger}
}

func (f *Factory) NewElement() port.MediaElement {
	return NewElement(f.prober, f.decoder, f.cfg, f.logger)
}
