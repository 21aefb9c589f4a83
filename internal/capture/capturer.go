package capture

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/ysrdora/nextframe/internal/domain/entity"
	"github.com/ysrdora/nextframe/internal/domain/port"
	"github.com/ysrdora/nextframe/internal/media"
	"github.com/ysrdora/nextframe/internal/timecode"
)

const (
	StartFilename = "REFRAME_START.png"
	EndFilename   = "REFRAME_END.png"

	// EndEpsilon keeps the end seek short of the reported duration, where
	// decoders may have no frame to present.
	EndEpsilon = 0.01
)

// Filename is the single-shot name for a capture taken at t seconds.
func Filename(t float64) string {
	return "REFRAME_" + timecode.Compact(timecode.Format(t)) + ".png"
}

// EndTime is the seek target for the last frame of a source of duration d.
func EndTime(d float64) float64 {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	return math.Max(0, d-EndEpsilon)
}

// LiveSource exposes the visible element, or nil when none is attached.
type LiveSource interface {
	Element() port.MediaElement
}

// Capturer produces stills from the live element and, for boundary
// captures, from a private twin built by the factory.
type Capturer struct {
	live      LiveSource
	factory   port.ElementFactory
	flash     Flasher
	extractor *Extractor
	logger    *zap.Logger
}

func NewCapturer(live LiveSource, factory port.ElementFactory, flash Flasher, logger *zap.Logger) *Capturer {
	return &Capturer{
		live:      live,
		factory:   factory,
		flash:     flash,
		extractor: NewExtractor(),
		logger:    logger,
	}
}

// Capture grabs the frame the live element presents right now. The flash
// fires whenever an element is attached, even if no frame comes out.
func (c *Capturer) Capture() *entity.CapturedFrame {
	el := c.live.Element()
	if el == nil {
		return nil
	}
	c.flash.Trigger()
	return c.extractor.Extract(el, Filename(el.CurrentTime()))
}

// BatchCapture extracts the first and last frames through a muted twin of
// the live element, leaving the visible player untouched. It returns the
// frames that could be extracted, start before end. Nothing happens for a
// live element without a source or current frame data.
//
// The twin is always released before returning. A cancelled ctx ends the
// batch early with whatever was collected.
func (c *Capturer) BatchCapture(ctx context.Context) []entity.CapturedFrame {
	el := c.live.Element()
	if el == nil || el.Source() == "" || el.ReadyState() < port.HaveCurrentData {
		return nil
	}
	src := el.Source()

	c.flash.Trigger()

	twin := c.factory.NewElement()
	twin.SetMuted(true)
	twin.SetPreload(port.PreloadAuto)
	twin.SetSource(src)
	defer func() {
		twin.SetSource("")
		twin.Load()
	}()

	var frames []entity.CapturedFrame
	if err := media.WaitReady(ctx, twin, port.HaveCurrentData); err != nil {
		c.logger.Error("batch capture: twin never became ready", zap.String("source", src), zap.Error(err))
		return frames
	}

	if err := media.SeekAndWait(ctx, twin, 0); err != nil {
		c.logger.Error("batch capture: seek to start failed", zap.String("source", src), zap.Error(err))
		return frames
	}
	if f := c.extractor.Extract(twin, StartFilename); f != nil {
		frames = append(frames, *f)
	}

	end := EndTime(twin.Duration())
	if err := media.SeekAndWait(ctx, twin, end); err != nil {
		c.logger.Error("batch capture: seek to end failed",
			zap.String("source", src), zap.Float64("target", end), zap.Error(err))
		return frames
	}
	if f := c.extractor.Extract(twin, EndFilename); f != nil {
		frames = append(frames, *f)
	}
	return frames
}
