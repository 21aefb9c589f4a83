// Package capture turns what a media element presents into encoded stills.
package capture

import (
	"bytes"
	"image"
	"image/draw"
	"image/png"
	"sync"

	"github.com/ysrdora/nextframe/internal/domain/entity"
)

// Drawable is the read-only view of an element the extractor needs.
type Drawable interface {
	VideoSize() (width, height int)
	CurrentFrame() image.Image
	CurrentTime() float64
}

// Extractor rasterizes the presented frame onto one reusable surface and
// encodes it as PNG. The surface is overwritten on every call and never
// leaves the extractor.
type Extractor struct {
	mu      sync.Mutex
	surface *image.RGBA
	enc     png.Encoder
}

func NewExtractor() *Extractor {
	return &Extractor{enc: png.Encoder{CompressionLevel: png.BestSpeed}}
}

// Extract returns nil when src has no decoded frame yet.
func (e *Extractor) Extract(src Drawable, filename string) *entity.CapturedFrame {
	if src == nil {
		return nil
	}
	w, h := src.VideoSize()
	if w <= 0 || h <= 0 {
		return nil
	}
	frame := src.CurrentFrame()
	if frame == nil {
		return nil
	}
	ts := src.CurrentTime()

	e.mu.Lock()
	defer e.mu.Unlock()

	surface := e.resize(w, h)
	draw.Draw(surface, surface.Bounds(), frame, frame.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	if err := e.enc.Encode(&buf, surface); err != nil {
		return nil
	}
	f := entity.NewPNGFrame(buf.Bytes(), filename, ts)
	return &f
}

// resize fits the surface to w x h, reusing its backing array when large
// enough. Pixels a smaller frame would not cover are cleared.
func (e *Extractor) resize(w, h int) *image.RGBA {
	rect := image.Rect(0, 0, w, h)
	needed := w * h * 4
	if e.surface == nil || cap(e.surface.Pix) < needed {
		e.surface = image.NewRGBA(rect)
		return e.surface
	}
	e.surface.Pix = e.surface.Pix[:needed]
	e.surface.Stride = w * 4
	e.surface.Rect = rect
	clear(e.surface.Pix)
	return e.surface
}
