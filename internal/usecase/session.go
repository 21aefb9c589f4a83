package usecase

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ysrdora/nextframe/internal/capture"
	"github.com/ysrdora/nextframe/internal/domain/entity"
	"github.com/ysrdora/nextframe/internal/domain/port"
	"github.com/ysrdora/nextframe/internal/export"
	"github.com/ysrdora/nextframe/internal/gallery"
	"github.com/ysrdora/nextframe/internal/infra/metrics"
	"github.com/ysrdora/nextframe/internal/infra/tracing"
	"github.com/ysrdora/nextframe/internal/media"
	"github.com/ysrdora/nextframe/internal/player"
)

// Keys understood by HandleKey, named as browsers report them.
const (
	KeySpace      = " "
	KeySpaceCode  = "Space"
	KeyArrowLeft  = "ArrowLeft"
	KeyArrowRight = "ArrowRight"
)

// Session is one editor: a live element with its tracker, the capture
// engine working on it and the gallery collecting the results. A
// FrameStore, when given, mirrors the gallery.
type Session struct {
	id     string
	logger *zap.Logger
	store  port.FrameStore

	element  port.MediaElement
	tracker  *player.Tracker
	flash    *capture.Flash
	capturer *capture.Capturer
	gallery  *gallery.Gallery
	sheet    *export.ContactSheet

	mu        sync.Mutex
	name      string
	closed    bool
	createdAt time.Time
	onFlash   func(active bool)
}

func NewSession(id string, factory port.ElementFactory, store port.FrameStore, logger *zap.Logger) *Session {
	log := logger.With(zap.String("session_id", id))
	tracker := player.NewTracker(log)
	el := factory.NewElement()
	tracker.Attach(el)

	metrics.ActiveSessions.Inc()
	s := &Session{
		id:        id,
		logger:    log,
		store:     store,
		element:   el,
		tracker:   tracker,
		gallery:   gallery.New(),
		sheet:     export.NewContactSheet(),
		createdAt: time.Now().UTC(),
	}
	s.flash = capture.NewFlash(s.flashChanged)
	s.capturer = capture.NewCapturer(tracker, factory, s.flash, log)
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Name is the display name of the open video.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Open binds src to the live element; name is what exports are titled after.
func (s *Session) Open(src, name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
	s.element.SetSource(src)
}

// WaitLoaded blocks until the live element has a frame to show.
func (s *Session) WaitLoaded(ctx context.Context) error {
	if err := media.WaitReady(ctx, s.element, port.HaveCurrentData); err != nil {
		return fmt.Errorf("load video: %w", err)
	}
	return nil
}

func (s *Session) Tracker() *player.Tracker { return s.tracker }

func (s *Session) State() player.State { return s.tracker.State() }

// OnFlash sets fn to be called whenever the capture acknowledgement shows
// or clears. It replaces any earlier callback.
func (s *Session) OnFlash(fn func(active bool)) {
	s.mu.Lock()
	s.onFlash = fn
	s.mu.Unlock()
}

func (s *Session) flashChanged(active bool) {
	s.mu.Lock()
	fn := s.onFlash
	s.mu.Unlock()
	if fn != nil {
		fn(active)
	}
}

func (s *Session) Gallery() *gallery.Gallery { return s.gallery }

func (s *Session) TogglePlay() { s.tracker.TogglePlay() }

func (s *Session) Seek(percent float64) { s.tracker.Seek(percent) }

func (s *Session) StepFrame(dir player.Direction) { s.tracker.StepFrame(dir) }

func (s *Session) SeekTo(ctx context.Context, seconds float64) error {
	return s.tracker.SeekTo(ctx, seconds)
}

// HandleKey applies the editor shortcuts and reports whether key is one.
func (s *Session) HandleKey(key string) bool {
	switch key {
	case KeySpace, KeySpaceCode:
		s.tracker.TogglePlay()
	case KeyArrowRight:
		s.tracker.StepFrame(player.Forward)
	case KeyArrowLeft:
		s.tracker.StepFrame(player.Backward)
	default:
		return false
	}
	return true
}

// Capture grabs the current frame into the gallery. It returns nil when
// there was nothing to grab.
func (s *Session) Capture(ctx context.Context) *gallery.Item {
	f := s.capturer.Capture()
	if f == nil {
		return nil
	}
	metrics.FramesCapturedTotal.WithLabelValues("single").Inc()
	item := s.gallery.Append(*f)
	s.persist(ctx, []gallery.Item{item})
	return &item
}

// CaptureAt seeks to t, waits for the frame there and captures it.
func (s *Session) CaptureAt(ctx context.Context, t float64) (*gallery.Item, error) {
	start := time.Now()
	if err := s.tracker.SeekTo(ctx, t); err != nil {
		return nil, fmt.Errorf("seek to %.3f: %w", t, err)
	}
	metrics.SeekLatency.Observe(time.Since(start).Seconds())
	return s.Capture(ctx), nil
}

// BatchCapture adds the first and last frames of the video to the gallery.
func (s *Session) BatchCapture(ctx context.Context) []gallery.Item {
	ctx, span := tracing.Tracer().Start(ctx, "Session.BatchCapture")
	defer span.End()

	start := time.Now()
	frames := s.capturer.BatchCapture(ctx)
	metrics.BatchCaptureDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("frames", len(frames)))

	if len(frames) == 0 {
		return nil
	}
	metrics.FramesCapturedTotal.WithLabelValues("boundary").Add(float64(len(frames)))
	items := s.gallery.AppendAll(frames)
	s.persist(ctx, items)
	return items
}

// AddFrames puts frames obtained elsewhere into the gallery.
func (s *Session) AddFrames(ctx context.Context, frames []entity.CapturedFrame) []gallery.Item {
	items := s.gallery.AppendAll(frames)
	s.persist(ctx, items)
	return items
}

func (s *Session) persist(ctx context.Context, items []gallery.Item) {
	if s.store == nil || len(items) == 0 {
		return
	}
	recs := make([]*entity.FrameRecord, len(items))
	for i, it := range items {
		rec := entity.NewFrameRecord(s.id, s.Name(), it.Frame)
		rec.ID = it.ID
		rec.CapturedAt = it.CapturedAt
		recs[i] = rec
	}
	if err := s.store.SaveBatch(ctx, recs); err != nil {
		s.logger.Error("failed to persist frames", zap.Int("count", len(recs)), zap.Error(err))
	}
}

// Restore loads previously stored frames into an empty gallery.
func (s *Session) Restore(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	recs, err := s.store.List(ctx, s.id)
	if err != nil {
		return 0, fmt.Errorf("restore frames: %w", err)
	}
	for i := len(recs) - 1; i >= 0; i-- {
		s.gallery.AppendItem(gallery.Item{ID: recs[i].ID, Frame: recs[i].Frame(), CapturedAt: recs[i].CapturedAt})
	}
	return len(recs), nil
}

// RemoveFrame drops one gallery item and its stored copy.
func (s *Session) RemoveFrame(ctx context.Context, id uuid.UUID) bool {
	if !s.gallery.Remove(id) {
		return false
	}
	if s.store != nil {
		if err := s.store.Delete(ctx, id); err != nil {
			s.logger.Error("failed to delete stored frame", zap.String("frame_id", id.String()), zap.Error(err))
		}
	}
	return true
}

// ClearFrames empties the gallery and the stored copies.
func (s *Session) ClearFrames(ctx context.Context) {
	items := s.gallery.Items()
	s.gallery.Clear()
	if s.store == nil || len(items) == 0 {
		return
	}
	ids := make([]uuid.UUID, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	if err := s.store.DeleteMany(ctx, ids); err != nil {
		s.logger.Error("failed to delete stored frames", zap.Int("count", len(ids)), zap.Error(err))
	}
}

func (s *Session) WriteBundle(ctx context.Context, w io.Writer) error {
	return export.WriteBundle(ctx, w, s.gallery.Frames())
}

func (s *Session) WriteContactSheet(w io.Writer) error {
	return s.sheet.Write(w, s.gallery.Frames(), s.Name())
}

// Close releases the live element. The gallery stays readable.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.tracker.Attach(nil)
	s.element.SetSource("")
	s.element.Load()
	metrics.ActiveSessions.Dec()
}
