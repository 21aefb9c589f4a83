package entity

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const pngDataURLPrefix = "data:image/png;base64,"

// ErrNotPNGDataURL is returned when a frame payload is not a base64 PNG data URL.
var ErrNotPNGDataURL = errors.New("payload is not a png data url")

// CapturedFrame is one extracted still. It is immutable once created and is
// handed by value to whoever asked for it.
type CapturedFrame struct {
	DataURL   string  `json:"dataUrl"`
	Filename  string  `json:"filename"`
	Timestamp float64 `json:"timestamp"`
}

// NewPNGFrame wraps encoded PNG bytes into a CapturedFrame.
func NewPNGFrame(png []byte, filename string, timestamp float64) CapturedFrame {
	return CapturedFrame{
		DataURL:   pngDataURLPrefix + base64.StdEncoding.EncodeToString(png),
		Filename:  filename,
		Timestamp: timestamp,
	}
}

// PNG decodes the frame payload back to raw PNG bytes.
func (f CapturedFrame) PNG() ([]byte, error) {
	if !strings.HasPrefix(f.DataURL, pngDataURLPrefix) {
		return nil, ErrNotPNGDataURL
	}
	return base64.StdEncoding.DecodeString(f.DataURL[len(pngDataURLPrefix):])
}

// FrameRecord is a captured frame as kept by the persistence collaborator.
type FrameRecord struct {
	ID          uuid.UUID
	SessionID   string
	DataURL     string
	Filename    string
	Timestamp   float64
	VideoSource string
	CapturedAt  time.Time
}

func NewFrameRecord(sessionID, videoSource string, f CapturedFrame) *FrameRecord {
	return &FrameRecord{
		ID:          uuid.New(),
		SessionID:   sessionID,
		DataURL:     f.DataURL,
		Filename:    f.Filename,
		Timestamp:   f.Timestamp,
		VideoSource: videoSource,
		CapturedAt:  time.Now().UTC(),
	}
}

// Frame returns the record as a CapturedFrame.
func (r *FrameRecord) Frame() CapturedFrame {
	return CapturedFrame{DataURL: r.DataURL, Filename: r.Filename, Timestamp: r.Timestamp}
}

// MediaInfo is what a probe learns about a source before any frame is decoded.
type MediaInfo struct {
	Duration float64
	Width    int
	Height   int
}
