package entity

import "github.com/google/uuid"

// CaptureRequestMessage is the inbound message from the frames.capture queue.
type CaptureRequestMessage struct {
	JobID      uuid.UUID   `json:"job_id"`
	UserID     string      `json:"user_id"`
	VideoKey   string      `json:"video_key"`
	FileSize   int64       `json:"file_size"`
	UserEmail  string      `json:"user_email"`
	Mode       CaptureMode `json:"mode"`
	Timestamps []float64   `json:"timestamps,omitempty"`
}

// CaptureStatusMessage is the outbound message published to the frames.status queue.
type CaptureStatusMessage struct {
	JobID        uuid.UUID   `json:"job_id"`
	UserID       string      `json:"user_id"`
	Status       JobStatus   `json:"status"`
	Mode         CaptureMode `json:"mode"`
	VideoKey     string      `json:"video_key"`
	BundleKey    string      `json:"bundle_key,omitempty"`
	SheetKey     string      `json:"sheet_key,omitempty"`
	BundleURL    string      `json:"bundle_url,omitempty"`
	FrameCount   int         `json:"frame_count,omitempty"`
	Duration     float64     `json:"duration_seconds,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Attempt      int         `json:"attempt"`
	MaxAttempts  int         `json:"max_attempts"`
}
