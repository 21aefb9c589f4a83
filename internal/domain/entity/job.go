package entity

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrJobNotFound is returned by job repositories for unknown job IDs.
var ErrJobNotFound = errors.New("capture job not found")

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// CaptureMode selects which frames a capture job extracts.
type CaptureMode string

const (
	// CaptureModeBoundary takes the first and last frame of the video.
	CaptureModeBoundary CaptureMode = "boundary"
	// CaptureModeTimestamps takes one frame at each requested timestamp.
	CaptureModeTimestamps CaptureMode = "timestamps"
	// CaptureModeInterval samples the whole video at the configured fps.
	CaptureModeInterval CaptureMode = "interval"
)

func (m CaptureMode) Valid() bool {
	switch m {
	case CaptureModeBoundary, CaptureModeTimestamps, CaptureModeInterval:
		return true
	}
	return false
}

type CaptureJob struct {
	ID            uuid.UUID
	UserID        string
	VideoKey      string
	Mode          CaptureMode
	BundleKey     string
	SheetKey      string
	Status        JobStatus
	FrameCount    int
	FileSize      int64
	VideoDuration float64
	Attempt       int
	MaxAttempts   int
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

func NewCaptureJob(userID, videoKey string, mode CaptureMode, fileSize int64, maxAttempts int) *CaptureJob {
	now := time.Now().UTC()
	return &CaptureJob{
		ID:          uuid.New(),
		UserID:      userID,
		VideoKey:    videoKey,
		Mode:        mode,
		FileSize:    fileSize,
		Status:      JobStatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (j *CaptureJob) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.UpdatedAt = time.Now().UTC()
}

func (j *CaptureJob) MarkCompleted(bundleKey, sheetKey string, frameCount int, duration float64) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.BundleKey = bundleKey
	j.SheetKey = sheetKey
	j.FrameCount = frameCount
	j.VideoDuration = duration
	j.ErrorMessage = ""
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *CaptureJob) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *CaptureJob) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
