package port

import (
	"context"
	"io"
)

// ExportObject is one finished artifact of a capture job.
type ExportObject struct {
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string
	JobID       string
}

// ObjectStore moves source videos in and finished exports out of object storage.
type ObjectStore interface {
	FetchVideo(ctx context.Context, key, destPath string) error
	PutExport(ctx context.Context, obj ExportObject) error
	// ExportURL returns a time-limited download link for a stored export.
	ExportURL(ctx context.Context, key string) (string, error)
}
