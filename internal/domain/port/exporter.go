package port

import (
	"context"

	"github.com/ysrdora/nextframe/internal/domain/entity"
)

// Exporter serialises a set of captured frames to files.
type Exporter interface {
	CreateBundle(ctx context.Context, frames []entity.CapturedFrame, outputPath string) error
	CreateContactSheet(ctx context.Context, frames []entity.CapturedFrame, videoName string, outputPath string) error
}
