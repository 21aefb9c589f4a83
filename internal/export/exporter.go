package export

import (
	"context"

	"github.com/ysrdora/nextframe/internal/domain/entity"
)

// Exporter writes both export formats to disk.
type Exporter struct {
	sheet *ContactSheet
}

func NewExporter() *Exporter {
	return &Exporter{sheet: NewContactSheet()}
}

func (e *Exporter) CreateBundle(ctx context.Context, frames []entity.CapturedFrame, outputPath string) error {
	return CreateBundle(ctx, frames, outputPath)
}

func (e *Exporter) CreateContactSheet(ctx context.Context, frames []entity.CapturedFrame, videoName, outputPath string) error {
	return e.sheet.Create(ctx, frames, videoName, outputPath)
}
