package port

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ysrdora/nextframe/internal/domain/entity"
)

type JobRepository interface {
	Create(ctx context.Context, job *entity.CaptureJob) error
	Update(ctx context.Context, job *entity.CaptureJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.CaptureJob, error)
}

// FrameStore is the persistence collaborator for captured frames.
type FrameStore interface {
	Save(ctx context.Context, rec *entity.FrameRecord) error
	SaveBatch(ctx context.Context, recs []*entity.FrameRecord) error
	// List returns a session's records, most recent capture first.
	List(ctx context.Context, sessionID string) ([]*entity.FrameRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteMany(ctx context.Context, ids []uuid.UUID) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
