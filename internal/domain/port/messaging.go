package port

import (
	"context"

	"github.com/ysrdora/nextframe/internal/domain/entity"
)

// StatusPublisher announces job progress to downstream consumers.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, status entity.CaptureStatusMessage) error
}

// DLQPublisher parks a message that can never be processed.
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg []byte, reason string) error
}
