package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ysrdora/nextframe/internal/domain/entity"
)

// FrameRepository keeps captured frames per session.
type FrameRepository struct {
	pool *pgxpool.Pool
}

func NewFrameRepository(pool *pgxpool.Pool) *FrameRepository {
	return &FrameRepository{pool: pool}
}

func (r *FrameRepository) Save(ctx context.Context, rec *entity.FrameRecord) error {
	query := `
		INSERT INTO frames (id, session_id, data_url, filename, timestamp, video_source, captured_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.SessionID, rec.DataURL, rec.Filename,
		rec.Timestamp, rec.VideoSource, rec.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("insert frame: %w", err)
	}
	return nil
}

// SaveBatch stores records in one round trip.
func (r *FrameRepository) SaveBatch(ctx context.Context, recs []*entity.FrameRecord) error {
	batch := &pgx.Batch{}
	for _, rec := range recs {
		batch.Queue(`
			INSERT INTO frames (id, session_id, data_url, filename, timestamp, video_source, captured_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			rec.ID, rec.SessionID, rec.DataURL, rec.Filename,
			rec.Timestamp, rec.VideoSource, rec.CapturedAt,
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert frames: %w", err)
	}
	return nil
}

func (r *FrameRepository) List(ctx context.Context, sessionID string) ([]*entity.FrameRecord, error) {
	query := `
		SELECT id, session_id, data_url, filename, timestamp, video_source, captured_at
		FROM frames WHERE session_id=$1
		ORDER BY captured_at DESC, id`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	defer rows.Close()

	var recs []*entity.FrameRecord
	for rows.Next() {
		rec := &entity.FrameRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.SessionID, &rec.DataURL, &rec.Filename,
			&rec.Timestamp, &rec.VideoSource, &rec.CapturedAt,
		); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	return recs, nil
}

func (r *FrameRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM frames WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete frame: %w", err)
	}
	return nil
}

func (r *FrameRepository) DeleteMany(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM frames WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete frames: %w", err)
	}
	return nil
}

// DeleteOlderThan drops every frame captured before cutoff and reports how
// many went.
func (r *FrameRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM frames WHERE captured_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale frames: %w", err)
	}
	return tag.RowsAffected(), nil
}
