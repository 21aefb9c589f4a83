package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ysrdora/nextframe/internal/domain/entity"
)

const jobColumns = `id, user_id, video_key, mode, bundle_key, sheet_key, status,
	frame_count, file_size, video_duration, attempt, max_attempts,
	error_message, created_at, updated_at, completed_at`

// JobRepository persists capture jobs in the capture_jobs table.
type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// jobRow mirrors one capture_jobs row.
type jobRow struct {
	ID            uuid.UUID  `db:"id"`
	UserID        string     `db:"user_id"`
	VideoKey      string     `db:"video_key"`
	Mode          string     `db:"mode"`
	BundleKey     string     `db:"bundle_key"`
	SheetKey      string     `db:"sheet_key"`
	Status        string     `db:"status"`
	FrameCount    int        `db:"frame_count"`
	FileSize      int64      `db:"file_size"`
	VideoDuration float64    `db:"video_duration"`
	Attempt       int        `db:"attempt"`
	MaxAttempts   int        `db:"max_attempts"`
	ErrorMessage  string     `db:"error_message"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
	CompletedAt   *time.Time `db:"completed_at"`
}

func (r jobRow) toEntity() *entity.CaptureJob {
	return &entity.CaptureJob{
		ID:            r.ID,
		UserID:        r.UserID,
		VideoKey:      r.VideoKey,
		Mode:          entity.CaptureMode(r.Mode),
		BundleKey:     r.BundleKey,
		SheetKey:      r.SheetKey,
		Status:        entity.JobStatus(r.Status),
		FrameCount:    r.FrameCount,
		FileSize:      r.FileSize,
		VideoDuration: r.VideoDuration,
		Attempt:       r.Attempt,
		MaxAttempts:   r.MaxAttempts,
		ErrorMessage:  r.ErrorMessage,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		CompletedAt:   r.CompletedAt,
	}
}

func jobArgs(job *entity.CaptureJob) pgx.NamedArgs {
	return pgx.NamedArgs{
		"id":             job.ID,
		"user_id":        job.UserID,
		"video_key":      job.VideoKey,
		"mode":           string(job.Mode),
		"bundle_key":     job.BundleKey,
		"sheet_key":      job.SheetKey,
		"status":         string(job.Status),
		"frame_count":    job.FrameCount,
		"file_size":      job.FileSize,
		"video_duration": job.VideoDuration,
		"attempt":        job.Attempt,
		"max_attempts":   job.MaxAttempts,
		"error_message":  job.ErrorMessage,
		"created_at":     job.CreatedAt,
		"updated_at":     job.UpdatedAt,
		"completed_at":   job.CompletedAt,
	}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.CaptureJob) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO capture_jobs (`+jobColumns+`) VALUES (
			@id, @user_id, @video_key, @mode, @bundle_key, @sheet_key, @status,
			@frame_count, @file_size, @video_duration, @attempt, @max_attempts,
			@error_message, @created_at, @updated_at, @completed_at)`,
		jobArgs(job),
	)
	if err != nil {
		return fmt.Errorf("insert capture job %s: %w", job.ID, err)
	}
	return nil
}

// Update writes the mutable lifecycle fields of a job.
func (r *JobRepository) Update(ctx context.Context, job *entity.CaptureJob) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE capture_jobs SET
			status=@status, bundle_key=@bundle_key, sheet_key=@sheet_key,
			frame_count=@frame_count, video_duration=@video_duration,
			attempt=@attempt, error_message=@error_message,
			updated_at=@updated_at, completed_at=@completed_at
		WHERE id=@id`,
		jobArgs(job),
	)
	if err != nil {
		return fmt.Errorf("update capture job %s: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update capture job %s: %w", job.ID, entity.ErrJobNotFound)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.CaptureJob, error) {
	rows, _ := r.pool.Query(ctx, `SELECT `+jobColumns+` FROM capture_jobs WHERE id=$1`, id)
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[jobRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find capture job %s: %w", id, err)
	}
	return row.toEntity(), nil
}
