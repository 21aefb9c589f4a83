package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ysrdora/nextframe/internal/capture"
	"github.com/ysrdora/nextframe/internal/domain/entity"
	"github.com/ysrdora/nextframe/internal/domain/port"
	"github.com/ysrdora/nextframe/internal/export"
	"github.com/ysrdora/nextframe/internal/infra/metrics"
	"github.com/ysrdora/nextframe/internal/infra/tracing"
)

var errNoFrames = errors.New("no frames captured")

// CaptureJobUseCase runs capture requests coming from the queue: it fetches
// the video, captures frames according to the job mode, stores them and
// uploads the exports.
type CaptureJobUseCase struct {
	repo      port.JobRepository
	frames    port.FrameStore
	storage   port.ObjectStore
	factory   port.ElementFactory
	sampler   port.FrameSampler
	exporter  port.Exporter
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	cfg       CaptureJobConfig
}

type CaptureJobConfig struct {
	TempDir     string
	MaxRetries  int
	LoadTimeout time.Duration
}

func NewCaptureJobUseCase(
	repo port.JobRepository,
	frames port.FrameStore,
	storage port.ObjectStore,
	factory port.ElementFactory,
	sampler port.FrameSampler,
	exporter port.Exporter,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg CaptureJobConfig,
) *CaptureJobUseCase {
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 30 * time.Second
	}
	return &CaptureJobUseCase{
		repo:      repo,
		frames:    frames,
		storage:   storage,
		factory:   factory,
		sampler:   sampler,
		exporter:  exporter,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
	}
}

// Execute handles one raw queue message. A returned error asks the consumer
// to requeue it.
func (uc *CaptureJobUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	ctx, span := tracing.Tracer().Start(ctx, "CaptureJobUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.CaptureRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}
	if err := validateRequest(msg); err != nil {
		uc.logger.Error("invalid capture request", zap.Error(err), zap.String("job_id", msg.JobID.String()))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "invalid_request: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
		attribute.String("job.mode", string(msg.Mode)),
	)

	log := uc.logger.With(
		zap.String("job_id", msg.JobID.String()),
		zap.String("video_key", msg.VideoKey),
		zap.String("mode", string(msg.Mode)),
	)

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	switch {
	case errors.Is(err, entity.ErrJobNotFound):
		job = entity.NewCaptureJob(msg.UserID, msg.VideoKey, msg.Mode, msg.FileSize, uc.cfg.MaxRetries)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	case err != nil:
		log.Error("failed to load job record", zap.Error(err))
		return fmt.Errorf("load job: %w", err)
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded")
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.pipeline(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.JobProcessingDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())
	return nil
}

func validateRequest(msg entity.CaptureRequestMessage) error {
	switch {
	case msg.VideoKey == "":
		return errors.New("missing video_key")
	case !msg.Mode.Valid():
		return fmt.Errorf("unknown mode %q", msg.Mode)
	case msg.Mode == entity.CaptureModeTimestamps && len(msg.Timestamps) == 0:
		return errors.New("timestamps mode without timestamps")
	}
	return nil
}

// stage runs fn inside a span and records its duration.
func stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, span := tracing.Tracer().Start(ctx, name)
	defer span.End()
	err := fn(ctx)
	if err == nil {
		metrics.JobProcessingDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	} else {
		span.RecordError(err)
	}
	return err
}

func (uc *CaptureJobUseCase) pipeline(
	ctx context.Context,
	job *entity.CaptureJob,
	msg entity.CaptureRequestMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	workDir := filepath.Join(uc.cfg.TempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	videoPath := filepath.Join(workDir, "input"+filepath.Ext(msg.VideoKey))
	if err := stage(ctx, "download", func(ctx context.Context) error {
		return uc.storage.FetchVideo(ctx, msg.VideoKey, videoPath)
	}); err != nil {
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_video: "+err.Error(), log)
	}

	var frames []entity.CapturedFrame
	var duration float64
	if err := stage(ctx, "capture", func(ctx context.Context) error {
		var err error
		frames, duration, err = uc.captureFrames(ctx, job, msg, videoPath, workDir)
		return err
	}); err != nil {
		log.Error("frame capture failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "capture_frames: "+err.Error(), log)
	}

	if err := stage(ctx, "persist", func(ctx context.Context) error {
		recs := make([]*entity.FrameRecord, len(frames))
		for i, f := range frames {
			recs[i] = entity.NewFrameRecord(job.ID.String(), msg.VideoKey, f)
		}
		return uc.frames.SaveBatch(ctx, recs)
	}); err != nil {
		log.Error("failed to store frames", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "persist_frames: "+err.Error(), log)
	}

	prefix := msg.UserID + "/" + job.ID.String() + "/"
	bundleKey := prefix + export.BundleFilename(msg.VideoKey)
	sheetKey := prefix + export.ContactSheetFilename(msg.VideoKey)
	if err := stage(ctx, "export", func(ctx context.Context) error {
		return uc.export(ctx, job.ID.String(), frames, msg.VideoKey, workDir, bundleKey, sheetKey)
	}); err != nil {
		log.Error("export failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "export: "+err.Error(), log)
	}

	job.MarkCompleted(bundleKey, sheetKey, len(frames), duration)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	status := statusMessage(job)
	if url, err := uc.storage.ExportURL(ctx, bundleKey); err != nil {
		log.Warn("could not presign bundle url", zap.Error(err))
	} else {
		status.BundleURL = url
	}
	uc.publish(ctx, status, log)

	log.Info("job completed successfully",
		zap.Int("frame_count", len(frames)),
		zap.Float64("duration_secs", duration),
		zap.String("bundle_key", bundleKey),
	)
	return nil
}

// captureFrames returns the frames for the job mode and the video duration.
func (uc *CaptureJobUseCase) captureFrames(
	ctx context.Context,
	job *entity.CaptureJob,
	msg entity.CaptureRequestMessage,
	videoPath, workDir string,
) ([]entity.CapturedFrame, float64, error) {
	if msg.Mode == entity.CaptureModeInterval {
		return uc.captureInterval(ctx, videoPath, workDir)
	}

	session := NewSession(job.ID.String(), uc.factory, nil, uc.logger)
	defer session.Close()
	session.Open(videoPath, msg.VideoKey)

	loadCtx, cancel := context.WithTimeout(ctx, uc.cfg.LoadTimeout)
	defer cancel()
	if err := session.WaitLoaded(loadCtx); err != nil {
		return nil, 0, err
	}

	switch msg.Mode {
	case entity.CaptureModeBoundary:
		session.BatchCapture(ctx)
	case entity.CaptureModeTimestamps:
		for _, t := range msg.Timestamps {
			if _, err := session.CaptureAt(ctx, t); err != nil {
				return nil, 0, err
			}
		}
	}

	frames := session.Gallery().Frames()
	if len(frames) == 0 {
		return nil, 0, errNoFrames
	}
	return frames, session.State().Duration, nil
}

func (uc *CaptureJobUseCase) captureInterval(ctx context.Context, videoPath, workDir string) ([]entity.CapturedFrame, float64, error) {
	framesDir := filepath.Join(workDir, "frames")
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		return nil, 0, fmt.Errorf("create frames dir: %w", err)
	}

	result, err := uc.sampler.SampleFrames(ctx, videoPath, framesDir)
	if err != nil {
		return nil, 0, err
	}

	frames := make([]entity.CapturedFrame, 0, len(result.Paths))
	for i, path := range result.Paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, 0, fmt.Errorf("read frame: %w", err)
		}
		ts := float64(i) / result.FPS
		frames = append(frames, entity.NewPNGFrame(data, capture.Filename(ts), ts))
	}
	if len(frames) == 0 {
		return nil, 0, errNoFrames
	}
	metrics.FramesCapturedTotal.WithLabelValues(string(entity.CaptureModeInterval)).Add(float64(len(frames)))
	return frames, result.Duration, nil
}

func (uc *CaptureJobUseCase) export(ctx context.Context, jobID string, frames []entity.CapturedFrame, videoName, workDir, bundleKey, sheetKey string) error {
	bundlePath := filepath.Join(workDir, "frames.zip")
	if err := uc.exporter.CreateBundle(ctx, frames, bundlePath); err != nil {
		return err
	}
	sheetPath := filepath.Join(workDir, "contact_sheet.html")
	if err := uc.exporter.CreateContactSheet(ctx, frames, videoName, sheetPath); err != nil {
		return err
	}

	if err := uc.upload(ctx, jobID, bundlePath, bundleKey, "application/zip"); err != nil {
		return err
	}
	return uc.upload(ctx, jobID, sheetPath, sheetKey, "text/html; charset=utf-8")
}

func (uc *CaptureJobUseCase) upload(ctx context.Context, jobID, path, key, contentType string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", filepath.Base(path), err)
	}
	return uc.storage.PutExport(ctx, port.ExportObject{
		Key:         key,
		Body:        file,
		Size:        stat.Size(),
		ContentType: contentType,
		JobID:       jobID,
	})
}

func (uc *CaptureJobUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.CaptureJob,
	msg entity.CaptureRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *CaptureJobUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.CaptureJob,
	msg entity.CaptureRequestMessage,
	rawMsg []byte,
	errMsg string,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, uc.logger)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, port.FailureNotice{
			UserEmail: msg.UserEmail,
			JobID:     job.ID.String(),
			VideoKey:  msg.VideoKey,
			Mode:      string(msg.Mode),
			Reason:    errMsg,
		})
	}

	return nil
}

func (uc *CaptureJobUseCase) publishStatus(ctx context.Context, job *entity.CaptureJob, log *zap.Logger) {
	uc.publish(ctx, statusMessage(job), log)
}

func (uc *CaptureJobUseCase) publish(ctx context.Context, m entity.CaptureStatusMessage, log *zap.Logger) {
	if err := uc.publisher.PublishStatus(ctx, m); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}

func statusMessage(job *entity.CaptureJob) entity.CaptureStatusMessage {
	return entity.CaptureStatusMessage{
		JobID:        job.ID,
		UserID:       job.UserID,
		Status:       job.Status,
		Mode:         job.Mode,
		VideoKey:     job.VideoKey,
		BundleKey:    job.BundleKey,
		SheetKey:     job.SheetKey,
		FrameCount:   job.FrameCount,
		Duration:     job.VideoDuration,
		ErrorMessage: job.ErrorMessage,
		Attempt:      job.Attempt,
		MaxAttempts:  job.MaxAttempts,
	}
}
