package usecase_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"

	"github.com/ysrdora/nextframe/internal/domain/entity"
	"github.com/ysrdora/nextframe/internal/export"
	"github.com/ysrdora/nextframe/internal/infra/email"
	"github.com/ysrdora/nextframe/internal/infra/ffmpeg"
	miniostorage "github.com/ysrdora/nextframe/internal/infra/minio"
	"github.com/ysrdora/nextframe/internal/infra/postgres"
	"github.com/ysrdora/nextframe/internal/infra/rabbitmq"
	"github.com/ysrdora/nextframe/internal/usecase"
	"github.com/ysrdora/nextframe/pkg/logger"
)

const (
	exchange     = "nextframe.frames"
	captureQueue = "frames.capture"
	statusQueue  = "frames.status"
	dlqQueue     = "frames.capture.dlq"
)

type stack struct {
	pool        *pgxpool.Pool
	rmqURL      string
	rmqConn     *amqp.Connection
	minioClient *miniogo.Client
	storage     *miniostorage.Storage
}

func startStack(t *testing.T, ctx context.Context) *stack {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("frames"),
		tcpostgres.WithUsername("frames_user"),
		tcpostgres.WithPassword("frames_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(context.Background()) })

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rmqContainer, err := tcrabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rmqContainer.Terminate(context.Background()) })

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = minioContainer.Terminate(context.Background()) })

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	require.NoError(t, postgres.RunMigrations(pgConnStr))

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     minioEndpoint,
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		UploadBucket: "uploads",
		ExportBucket: "exports",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	minioClient, err := miniogo.New(minioEndpoint, &miniogo.Options{
		Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
	})
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rmqConn.Close() })

	return &stack{pool: pool, rmqURL: rmqURL, rmqConn: rmqConn, minioClient: minioClient, storage: storage}
}

// startWorker wires the capture job use case to a consumer running until
// the test ends.
func (s *stack) startWorker(t *testing.T, ctx context.Context) {
	t.Helper()

	log, err := logger.New("debug")
	require.NoError(t, err)

	pub, err := rabbitmq.NewPublisher(s.rmqConn, exchange)
	require.NoError(t, err)

	prober := ffmpeg.NewProber("")
	factory := ffmpeg.NewFactory(prober, ffmpeg.NewFrameDecoder(""), ffmpeg.ElementConfig{}, log)

	uc := usecase.NewCaptureJobUseCase(
		postgres.NewJobRepository(s.pool),
		postgres.NewFrameRepository(s.pool),
		s.storage,
		factory,
		ffmpeg.NewSampler("", 1, prober, log),
		export.NewExporter(),
		rabbitmq.NewStatusPublisher(pub),
		rabbitmq.NewDLQPublisher(pub, dlqQueue),
		email.NewSMTPNotifier("localhost", 1025, "frames@test.local", log),
		log,
		usecase.CaptureJobConfig{TempDir: t.TempDir(), MaxRetries: 3, LoadTimeout: 30 * time.Second},
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         s.rmqURL,
		Queue:       captureQueue,
		Exchange:    exchange,
		DLQ:         dlqQueue,
		StatusQueue: statusQueue,
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
		JobTimeout:  2 * time.Minute,
	}, uc.Execute, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = consumer.Close() })

	consumerCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	go func() { _ = consumer.Start(consumerCtx) }()

	time.Sleep(500 * time.Millisecond)
}

func (s *stack) publish(t *testing.T, ctx context.Context, body []byte) {
	t.Helper()
	ch, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer ch.Close()
	require.NoError(t, ch.PublishWithContext(ctx, exchange, rabbitmq.CaptureRoutingKey, false, false,
		amqp.Publishing{ContentType: "application/json", Body: body}))
}

func renderClip(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not available")
	}
	out := filepath.Join(t.TempDir(), "clip.mp4")
	cmd := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=duration=2:size=320x240:rate=24",
		"-pix_fmt", "yuv420p", "-y", out)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("could not render test clip: %v: %s", err, output)
	}
	return out
}

func TestCaptureJobEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	clipPath := renderClip(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	s := startStack(t, ctx)

	videoKey := "testuser/clip.mp4"
	_, err := s.minioClient.FPutObject(ctx, "uploads", videoKey, clipPath, miniogo.PutObjectOptions{
		ContentType: "video/mp4",
	})
	require.NoError(t, err)

	s.startWorker(t, ctx)

	pub, err := rabbitmq.NewPublisher(s.rmqConn, exchange)
	require.NoError(t, err)
	defer pub.Close()

	jobID := uuid.New()
	require.NoError(t, rabbitmq.NewRequestPublisher(pub).PublishRequest(ctx, entity.CaptureRequestMessage{
		JobID:     jobID,
		UserID:    "testuser",
		VideoKey:  videoKey,
		UserEmail: "test@test.local",
		Mode:      entity.CaptureModeBoundary,
	}))

	statusCh, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer statusCh.Close()
	statusMsgs, err := statusCh.Consume(statusQueue, "", true, false, false, false, nil)
	require.NoError(t, err)

	var status entity.CaptureStatusMessage
	select {
	case delivery := <-statusMsgs:
		require.NoError(t, json.Unmarshal(delivery.Body, &status))
	case <-time.After(2 * time.Minute):
		t.Fatal("timeout waiting for status message")
	}

	assert.Equal(t, jobID, status.JobID)
	require.Equal(t, entity.JobStatusCompleted, status.Status, status.ErrorMessage)
	assert.Equal(t, 2, status.FrameCount)
	assert.InDelta(t, 2.0, status.Duration, 0.1)
	assert.Contains(t, status.BundleURL, status.BundleKey)

	obj, err := s.minioClient.GetObject(ctx, "exports", status.BundleKey, miniogo.GetObjectOptions{})
	require.NoError(t, err)
	raw, err := io.ReadAll(obj)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	var pngs []string
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, ".png") {
			pngs = append(pngs, f.Name)
		}
	}
	assert.ElementsMatch(t, []string{"REFRAME_START.png", "REFRAME_END.png"}, pngs)

	_, err = s.minioClient.StatObject(ctx, "exports", status.SheetKey, miniogo.StatObjectOptions{})
	require.NoError(t, err)

	var dbStatus string
	var dbFrameCount, storedFrames int
	require.NoError(t, s.pool.QueryRow(ctx,
		"SELECT status, frame_count FROM capture_jobs WHERE id=$1", jobID,
	).Scan(&dbStatus, &dbFrameCount))
	assert.Equal(t, "COMPLETED", dbStatus)
	assert.Equal(t, 2, dbFrameCount)

	require.NoError(t, s.pool.QueryRow(ctx,
		"SELECT count(*) FROM frames WHERE session_id=$1", jobID.String(),
	).Scan(&storedFrames))
	assert.Equal(t, 2, storedFrames)
}

func TestCaptureJobMalformedMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	s := startStack(t, ctx)
	s.startWorker(t, ctx)
	s.publish(t, ctx, []byte(`{invalid json`))

	time.Sleep(2 * time.Second)

	dlqCh, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer dlqCh.Close()

	msg, ok, err := dlqCh.Get(dlqQueue, true)
	require.NoError(t, err)
	assert.True(t, ok, "malformed message should be in DLQ")
	assert.Equal(t, `{invalid json`, string(msg.Body))
}
