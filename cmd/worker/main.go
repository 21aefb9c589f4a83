// Command worker consumes capture requests from RabbitMQ and runs them
// headless: boundary, timestamp and interval captures exported to MinIO.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/ysrdora/nextframe/internal/export"
	"github.com/ysrdora/nextframe/internal/infra/config"
	"github.com/ysrdora/nextframe/internal/infra/email"
	"github.com/ysrdora/nextframe/internal/infra/ffmpeg"
	"github.com/ysrdora/nextframe/internal/infra/metrics"
	miniostorage "github.com/ysrdora/nextframe/internal/infra/minio"
	"github.com/ysrdora/nextframe/internal/infra/postgres"
	"github.com/ysrdora/nextframe/internal/infra/rabbitmq"
	"github.com/ysrdora/nextframe/internal/infra/tracing"
	"github.com/ysrdora/nextframe/internal/usecase"
	"github.com/ysrdora/nextframe/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("worker exited", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log.Info("starting nextframe worker", zap.Int("workers", cfg.WorkerCount))

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "nextframe-worker",
		SampleRatio: cfg.OTLPSampleRatio,
	})
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	} else {
		defer shutdownTracing(context.Background())
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     cfg.MinIOEndpoint,
		AccessKey:    cfg.MinIOAccessKey,
		SecretKey:    cfg.MinIOSecretKey,
		UseSSL:       cfg.MinIOUseSSL,
		UploadBucket: cfg.MinIOUploadBucket,
		ExportBucket: cfg.MinIOExportBucket,
		URLExpiry:    cfg.MinIOURLExpiry,
	})
	if err != nil {
		return err
	}
	if err := storage.EnsureBuckets(ctx); err != nil {
		return err
	}

	// Publishing gets its own connection so a busy consumer cannot block it.
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("connect publisher to rabbitmq: %w", err)
	}
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	if err != nil {
		return err
	}
	defer pub.Close()

	prober := ffmpeg.NewProber(cfg.FFprobePath)
	factory := ffmpeg.NewFactory(prober, ffmpeg.NewFrameDecoder(cfg.FFmpegPath), ffmpeg.ElementConfig{
		TickInterval: cfg.PlaybackTick,
		OnSeek:       func(d time.Duration) { metrics.SeekLatency.Observe(d.Seconds()) },
	}, log)

	jobs := usecase.NewCaptureJobUseCase(
		postgres.NewJobRepository(pool),
		postgres.NewFrameRepository(pool),
		storage,
		factory,
		ffmpeg.NewSampler(cfg.FFmpegPath, cfg.IntervalFPS, prober, log),
		export.NewExporter(),
		rabbitmq.NewStatusPublisher(pub),
		rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ),
		email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log),
		log,
		usecase.CaptureJobConfig{
			TempDir:     cfg.TempDir,
			MaxRetries:  cfg.MaxRetries,
			LoadTimeout: cfg.LoadTimeout,
		},
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQCaptureQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
		JobTimeout:  cfg.JobTimeout,
	}, jobs.Execute, log)
	if err != nil {
		return err
	}
	defer consumer.Close()

	metricsSrv := metrics.NewServer(cfg.MetricsPort, map[string]metrics.Check{
		"postgres": pool.Ping,
		"rabbitmq": func(context.Context) error {
			if rmqConn.IsClosed() {
				return errors.New("publisher connection closed")
			}
			return nil
		},
	}, log)
	metricsSrv.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx)
	}()

	// Start blocks until the signal context ends and in-flight jobs return.
	if err := consumer.Start(ctx); err != nil {
		return err
	}
	log.Info("nextframe worker stopped")
	return nil
}
