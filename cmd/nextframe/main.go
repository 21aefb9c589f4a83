// Command nextframe serves interactive capture sessions over HTTP and
// WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ysrdora/nextframe/internal/infra/config"
	"github.com/ysrdora/nextframe/internal/infra/ffmpeg"
	"github.com/ysrdora/nextframe/internal/infra/metrics"
	"github.com/ysrdora/nextframe/internal/infra/postgres"
	"github.com/ysrdora/nextframe/internal/infra/tracing"
	"github.com/ysrdora/nextframe/internal/infra/wsapi"
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
		log.Error("session server exited", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log.Info("starting nextframe session server", zap.String("addr", cfg.HTTPAddr))

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "nextframe",
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

	factory := ffmpeg.NewFactory(
		ffmpeg.NewProber(cfg.FFprobePath),
		ffmpeg.NewFrameDecoder(cfg.FFmpegPath),
		ffmpeg.ElementConfig{
			TickInterval: cfg.PlaybackTick,
			OnSeek:       func(d time.Duration) { metrics.SeekLatency.Observe(d.Seconds()) },
		},
		log,
	)

	srv := wsapi.NewServer(wsapi.Config{
		Addr:           cfg.HTTPAddr,
		TempDir:        cfg.TempDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		LoadTimeout:    cfg.LoadTimeout,
		SessionMaxAge:  cfg.SessionMaxAge,
	}, factory, postgres.NewFrameRepository(pool), log)
	srv.Start()
	go srv.RunCleanup(ctx, cfg.CleanupEvery)

	metricsSrv := metrics.NewServer(cfg.MetricsPort, map[string]metrics.Check{"postgres": pool.Ping}, log)
	metricsSrv.Start()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("session server shutdown", zap.Error(err))
	}
	metricsSrv.Shutdown(shutdownCtx)

	log.Info("nextframe session server stopped")
	return nil
}
