package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ysrdora/nextframe/internal/domain/port"
)

const samplePrefix = "sample_"

// Sampler writes one PNG per 1/fps seconds of video, for interval captures.
type Sampler struct {
	ffmpegPath string
	fps        float64
	prober     MediaProber
	logger     *zap.Logger
}

func NewSampler(ffmpegPath string, fps float64, prober MediaProber, logger *zap.Logger) *Sampler {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if fps <= 0 {
		fps = 1
	}
	return &Sampler{ffmpegPath: ffmpegPath, fps: fps, prober: prober, logger: logger}
}

func (s *Sampler) SampleFrames(ctx context.Context, videoPath, outputDir string) (*port.SampledFrames, error) {
	info, err := s.prober.Probe(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", filepath.Base(videoPath), err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=%g", s.fps),
		"-start_number", "0",
		"-y", filepath.Join(outputDir, samplePrefix+"%06d.png"),
	)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg sample: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	paths, err := listSamples(outputDir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.New("ffmpeg produced no samples")
	}

	s.logger.Debug("sampled video",
		zap.String("video", filepath.Base(videoPath)),
		zap.Int("count", len(paths)),
		zap.Float64("fps", s.fps),
	)
	return &port.SampledFrames{Paths: paths, FPS: s.fps, Duration: info.Duration}, nil
}

// listSamples returns the sample files in dir in frame order. The zero
// padded names sort lexically.
func listSamples(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), samplePrefix) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
