package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"os/exec"
	"strconv"
)

// ErrNoFrame is returned when ffmpeg produces no picture at the requested time.
var ErrNoFrame = errors.New("no frame at position")

// TailRetry is how far before the requested time a second attempt is made
// when the end of the stream yields nothing.
const TailRetry = 0.5

// FrameDecoder decodes single pictures with the ffmpeg CLI.
type FrameDecoder struct {
	ffmpegPath string
}

func NewFrameDecoder(ffmpegPath string) *FrameDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FrameDecoder{ffmpegPath: ffmpegPath}
}

// DecodeAt returns the picture presented at t seconds.
func (d *FrameDecoder) DecodeAt(ctx context.Context, src string, t float64) (image.Image, error) {
	if src == "" {
		return nil, ErrNoSource
	}

	img, err := d.decode(ctx, src, t)
	if errors.Is(err, ErrNoFrame) && t > 0 {
		return d.decode(ctx, src, math.Max(0, t-TailRetry))
	}
	return img, err
}

func (d *FrameDecoder) decode(ctx context.Context, src string, t float64) (image.Image, error) {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-ss", strconv.FormatFloat(t, 'f', 3, 64),
		"-i", src,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	}
	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg error: %w, output: %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, ErrNoFrame
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return img, nil
}
