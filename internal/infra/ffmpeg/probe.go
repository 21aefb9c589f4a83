package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ysrdora/nextframe/internal/domain/entity"
)

var (
	// ErrNoSource is returned for an empty source reference.
	ErrNoSource = errors.New("no source")
	// ErrNoVideoStream is returned when a source carries no video track.
	ErrNoVideoStream = errors.New("no video stream")
)

// Prober reads duration and natural size of a source with ffprobe.
type Prober struct {
	ffprobePath string
}

func NewProber(ffprobePath string) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{ffprobePath: ffprobePath}
}

func (p *Prober) Probe(ctx context.Context, src string) (entity.MediaInfo, error) {
	if src == "" {
		return entity.MediaInfo{}, ErrNoSource
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		src,
	)
	output, err := cmd.Output()
	if err != nil {
		return entity.MediaInfo{}, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbe(output)
}

type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbe(raw []byte) (entity.MediaInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return entity.MediaInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return entity.MediaInfo{}, ErrNoVideoStream
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64)
	if err != nil {
		return entity.MediaInfo{}, fmt.Errorf("parse duration: %w", err)
	}

	return entity.MediaInfo{
		Duration: duration,
		Width:    out.Streams[0].Width,
		Height:   out.Streams[0].Height,
	}, nil
}
