package port

import "context"

// SampledFrames lists the images produced by sampling a video at a fixed rate.
// Paths are ordered by position in the video.
type SampledFrames struct {
	Paths    []string
	FPS      float64
	Duration float64
}

// FrameSampler samples a whole video file at a fixed rate into PNG files
// under outputDir.
type FrameSampler interface {
	SampleFrames(ctx context.Context, videoPath, outputDir string) (*SampledFrames, error)
}
