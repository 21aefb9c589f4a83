// Package timecode renders playback positions as MM:SS:FF under a fixed
// assumed frame rate.
package timecode

import (
	"fmt"
	"math"
	"strings"
)

// FrameRate is the number of frames per second assumed for every
// frame-granular computation. It is not derived from the source.
const FrameRate = 24

// FrameDuration is the length of a single frame in seconds.
const FrameDuration = 1.0 / FrameRate

// Zero is the timecode of an unknown or initial position.
const Zero = "00:00:00"

// Format converts seconds to MM:SS:FF. Every component is floored, never
// rounded; NaN renders as Zero. Callers must pass a non-negative value.
func Format(seconds float64) string {
	if math.IsNaN(seconds) {
		return Zero
	}
	m := math.Floor(seconds / 60)
	s := math.Floor(math.Mod(seconds, 60))
	f := math.Floor(math.Mod(seconds, 1) * FrameRate)
	return fmt.Sprintf("%02d:%02d:%02d", int64(m), int64(s), int64(f))
}

// Compact strips the separators from a timecode, "01:05:12" -> "010512".
func Compact(tc string) string {
	return strings.ReplaceAll(tc, ":", "")
}
