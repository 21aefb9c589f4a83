package player

import (
	"encoding/json"
	"math"

	"github.com/ysrdora/nextframe/internal/timecode"
)

// Phase is the coarse lifecycle of the attached source.
type Phase int

const (
	PhaseUnloaded Phase = iota
	PhaseLoading
	PhasePaused
	PhasePlaying
)

func (p Phase) String() string {
	switch p {
	case PhaseUnloaded:
		return "unloaded"
	case PhaseLoading:
		return "loading"
	case PhasePaused:
		return "paused"
	case PhasePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// State is a snapshot of playback as last reported by the element.
// Progress and Timecode are always derived from CurrentTime and Duration.
type State struct {
	IsPlaying   bool
	CurrentTime float64
	Duration    float64
	Progress    float64
	Timecode    string
	IsLoaded    bool
	// HasSource is false until an element with a source is attached.
	HasSource bool
}

func initialState() State {
	return State{Duration: math.NaN(), Timecode: timecode.Zero}
}

// Phase derives the lifecycle stage from the snapshot.
func (s State) Phase() Phase {
	switch {
	case !s.HasSource:
		return PhaseUnloaded
	case !s.IsLoaded:
		return PhaseLoading
	case s.IsPlaying:
		return PhasePlaying
	default:
		return PhasePaused
	}
}

// MarshalJSON reports an unknown duration as null.
func (s State) MarshalJSON() ([]byte, error) {
	var duration *float64
	if validDuration(s.Duration) {
		d := s.Duration
		duration = &d
	}
	return json.Marshal(struct {
		IsPlaying   bool     `json:"isPlaying"`
		CurrentTime float64  `json:"currentTime"`
		Duration    *float64 `json:"duration"`
		Progress    float64  `json:"progress"`
		Timecode    string   `json:"timecode"`
		IsLoaded    bool     `json:"isLoaded"`
		Phase       string   `json:"phase"`
	}{s.IsPlaying, s.CurrentTime, duration, s.Progress, s.Timecode, s.IsLoaded, s.Phase().String()})
}

func validDuration(d float64) bool {
	return !math.IsNaN(d) && !math.IsInf(d, 0) && d > 0
}
