package port

import "image"

// ReadyState is a coarse ordinal of how much of a source the decoder holds.
type ReadyState int

const (
	HaveNothing ReadyState = iota
	HaveMetadata
	HaveCurrentData
	HaveFutureData
	HaveEnoughData
)

// MediaEvent names a notification raised by a MediaElement.
type MediaEvent string

const (
	EventEmptied        MediaEvent = "emptied"
	EventLoadedMetadata MediaEvent = "loadedmetadata"
	EventLoadedData     MediaEvent = "loadeddata"
	EventPlay           MediaEvent = "play"
	EventPause          MediaEvent = "pause"
	EventEnded          MediaEvent = "ended"
	EventTimeUpdate     MediaEvent = "timeupdate"
	EventSeeked         MediaEvent = "seeked"
	EventError          MediaEvent = "error"
)

// Preload hints how eagerly an element fetches its source.
type Preload string

const (
	PreloadNone     Preload = "none"
	PreloadMetadata Preload = "metadata"
	PreloadAuto     Preload = "auto"
)

// MediaElement is a single decode instance bound to at most one source.
//
// Setters return immediately; their outcome is reported through events.
// Listeners registered on one element are invoked serially, never
// concurrently with each other, and must not block.
type MediaElement interface {
	Source() string
	// SetSource binds a new source (or none, for "") and starts loading it.
	SetSource(src string)
	// Load aborts in-flight work and reloads the current source. With an
	// empty source it releases everything the element buffered.
	Load()

	Play() error
	Pause()
	Paused() bool

	// CurrentTime reflects the last requested position immediately, even
	// while the seek is still being resolved.
	CurrentTime() float64
	SetCurrentTime(t float64)
	// Duration is NaN until metadata has loaded.
	Duration() float64
	ReadyState() ReadyState
	// VideoSize is the natural pixel size; zero until a frame is decoded.
	VideoSize() (width, height int)
	// CurrentFrame is the visual content currently presented, or nil.
	CurrentFrame() image.Image
	// Err is the most recent failure reported through EventError.
	Err() error

	SetMuted(muted bool)
	SetPreload(p Preload)

	// On registers fn for ev and returns a function removing it.
	On(ev MediaEvent, fn func()) (remove func())
}

// SeekSequencer is implemented by elements that number their seeks.
// SeekIssued is the number of the latest seek requested and SeekSettled the
// number of the latest one whose picture is presented, so a seeked event left
// over from an earlier seek can be told apart from the one being waited on.
type SeekSequencer interface {
	SeekIssued() uint64
	SeekSettled() uint64
}

// ElementFactory creates fresh, unbound decode instances.
type ElementFactory interface {
	NewElement() MediaElement
}
