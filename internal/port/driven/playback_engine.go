package driven

import (
	"context"
	"errors"
	"io"
)

// ErrAutoplayRejected is returned by MediaSink.Play when the environment
// refuses to start playback without an explicit user gesture.
var ErrAutoplayRejected = errors.New("autoplay rejected")

// Swarm file lookup errors.
var (
	ErrSwarmNotFound     = errors.New("swarm not found")
	ErrSwarmFileNotFound = errors.New("swarm file not found")
	ErrSwarmNoMetadata   = errors.New("swarm metadata not available")
)

// EngineEventKind identifies an event raised by a segmented-stream engine.
type EngineEventKind int

const (
	// EngineManifestParsed signals that the stream manifest was loaded and
	// media can be played.
	EngineManifestParsed EngineEventKind = iota + 1
	// EngineFatalError signals an unrecoverable engine failure.
	EngineFatalError
)

func (k EngineEventKind) String() string {
	switch k {
	case EngineManifestParsed:
		return "manifest-parsed"
	case EngineFatalError:
		return "fatal-error"
	default:
		return "unknown"
	}
}

// EngineEvent is delivered to the emit callback passed to SegmentEngine.LoadSource.
type EngineEvent struct {
	Kind EngineEventKind
	Err  error
}

// SegmentEngine drives a segmented (HLS-style) stream.
// This is a driven port implemented by an adapter; the protocol itself lives there.
type SegmentEngine interface {
	// LoadSource starts loading the manifest at url. Events are reported through
	// emit from the engine's own goroutines, never synchronously from LoadSource.
	// The engine stops when ctx is cancelled or the stream is destroyed.
	LoadSource(ctx context.Context, url string, emit func(EngineEvent)) (SegmentStream, error)
}

// SegmentStream is a live engine instance returned by LoadSource.
type SegmentStream interface {
	// AttachTarget binds the stream to the media sink that will render it.
	AttachTarget(sink MediaSink) error
	// Destroy releases every resource held by the stream. It is idempotent.
	Destroy()
}

// SwarmEngine manages peer-to-peer swarms.
type SwarmEngine interface {
	// Add registers a swarm descriptor (magnet link or info-hash) and returns
	// once the swarm is tracked. onReady is called when metadata is available,
	// onError on a fatal failure. Neither callback is invoked synchronously.
	Add(ctx context.Context, descriptor string, onReady func(Swarm), onError func(error)) error

	// Torrents lists every swarm currently tracked by the engine.
	Torrents() []Swarm
}

// Swarm is a single tracked peer-to-peer swarm.
type Swarm interface {
	InfoHash() string
	Files() []SwarmFile
	Destroy() error
}

// SwarmFileOpener serves the bytes of swarm files to HTTP clients.
type SwarmFileOpener interface {
	// OpenFile returns the display name and a seekable reader for file index
	// of the swarm with the given hex info-hash.
	OpenFile(infoHash string, index int) (string, io.ReadSeekCloser, error)
}

// SwarmFile is one file inside a swarm.
type SwarmFile interface {
	Name() string
	Length() int64
	// BlobURL returns a locator a media sink can play the file from.
	BlobURL(ctx context.Context) (string, error)
}

// MediaSink is the output surface playback renders into.
type MediaSink interface {
	SetSource(url string) error
	// Play starts playback. It returns ErrAutoplayRejected when playback
	// needs an explicit user action.
	Play() error
	Pause() error
	// Reset detaches the current source.
	Reset()
}
