package playback

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPlayableSource indicates the selected channel has no usable locator.
	ErrNoPlayableSource = errors.New("no playable source")
	// ErrNoPlayableFileInSwarm indicates a swarm's metadata holds no file with a playable extension.
	ErrNoPlayableFileInSwarm = errors.New("no playable file in swarm")
	// ErrTransportFatal is matched by every TransportError.
	ErrTransportFatal = errors.New("fatal transport error")
	// ErrNotPlaying is returned by TogglePause outside the Playing and Paused states.
	ErrNotPlaying = errors.New("nothing is playing")
	// ErrOpenTimeout is reported when an attempt stays in Opening longer than the configured limit.
	ErrOpenTimeout = errors.New("open timed out")
	// ErrManagerClosed is returned by operations on a closed Manager.
	ErrManagerClosed = errors.New("playback manager closed")
)

// TransportError wraps a failure reported by a transport engine or the media sink.
type TransportError struct {
	Kind TransportKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes every TransportError match ErrTransportFatal.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransportFatal
}

// Reason returns a short label for err, suitable for metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoPlayableSource):
		return "no_playable_source"
	case errors.Is(err, ErrNoPlayableFileInSwarm):
		return "no_playable_file"
	case errors.Is(err, ErrOpenTimeout):
		return "open_timeout"
	case errors.Is(err, ErrTransportFatal):
		return "transport"
	default:
		return "other"
	}
}
