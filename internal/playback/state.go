package playback

import (
	"fmt"

	"github.com/alorle/iptv-hub/internal/channel"
)

// State is the lifecycle position of the playback session.
type State int

const (
	StateIdle State = iota
	StateOpening
	StateReady
	StatePlaying
	StatePaused
	StateErrored
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateErrored:
		return "errored"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateClosed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown playback state %q", text)
}

// live reports whether a transport may be held in this state.
func (s State) live() bool {
	switch s {
	case StateOpening, StateReady, StatePlaying, StatePaused:
		return true
	}
	return false
}

// Handle describes one playback attempt.
type Handle struct {
	ID           string        `json:"id"`
	Kind         TransportKind `json:"kind"`
	ChannelID    string        `json:"channel_id"`
	State        State         `json:"state"`
	Err          error         `json:"-"`
	Generation   uint64        `json:"generation"`
	EffectiveURL string        `json:"effective_url,omitempty"`
}

// Event is published to subscribers on every state change.
type Event struct {
	State      State
	Channel    *channel.Channel
	Err        error
	HandleID   string
	Generation uint64
	Kind       TransportKind
}

// Status is a point-in-time view of the manager.
type Status struct {
	State   State
	Channel *channel.Channel
	Handle  *Handle
	Err     error
}
