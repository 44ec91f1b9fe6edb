package driven

import (
	"errors"
	"sync"

	port "github.com/alorle/iptv-hub/internal/port/driven"
)

// ErrNoSource is returned by Play when no source has been set.
var ErrNoSource = errors.New("media sink has no source")

// SinkState is a snapshot of a HeadlessSink.
type SinkState struct {
	Source  string `json:"source"`
	Playing bool   `json:"playing"`
}

// HeadlessSink is a MediaSink without a rendering surface. It tracks the
// current source so clients can fetch it from the API and play it themselves.
//
// With autoplay disabled, the first Play after each SetSource is rejected the
// way a browser refuses playback without a user gesture; later calls succeed.
type HeadlessSink struct {
	autoplay bool

	mu              sync.Mutex
	source          string
	playing         bool
	autoplayPending bool
}

// NewHeadlessSink creates a sink.
func NewHeadlessSink(autoplay bool) *HeadlessSink {
	return &HeadlessSink{autoplay: autoplay}
}

func (s *HeadlessSink) SetSource(url string) error {
	if url == "" {
		return errors.New("media sink: empty source")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = url
	s.playing = false
	s.autoplayPending = !s.autoplay
	return nil
}

func (s *HeadlessSink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == "" {
		return ErrNoSource
	}
	if s.autoplayPending {
		s.autoplayPending = false
		return port.ErrAutoplayRejected
	}
	s.playing = true
	return nil
}

func (s *HeadlessSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == "" {
		return ErrNoSource
	}
	s.playing = false
	return nil
}

func (s *HeadlessSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = ""
	s.playing = false
	s.autoplayPending = false
}

// State returns the current source and whether it is playing.
func (s *HeadlessSink) State() SinkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SinkState{Source: s.source, Playing: s.playing}
}
