package application

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/alorle/iptv-hub/internal/channel"
	"github.com/alorle/iptv-hub/internal/playback"
)

// PlaybackController is the part of playback.Manager the service drives.
type PlaybackController interface {
	Select(ctx context.Context, ch *channel.Channel) error
	Stop()
	TogglePause() error
	Subscribe() (<-chan playback.Event, func())
	Snapshot() playback.Status
}

// ChannelDirectory resolves channel ids.
type ChannelDirectory interface {
	GetChannel(id string) (channel.Channel, error)
	Alternatives(id string) ([]channel.Channel, error)
}

// PlaybackStatus is the playback state enriched with retry candidates when
// the session failed.
type PlaybackStatus struct {
	playback.Status
	Alternatives []channel.Channel
}

// PlaybackService exposes playback use cases by channel id.
type PlaybackService struct {
	directory ChannelDirectory
	player    PlaybackController
	logger    zerolog.Logger

	wg sync.WaitGroup
}

// NewPlaybackService creates a PlaybackService.
func NewPlaybackService(directory ChannelDirectory, player PlaybackController, logger zerolog.Logger) *PlaybackService {
	return &PlaybackService{
		directory: directory,
		player:    player,
		logger:    logger,
	}
}

// Select starts playing the channel with the given id. An empty id deselects.
// Returns channel.ErrChannelNotFound if the id is unknown.
func (s *PlaybackService) Select(ctx context.Context, id string) error {
	if id == "" {
		return s.player.Select(ctx, nil)
	}
	ch, err := s.directory.GetChannel(id)
	if err != nil {
		return err
	}
	return s.player.Select(ctx, &ch)
}

// Stop ends the current session.
func (s *PlaybackService) Stop() {
	s.player.Stop()
}

// TogglePause pauses or resumes the current session.
func (s *PlaybackService) TogglePause() error {
	return s.player.TogglePause()
}

// Status returns the current playback state. When the session errored, the
// alternatives for the failed channel are included.
func (s *PlaybackService) Status() PlaybackStatus {
	st := PlaybackStatus{Status: s.player.Snapshot()}
	if st.State == playback.StateErrored && st.Channel != nil {
		alts, err := s.directory.Alternatives(st.Channel.ID)
		if err == nil {
			st.Alternatives = alts
		}
	}
	return st
}

// Alternatives returns retry candidates for the channel with the given id.
func (s *PlaybackService) Alternatives(id string) ([]channel.Channel, error) {
	return s.directory.Alternatives(id)
}

// Events subscribes to playback events. The returned function unsubscribes.
func (s *PlaybackService) Events() (<-chan playback.Event, func()) {
	return s.player.Subscribe()
}

// Watch logs playback events until ctx is cancelled or the event stream
// closes. Wait blocks until it has returned.
func (s *PlaybackService) Watch(ctx context.Context) {
	events, cancel := s.player.Subscribe()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				s.logEvent(ev)
			}
		}
	}()
}

// Wait blocks until the Watch goroutine has exited.
func (s *PlaybackService) Wait() {
	s.wg.Wait()
}

func (s *PlaybackService) logEvent(ev playback.Event) {
	var chID string
	if ev.Channel != nil {
		chID = ev.Channel.ID
	}

	if ev.State != playback.StateErrored {
		s.logger.Info().
			Str("state", ev.State.String()).
			Str("channel", chID).
			Str("kind", ev.Kind.String()).
			Str("handle", ev.HandleID).
			Msg("Playback state changed")
		return
	}

	evt := s.logger.Warn().
		Err(ev.Err).
		Str("channel", chID).
		Str("kind", ev.Kind.String()).
		Str("handle", ev.HandleID).
		Str("reason", playback.Reason(ev.Err))
	if chID != "" {
		if alts, err := s.directory.Alternatives(chID); err == nil {
			evt = evt.Int("alternatives", len(alts))
		}
	}
	evt.Msg("Playback failed")
}
