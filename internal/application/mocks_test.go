package application

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/alorle/iptv-hub/circuitbreaker"
	"github.com/alorle/iptv-hub/internal/channel"
	"github.com/alorle/iptv-hub/internal/playback"
	"github.com/alorle/iptv-hub/internal/port/driven"
)

// mockDirectoryRepository is a mock implementation of DirectoryRepository for testing.
type mockDirectoryRepository struct {
	mu       sync.Mutex
	saved    []channel.Channel
	savedIDs []string
	saves    int

	saveFunc func(ctx context.Context, channels []channel.Channel, verifiedIDs []string) error
	loadFunc func(ctx context.Context) ([]channel.Channel, []string, error)
	pingFunc func(ctx context.Context) error
}

func (m *mockDirectoryRepository) SaveDirectory(ctx context.Context, channels []channel.Channel, verifiedIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveFunc != nil {
		return m.saveFunc(ctx, channels, verifiedIDs)
	}
	m.saved = channels
	m.savedIDs = verifiedIDs
	return nil
}

func (m *mockDirectoryRepository) LoadDirectory(ctx context.Context) ([]channel.Channel, []string, error) {
	if m.loadFunc != nil {
		return m.loadFunc(ctx)
	}
	return []channel.Channel{}, []string{}, nil
}

func (m *mockDirectoryRepository) Ping(ctx context.Context) error {
	if m.pingFunc != nil {
		return m.pingFunc(ctx)
	}
	return nil
}

func (m *mockDirectoryRepository) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// mockFetcher is a mock implementation of SourceFetcher for testing.
type mockFetcher struct {
	fetchFunc func(ctx context.Context, url string) ([]byte, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, url)
	}
	return nil, nil
}

// stubSource is a CatalogSource returning fixed channels.
type stubSource struct {
	name  string
	chans []channel.Channel
	err   error
	gate  chan struct{}
	calls atomic.Int32
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Channels(ctx context.Context) ([]channel.Channel, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.chans, s.err
}

type mockLister struct {
	liveChannelsFunc func(ctx context.Context) ([]channel.Channel, error)
}

func (m *mockLister) LiveChannels(ctx context.Context) ([]channel.Channel, error) {
	return m.liveChannelsFunc(ctx)
}

// mockPlayer is a mock implementation of PlaybackController for testing.
type mockPlayer struct {
	selectFunc      func(ctx context.Context, ch *channel.Channel) error
	stopFunc        func()
	togglePauseFunc func() error
	subscribeFunc   func() (<-chan playback.Event, func())
	snapshotFunc    func() playback.Status
}

func (m *mockPlayer) Select(ctx context.Context, ch *channel.Channel) error {
	if m.selectFunc != nil {
		return m.selectFunc(ctx, ch)
	}
	return nil
}

func (m *mockPlayer) Stop() {
	if m.stopFunc != nil {
		m.stopFunc()
	}
}

func (m *mockPlayer) TogglePause() error {
	if m.togglePauseFunc != nil {
		return m.togglePauseFunc()
	}
	return nil
}

func (m *mockPlayer) Subscribe() (<-chan playback.Event, func()) {
	if m.subscribeFunc != nil {
		return m.subscribeFunc()
	}
	ch := make(chan playback.Event)
	close(ch)
	return ch, func() {}
}

func (m *mockPlayer) Snapshot() playback.Status {
	if m.snapshotFunc != nil {
		return m.snapshotFunc()
	}
	return playback.Status{State: playback.StateIdle}
}

// mockSwarmEngine is a mock implementation of SwarmEngine for testing.
type mockSwarmEngine struct {
	torrents []driven.Swarm
}

func (m *mockSwarmEngine) Add(context.Context, string, func(driven.Swarm), func(error)) error {
	return nil
}

func (m *mockSwarmEngine) Torrents() []driven.Swarm {
	return m.torrents
}

type mockBreakers map[string]circuitbreaker.State

func (m mockBreakers) States() map[string]circuitbreaker.State {
	return m
}
