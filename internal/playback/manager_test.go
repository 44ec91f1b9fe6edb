package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/alorle/iptv-hub/internal/channel"
	"github.com/alorle/iptv-hub/internal/port/driven"
)

type harness struct {
	m        *Manager
	segments *fakeSegmentEngine
	swarms   *fakeSwarmEngine
	sink     *fakeSink
	events   <-chan Event
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		segments: &fakeSegmentEngine{},
		swarms:   &fakeSwarmEngine{},
		sink:     &fakeSink{},
	}
	h.m = NewManager(h.segments, h.swarms, h.sink, opts, zerolog.Nop())
	t.Cleanup(h.m.Close)
	events, cancel := h.m.Subscribe()
	t.Cleanup(cancel)
	h.events = events
	return h
}

func (h *harness) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev, ok := <-h.events:
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for playback event")
	}
	return Event{}
}

// expect consumes one event per state and checks they arrive in order.
func (h *harness) expect(t *testing.T, states ...State) []Event {
	t.Helper()
	got := make([]Event, 0, len(states))
	for _, want := range states {
		ev := h.next(t)
		require.Equal(t, want, ev.State, "events so far: %v", got)
		got = append(got, ev)
	}
	return got
}

func (h *harness) expectQuiet(t *testing.T) {
	t.Helper()
	select {
	case ev := <-h.events:
		t.Fatalf("unexpected event %v for generation %d", ev.State, ev.Generation)
	case <-time.After(50 * time.Millisecond):
	}
}

func ch(id, url string) *channel.Channel {
	return &channel.Channel{ID: id, Name: "Channel " + id, URL: url}
}

func TestManager_DirectFile(t *testing.T) {
	h := newHarness(t, Options{})

	require.NoError(t, h.m.Select(context.Background(), ch("a", "https://x/movie.mp4")))

	evs := h.expect(t, StateOpening, StateReady, StatePlaying)
	for _, ev := range evs {
		assert.Equal(t, KindDirectFile, ev.Kind)
		assert.Equal(t, uint64(1), ev.Generation)
		require.NotNil(t, ev.Channel)
		assert.Equal(t, "a", ev.Channel.ID)
	}
	assert.Equal(t, evs[0].HandleID, evs[2].HandleID)
	assert.Equal(t, "https://x/movie.mp4", h.sink.lastSource())

	st := h.m.Snapshot()
	assert.Equal(t, StatePlaying, st.State)
	require.NotNil(t, st.Handle)
	assert.Equal(t, "https://x/movie.mp4", st.Handle.EffectiveURL)
	assert.Equal(t, "a", st.Handle.ChannelID)
	assert.NoError(t, st.Err)
}

func TestManager_DirectFileDoesNotLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &fakeSink{}
	m := NewManager(&fakeSegmentEngine{}, &fakeSwarmEngine{}, sink, Options{OpenTimeout: time.Second}, zerolog.Nop())
	defer m.Close()

	require.NoError(t, m.Select(context.Background(), ch("a", "https://x/a.mp4")))
	require.NoError(t, m.Select(context.Background(), ch("b", "https://x/b.mp4")))
	m.Stop()
	assert.Equal(t, StateIdle, m.Snapshot().State)
}

func TestManager_AutoplayRejectedStaysReady(t *testing.T) {
	h := newHarness(t, Options{})
	h.sink.setPlayErr(driven.ErrAutoplayRejected)

	require.NoError(t, h.m.Select(context.Background(), ch("a", "https://x/movie.mp4")))
	h.expect(t, StateOpening, StateReady)
	h.expectQuiet(t)
	assert.Equal(t, StateReady, h.m.Snapshot().State)
	assert.NoError(t, h.m.Snapshot().Err)

	h.sink.setPlayErr(nil)
	require.NoError(t, h.m.TogglePause())
	h.expect(t, StatePlaying)
}

func TestManager_PlayFailureIsFatal(t *testing.T) {
	h := newHarness(t, Options{})
	h.sink.setPlayErr(errEngine)

	err := h.m.Select(context.Background(), ch("a", "https://x/movie.mp4"))
	require.ErrorIs(t, err, ErrTransportFatal)

	evs := h.expect(t, StateOpening, StateReady, StateErrored)
	assert.ErrorIs(t, evs[2].Err, errEngine)
}

func TestManager_Unplayable(t *testing.T) {
	h := newHarness(t, Options{})

	err := h.m.Select(context.Background(), ch("empty", "  "))
	require.ErrorIs(t, err, ErrNoPlayableSource)

	ev := h.next(t)
	assert.Equal(t, StateErrored, ev.State, "must not pass through opening")
	assert.ErrorIs(t, ev.Err, ErrNoPlayableSource)
	require.NotNil(t, ev.Channel)
	assert.Equal(t, "empty", ev.Channel.ID)

	st := h.m.Snapshot()
	assert.Equal(t, StateErrored, st.State)
	assert.ErrorIs(t, st.Err, ErrNoPlayableSource)

	// the manager is ready for the next selection
	require.NoError(t, h.m.Select(context.Background(), ch("b", "https://x/b.mp4")))
	h.expect(t, StateOpening, StateReady, StatePlaying)
}

func TestManager_SegmentedStream(t *testing.T) {
	h := newHarness(t, Options{})

	require.NoError(t, h.m.Select(context.Background(), ch("live", "https://x/live.m3u8")))
	h.expect(t, StateOpening)

	stream := h.segments.stream(0)
	assert.Equal(t, "https://x/live.m3u8", stream.url)
	assert.True(t, stream.attached)

	stream.emit(driven.EngineEvent{Kind: driven.EngineManifestParsed})
	evs := h.expect(t, StateReady, StatePlaying)
	assert.Equal(t, KindSegmentedStream, evs[0].Kind)

	// a repeated manifest event does not restart the lifecycle
	stream.emit(driven.EngineEvent{Kind: driven.EngineManifestParsed})
	h.expectQuiet(t)
}

func TestManager_SegmentedLoadError(t *testing.T) {
	h := newHarness(t, Options{})
	h.segments.loadErr = errEngine

	err := h.m.Select(context.Background(), ch("live", "https://x/live.m3u8"))

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, KindSegmentedStream, terr.Kind)
	assert.ErrorIs(t, err, errEngine)
	h.expect(t, StateOpening, StateErrored)
}

func TestManager_FatalErrorReleasesTransport(t *testing.T) {
	for _, from := range []State{StateOpening, StatePlaying, StatePaused} {
		t.Run(from.String(), func(t *testing.T) {
			h := newHarness(t, Options{})
			require.NoError(t, h.m.Select(context.Background(), ch("live", "https://x/live.m3u8")))
			h.expect(t, StateOpening)
			stream := h.segments.stream(0)

			if from != StateOpening {
				stream.emit(driven.EngineEvent{Kind: driven.EngineManifestParsed})
				h.expect(t, StateReady, StatePlaying)
			}
			if from == StatePaused {
				require.NoError(t, h.m.TogglePause())
				h.expect(t, StatePaused)
			}

			stream.emit(driven.EngineEvent{Kind: driven.EngineFatalError, Err: errEngine})
			ev := h.next(t)

			assert.Equal(t, StateErrored, ev.State)
			assert.ErrorIs(t, ev.Err, ErrTransportFatal)
			assert.ErrorIs(t, ev.Err, errEngine)
			require.NotNil(t, ev.Channel)
			assert.Equal(t, "live", ev.Channel.ID)
			assert.True(t, stream.isDestroyed())

			// no automatic retry
			h.expectQuiet(t)
			assert.Len(t, h.segments.streams, 1)
		})
	}
}

func TestManager_StaleEventsAreDiscarded(t *testing.T) {
	h := newHarness(t, Options{})

	require.NoError(t, h.m.Select(context.Background(), ch("a", "https://x/a.m3u8")))
	h.expect(t, StateOpening)
	require.NoError(t, h.m.Select(context.Background(), ch("b", "https://x/b.m3u8")))
	evs := h.expect(t, StateClosed, StateOpening)

	assert.Equal(t, "a", evs[0].Channel.ID)
	assert.Equal(t, uint64(1), evs[0].Generation)
	assert.Equal(t, "b", evs[1].Channel.ID)
	assert.Equal(t, uint64(2), evs[1].Generation)

	streamA := h.segments.stream(0)
	streamB := h.segments.stream(1)
	assert.True(t, streamA.isDestroyed())
	assert.False(t, streamB.isDestroyed())

	streamA.emit(driven.EngineEvent{Kind: driven.EngineManifestParsed})
	streamA.emit(driven.EngineEvent{Kind: driven.EngineFatalError, Err: errEngine})
	streamB.emit(driven.EngineEvent{Kind: driven.EngineManifestParsed})

	for _, ev := range h.expect(t, StateReady, StatePlaying) {
		assert.Equal(t, "b", ev.Channel.ID)
		assert.Equal(t, uint64(2), ev.Generation)
	}
	h.expectQuiet(t)
	assert.Equal(t, StatePlaying, h.m.Snapshot().State)
}

func TestManager_SingleLiveTransport(t *testing.T) {
	h := newHarness(t, Options{})
	h.swarms.files = []driven.SwarmFile{fakeFile{name: "movie.mp4", url: "blob:1"}}

	require.NoError(t, h.m.Select(context.Background(), ch("seg", "https://x/a.m3u8")))
	h.expect(t, StateOpening)

	require.NoError(t, h.m.Select(context.Background(), ch("swarm", "magnet:?xt=urn:btih:"+testHash)))
	h.expect(t, StateClosed, StateOpening)
	assert.True(t, h.segments.stream(0).isDestroyed())
	assert.Len(t, h.swarms.Torrents(), 1)

	require.NoError(t, h.m.Select(context.Background(), ch("file", "https://x/a.mp4")))
	h.expect(t, StateClosed, StateOpening, StateReady, StatePlaying)
	assert.Empty(t, h.swarms.Torrents())
	assert.Equal(t, 1, h.swarms.swarm(0).destroyCount())
}

func TestManager_PeerSwarm(t *testing.T) {
	h := newHarness(t, Options{})
	h.swarms.files = []driven.SwarmFile{
		fakeFile{name: "README.txt", url: "blob:readme"},
		fakeFile{name: "Movie.MKV", url: "blob:movie"},
		fakeFile{name: "extra.mp4", url: "blob:extra"},
	}

	require.NoError(t, h.m.Select(context.Background(), ch("m", "magnet:?xt=urn:btih:"+testHash)))
	h.expect(t, StateOpening)

	h.swarms.ready(0)
	evs := h.expect(t, StateReady, StatePlaying)
	assert.Equal(t, KindPeerSwarm, evs[0].Kind)
	assert.Equal(t, "blob:movie", h.sink.lastSource())
	assert.Equal(t, "blob:movie", h.m.Snapshot().Handle.EffectiveURL)
}

func TestManager_PeerSwarmReplacesPreviousSwarms(t *testing.T) {
	h := newHarness(t, Options{})
	h.swarms.files = []driven.SwarmFile{fakeFile{name: "a.mp4", url: "blob:a"}}
	other := "fedcba9876543210fedcba9876543210fedcba98"

	require.NoError(t, h.m.Select(context.Background(), ch("one", testHash)))
	h.expect(t, StateOpening)
	require.NoError(t, h.m.Select(context.Background(), ch("two", other)))
	h.expect(t, StateClosed, StateOpening)

	torrents := h.swarms.Torrents()
	require.Len(t, torrents, 1)
	assert.Equal(t, other, torrents[0].InfoHash())

	// metadata for the superseded swarm arrives late and is discarded
	h.swarms.ready(0)
	h.expectQuiet(t)
	assert.Equal(t, StateOpening, h.m.Snapshot().State)
	assert.Equal(t, 2, h.swarms.swarm(0).destroyCount())
}

func TestManager_LateSwarmDiscardedWhenInboxFull(t *testing.T) {
	h := newHarness(t, Options{})
	h.swarms.files = []driven.SwarmFile{fakeFile{name: "a.mp4", url: "blob:a"}}

	require.NoError(t, h.m.Select(context.Background(), ch("swarm", testHash)))
	h.expect(t, StateOpening)
	require.NoError(t, h.m.Select(context.Background(), ch("file", "https://x/a.mp4")))
	h.expect(t, StateClosed, StateOpening, StateReady, StatePlaying)
	require.Equal(t, 1, h.swarms.swarm(0).destroyCount())

	// stall the dispatcher and fill its inbox
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	h.m.mu.Lock()
	for range cap(h.m.inbox) + 1 {
		h.m.post(cancelled, message{apply: func(*attempt) {}})
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.swarms.ready(0)
	}()
	time.Sleep(20 * time.Millisecond)
	h.m.mu.Unlock()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ready callback blocked")
	}
	assert.Eventually(t, func() bool { return h.swarms.swarm(0).destroyCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StatePlaying, h.m.Snapshot().State)
}

func TestManager_NoPlayableFileInSwarm(t *testing.T) {
	h := newHarness(t, Options{})
	h.swarms.files = []driven.SwarmFile{fakeFile{name: "notes.txt"}, fakeFile{name: "cover.jpg"}}

	require.NoError(t, h.m.Select(context.Background(), ch("m", testHash)))
	h.expect(t, StateOpening)

	h.swarms.ready(0)
	ev := h.next(t)
	assert.Equal(t, StateErrored, ev.State)
	assert.ErrorIs(t, ev.Err, ErrNoPlayableFileInSwarm)
	assert.Equal(t, 1, h.swarms.swarm(0).destroyCount())
	assert.Empty(t, h.swarms.Torrents())
}

func TestManager_SwarmError(t *testing.T) {
	h := newHarness(t, Options{})

	require.NoError(t, h.m.Select(context.Background(), ch("m", testHash)))
	h.expect(t, StateOpening)

	h.swarms.swarm(0).onError(errEngine)
	ev := h.next(t)
	assert.Equal(t, StateErrored, ev.State)
	assert.ErrorIs(t, ev.Err, errEngine)
	assert.Empty(t, h.swarms.Torrents())
}

func TestManager_BlobURLError(t *testing.T) {
	h := newHarness(t, Options{})
	h.swarms.files = []driven.SwarmFile{fakeFile{name: "a.mp4", err: errEngine}}

	require.NoError(t, h.m.Select(context.Background(), ch("m", testHash)))
	h.expect(t, StateOpening)

	h.swarms.ready(0)
	ev := h.next(t)
	assert.Equal(t, StateErrored, ev.State)
	assert.ErrorIs(t, ev.Err, errEngine)
}

func TestManager_OpenTimeout(t *testing.T) {
	h := newHarness(t, Options{OpenTimeout: 20 * time.Millisecond})

	require.NoError(t, h.m.Select(context.Background(), ch("slow", "https://x/slow.m3u8")))
	h.expect(t, StateOpening)

	ev := h.next(t)
	assert.Equal(t, StateErrored, ev.State)
	assert.ErrorIs(t, ev.Err, ErrOpenTimeout)
	assert.Equal(t, "open_timeout", Reason(ev.Err))
	assert.True(t, h.segments.stream(0).isDestroyed())
}

func TestManager_StopAndDeselect(t *testing.T) {
	h := newHarness(t, Options{})

	h.m.Stop()
	h.expectQuiet(t)

	require.NoError(t, h.m.Select(context.Background(), ch("a", "https://x/a.mp4")))
	h.expect(t, StateOpening, StateReady, StatePlaying)

	h.m.Stop()
	evs := h.expect(t, StateClosed, StateIdle)
	assert.Equal(t, "a", evs[0].Channel.ID)
	assert.Nil(t, evs[1].Channel)
	assert.Equal(t, 1, h.sink.resets)

	require.NoError(t, h.m.Select(context.Background(), ch("b", "https://x/b.mp4")))
	h.expect(t, StateOpening, StateReady, StatePlaying)
	require.NoError(t, h.m.Select(context.Background(), nil))
	h.expect(t, StateClosed, StateIdle)

	st := h.m.Snapshot()
	assert.Equal(t, StateIdle, st.State)
	assert.Nil(t, st.Handle)
}

func TestManager_StopAfterError(t *testing.T) {
	h := newHarness(t, Options{})

	require.Error(t, h.m.Select(context.Background(), ch("x", "")))
	h.expect(t, StateErrored)

	h.m.Stop()
	h.expect(t, StateIdle)
}

func TestManager_TogglePause(t *testing.T) {
	h := newHarness(t, Options{})

	assert.ErrorIs(t, h.m.TogglePause(), ErrNotPlaying)

	require.NoError(t, h.m.Select(context.Background(), ch("live", "https://x/live.m3u8")))
	h.expect(t, StateOpening)
	assert.ErrorIs(t, h.m.TogglePause(), ErrNotPlaying)

	h.segments.stream(0).emit(driven.EngineEvent{Kind: driven.EngineManifestParsed})
	h.expect(t, StateReady, StatePlaying)

	require.NoError(t, h.m.TogglePause())
	h.expect(t, StatePaused)
	require.NoError(t, h.m.TogglePause())
	h.expect(t, StatePlaying)

	assert.False(t, h.segments.stream(0).isDestroyed())
	assert.Equal(t, 1, h.sink.pauses)
}

func TestManager_Subscriptions(t *testing.T) {
	m := NewManager(&fakeSegmentEngine{}, &fakeSwarmEngine{}, &fakeSink{}, Options{}, zerolog.Nop())

	events, cancel := m.Subscribe()
	cancel()
	_, ok := <-events
	assert.False(t, ok)
	cancel()

	other, _ := m.Subscribe()
	m.Close()
	_, ok = <-other
	assert.False(t, ok)

	late, _ := m.Subscribe()
	_, ok = <-late
	assert.False(t, ok)

	assert.ErrorIs(t, m.Select(context.Background(), ch("a", "https://x/a.mp4")), ErrManagerClosed)
	m.Close()
}

func TestManager_SlowSubscriberIsDropped(t *testing.T) {
	m := NewManager(&fakeSegmentEngine{}, &fakeSwarmEngine{}, &fakeSink{}, Options{}, zerolog.Nop())
	defer m.Close()
	events, _ := m.Subscribe()

	for i := 0; i < subscriberBuffer; i++ {
		require.NoError(t, m.Select(context.Background(), ch("a", "https://x/a.mp4")))
	}

	n := 0
	for range events {
		n++
	}
	assert.Equal(t, subscriberBuffer, n)
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrNoPlayableSource, "no_playable_source"},
		{ErrNoPlayableFileInSwarm, "no_playable_file"},
		{&TransportError{Kind: KindDirectFile, Err: errEngine}, "transport"},
		{&TransportError{Kind: KindDirectFile, Err: ErrOpenTimeout}, "open_timeout"},
		{errors.New("other"), "other"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Reason(tt.err))
	}
}
