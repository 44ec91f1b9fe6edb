package playback

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alorle/iptv-hub/internal/channel"
	"github.com/alorle/iptv-hub/internal/port/driven"
	"github.com/alorle/iptv-hub/metrics"
)

const (
	subscriberBuffer = 64
	inboxBuffer      = 64
)

// Options tune a Manager.
type Options struct {
	// OpenTimeout bounds how long an attempt may stay in Opening. Zero disables it.
	OpenTimeout time.Duration
}

// attempt is one selection, from Opening until it is released.
type attempt struct {
	handle   Handle
	channel  channel.Channel
	ctx      context.Context
	cancel   context.CancelFunc
	timer    *time.Timer
	stream   driven.SegmentStream
	infoHash string
}

// message carries an engine callback back into the manager. apply runs under
// the manager lock only while the attempt that produced it is still live;
// stale runs instead when it is not.
type message struct {
	generation uint64
	apply      func(*attempt)
	stale      func()
}

// Manager owns the single playback session: it picks the transport for a
// selected channel, drives it through its lifecycle and releases it.
// At most one transport is live at any time.
type Manager struct {
	segments driven.SegmentEngine
	swarms   driven.SwarmEngine
	sink     driven.MediaSink
	opts     Options
	logger   zerolog.Logger

	mu         sync.Mutex
	generation uint64
	state      State
	current    *attempt
	subs       map[int]chan Event
	nextSub    int
	closed     bool

	inbox chan message
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewManager creates a manager in the Idle state. Close must be called to
// release the live transport and stop the dispatch goroutine.
func NewManager(segments driven.SegmentEngine, swarms driven.SwarmEngine, sink driven.MediaSink, opts Options, logger zerolog.Logger) *Manager {
	m := &Manager{
		segments: segments,
		swarms:   swarms,
		sink:     sink,
		opts:     opts,
		logger:   logger,
		state:    StateIdle,
		subs:     make(map[int]chan Event),
		inbox:    make(chan message, inboxBuffer),
		done:     make(chan struct{}),
	}
	m.wg.Add(1)
	go m.run()
	return m
}

func (m *Manager) run() {
	defer m.wg.Done()
	for {
		select {
		case msg := <-m.inbox:
			m.dispatch(msg)
		case <-m.done:
			return
		}
	}
}

func (m *Manager) dispatch(msg message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	att := m.current
	if att == nil || att.handle.Generation != msg.generation || !att.handle.State.live() {
		metrics.RecordStaleEvent()
		m.logger.Debug().
			Uint64("generation", msg.generation).
			Uint64("current", m.generation).
			Msg("discarding stale transport event")
		if msg.stale != nil {
			msg.stale()
		}
		return
	}
	msg.apply(att)
}

// post queues msg for dispatch. It gives up once the attempt's context is
// cancelled or the manager is closed, so engines never block on a released session.
// A message dropped for a cancelled attempt still runs its stale hook. post
// must not be called with m.mu held.
func (m *Manager) post(ctx context.Context, msg message) {
	select {
	case m.inbox <- msg:
		return
	default:
	}
	select {
	case m.inbox <- msg:
	case <-ctx.Done():
		metrics.RecordStaleEvent()
		if msg.stale != nil {
			m.mu.Lock()
			msg.stale()
			m.mu.Unlock()
		}
	case <-m.done:
	}
}

// Select tears down the live session, if any, and starts playing ch.
// A nil channel only tears down. The returned error reports failures that
// happen before Select returns; later failures arrive as Errored events.
func (m *Manager) Select(ctx context.Context, ch *channel.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}

	m.releaseLocked()
	if ch == nil {
		m.idleLocked()
		return nil
	}

	m.generation++
	att := &attempt{
		handle: Handle{
			ID:         uuid.NewString(),
			Kind:       Classify(*ch),
			ChannelID:  ch.ID,
			Generation: m.generation,
		},
		channel: *ch,
	}
	m.current = att

	log := m.logger.With().
		Str("channel_id", ch.ID).
		Str("kind", att.handle.Kind.String()).
		Uint64("generation", att.handle.Generation).
		Logger()

	if att.handle.Kind == KindUnplayable {
		log.Info().Msg("selected channel has no playable source")
		m.failLocked(att, ErrNoPlayableSource)
		return ErrNoPlayableSource
	}

	log.Info().Msg("opening playback")
	att.ctx, att.cancel = context.WithCancel(context.WithoutCancel(ctx))
	m.transitionLocked(att, StateOpening, nil)

	if m.opts.OpenTimeout > 0 {
		gen := att.handle.Generation
		att.timer = time.AfterFunc(m.opts.OpenTimeout, func() {
			m.post(att.ctx, message{generation: gen, apply: func(a *attempt) {
				if a.handle.State == StateOpening {
					m.failLocked(a, &TransportError{Kind: a.handle.Kind, Err: ErrOpenTimeout})
				}
			}})
		})
	}

	var err error
	switch att.handle.Kind {
	case KindDirectFile:
		err = m.openDirectLocked(att)
	case KindSegmentedStream:
		err = m.openSegmentedLocked(att)
	case KindPeerSwarm:
		err = m.openSwarmLocked(att)
	}
	if err != nil {
		m.failLocked(att, err)
		return err
	}
	return nil
}

// Stop releases the live session and returns to Idle.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.releaseLocked()
	m.idleLocked()
}

// TogglePause switches between Playing and Paused. From Ready it starts
// playback, which is how a session held back by autoplay rules is resumed.
func (m *Manager) TogglePause() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	att := m.current
	if att == nil {
		return ErrNotPlaying
	}

	switch att.handle.State {
	case StatePlaying:
		if err := m.sink.Pause(); err != nil {
			return &TransportError{Kind: att.handle.Kind, Err: err}
		}
		m.transitionLocked(att, StatePaused, nil)
	case StatePaused, StateReady:
		if err := m.sink.Play(); err != nil {
			return &TransportError{Kind: att.handle.Kind, Err: err}
		}
		m.transitionLocked(att, StatePlaying, nil)
	default:
		return ErrNotPlaying
	}
	return nil
}

// Subscribe registers for state change events. The channel is closed by the
// returned cancel function, by Close, or when the subscriber falls so far
// behind that its buffer fills up.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if m.closed {
		close(ch)
		return ch, func() {}
	}

	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

// Snapshot returns the current state with the attempt it belongs to.
func (m *Manager) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{State: m.state}
	if att := m.current; att != nil {
		ch := att.channel
		h := att.handle
		st.Channel = &ch
		st.Handle = &h
		st.Err = h.Err
	}
	return st
}

// Close releases the live session, closes every subscription and stops the
// dispatch goroutine. It is safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.releaseLocked()
	m.idleLocked()
	m.closed = true
	for id, c := range m.subs {
		delete(m.subs, id)
		close(c)
	}
	m.mu.Unlock()

	close(m.done)
	m.wg.Wait()
}

func (m *Manager) openDirectLocked(att *attempt) error {
	loc := strings.TrimSpace(att.channel.URL)
	if err := m.sink.SetSource(loc); err != nil {
		return &TransportError{Kind: KindDirectFile, Err: err}
	}
	att.handle.EffectiveURL = loc
	return m.readyLocked(att)
}

func (m *Manager) openSegmentedLocked(att *attempt) error {
	loc := strings.TrimSpace(att.channel.URL)
	gen := att.handle.Generation
	ctx := att.ctx

	stream, err := m.segments.LoadSource(ctx, loc, func(ev driven.EngineEvent) {
		m.post(ctx, message{generation: gen, apply: func(a *attempt) {
			m.onEngineEventLocked(a, ev)
		}})
	})
	if err != nil {
		return &TransportError{Kind: KindSegmentedStream, Err: err}
	}
	att.stream = stream

	if err := stream.AttachTarget(m.sink); err != nil {
		return &TransportError{Kind: KindSegmentedStream, Err: err}
	}
	att.handle.EffectiveURL = loc
	return nil
}

func (m *Manager) onEngineEventLocked(att *attempt, ev driven.EngineEvent) {
	switch ev.Kind {
	case driven.EngineManifestParsed:
		if att.handle.State != StateOpening {
			return
		}
		if err := m.readyLocked(att); err != nil {
			m.failLocked(att, err)
		}
	case driven.EngineFatalError:
		err := ev.Err
		if err == nil {
			err = ErrTransportFatal
		}
		m.failLocked(att, &TransportError{Kind: att.handle.Kind, Err: err})
	}
}

func (m *Manager) openSwarmLocked(att *attempt) error {
	m.destroySwarmsLocked()

	loc := strings.TrimSpace(att.channel.URL)
	att.infoHash = InfoHash(loc)
	gen := att.handle.Generation
	ctx := att.ctx

	onReady := func(s driven.Swarm) {
		m.post(ctx, message{
			generation: gen,
			apply:      func(a *attempt) { m.onSwarmReadyLocked(a, s) },
			stale:      func() { m.discardSwarmLocked(s) },
		})
	}
	onError := func(err error) {
		m.post(ctx, message{generation: gen, apply: func(a *attempt) {
			m.failLocked(a, &TransportError{Kind: KindPeerSwarm, Err: err})
		}})
	}

	if err := m.swarms.Add(ctx, loc, onReady, onError); err != nil {
		return &TransportError{Kind: KindPeerSwarm, Err: err}
	}
	return nil
}

func (m *Manager) onSwarmReadyLocked(att *attempt, s driven.Swarm) {
	if att.handle.State != StateOpening {
		return
	}

	var file driven.SwarmFile
	for _, f := range s.Files() {
		if IsPlayableFile(f.Name()) {
			file = f
			break
		}
	}
	if file == nil {
		m.failLocked(att, ErrNoPlayableFileInSwarm)
		return
	}

	m.logger.Debug().
		Str("info_hash", s.InfoHash()).
		Str("file", file.Name()).
		Int64("length", file.Length()).
		Msg("swarm metadata ready")

	gen := att.handle.Generation
	ctx := att.ctx
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		blobURL, err := file.BlobURL(ctx)
		m.post(ctx, message{generation: gen, apply: func(a *attempt) {
			m.onBlobLocked(a, blobURL, err)
		}})
	}()
}

func (m *Manager) onBlobLocked(att *attempt, blobURL string, err error) {
	if att.handle.State != StateOpening {
		return
	}
	if err != nil {
		m.failLocked(att, &TransportError{Kind: KindPeerSwarm, Err: err})
		return
	}
	if err := m.sink.SetSource(blobURL); err != nil {
		m.failLocked(att, &TransportError{Kind: KindPeerSwarm, Err: err})
		return
	}
	att.handle.EffectiveURL = blobURL
	if err := m.readyLocked(att); err != nil {
		m.failLocked(att, err)
	}
}

// discardSwarmLocked destroys a swarm that became ready after its attempt was
// superseded, unless the live attempt is playing the same info-hash.
func (m *Manager) discardSwarmLocked(s driven.Swarm) {
	if cur := m.current; cur != nil && cur.handle.State.live() &&
		cur.infoHash != "" && strings.EqualFold(cur.infoHash, s.InfoHash()) {
		return
	}
	if err := s.Destroy(); err != nil {
		m.logger.Warn().Err(err).Str("info_hash", s.InfoHash()).Msg("failed to destroy stale swarm")
	}
}

func (m *Manager) destroySwarmsLocked() {
	for _, s := range m.swarms.Torrents() {
		if err := s.Destroy(); err != nil {
			m.logger.Warn().Err(err).Str("info_hash", s.InfoHash()).Msg("failed to destroy swarm")
		}
	}
}

func (m *Manager) readyLocked(att *attempt) error {
	if att.timer != nil {
		att.timer.Stop()
	}
	m.transitionLocked(att, StateReady, nil)

	if err := m.sink.Play(); err != nil {
		if errors.Is(err, driven.ErrAutoplayRejected) {
			m.logger.Debug().Str("channel_id", att.channel.ID).Msg("autoplay rejected, waiting for user")
			return nil
		}
		return &TransportError{Kind: att.handle.Kind, Err: err}
	}
	m.transitionLocked(att, StatePlaying, nil)
	return nil
}

// failLocked releases whatever the attempt holds and moves it to Errored.
func (m *Manager) failLocked(att *attempt, err error) {
	m.teardownLocked(att)
	att.handle.Err = err
	m.transitionLocked(att, StateErrored, err)

	metrics.RecordPlaybackFailure(att.handle.Kind.String(), Reason(err))
	m.logger.Warn().
		Err(err).
		Str("channel_id", att.channel.ID).
		Str("kind", att.handle.Kind.String()).
		Uint64("generation", att.handle.Generation).
		Msg("playback failed")
}

// releaseLocked tears down the live attempt and reports it Closed.
func (m *Manager) releaseLocked() {
	att := m.current
	m.current = nil
	if att == nil || !att.handle.State.live() {
		return
	}
	m.teardownLocked(att)
	m.transitionLocked(att, StateClosed, nil)
}

func (m *Manager) teardownLocked(att *attempt) {
	if att.cancel != nil {
		att.cancel()
	}
	if att.timer != nil {
		att.timer.Stop()
	}
	if att.stream != nil {
		att.stream.Destroy()
		att.stream = nil
	}
	if att.handle.Kind == KindPeerSwarm {
		m.destroySwarmsLocked()
	}
	if att.handle.State.live() {
		m.sink.Reset()
	}
}

func (m *Manager) idleLocked() {
	m.current = nil
	if m.state == StateIdle {
		return
	}
	m.state = StateIdle
	metrics.RecordPlaybackTransition(StateIdle.String())
	m.publishLocked(Event{State: StateIdle})
}

func (m *Manager) transitionLocked(att *attempt, state State, err error) {
	att.handle.State = state
	m.state = state
	metrics.RecordPlaybackTransition(state.String())

	ch := att.channel
	m.publishLocked(Event{
		State:      state,
		Channel:    &ch,
		Err:        err,
		HandleID:   att.handle.ID,
		Generation: att.handle.Generation,
		Kind:       att.handle.Kind,
	})
}

// publishLocked fans ev out to subscribers. Slow subscribers whose buffers
// are full are dropped.
func (m *Manager) publishLocked(ev Event) {
	for id, c := range m.subs {
		select {
		case c <- ev:
		default:
			m.logger.Warn().Int("subscriber", id).Msg("dropping slow playback subscriber")
			delete(m.subs, id)
			close(c)
		}
	}
}
