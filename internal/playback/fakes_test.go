package playback

import (
	"context"
	"errors"
	"sync"

	"github.com/alorle/iptv-hub/internal/port/driven"
)

type fakeSink struct {
	mu      sync.Mutex
	sources []string
	setErr  error
	playErr error
	plays   int
	pauses  int
	resets  int
}

func (s *fakeSink) SetSource(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.sources = append(s.sources, url)
	return nil
}

func (s *fakeSink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays++
	return s.playErr
}

func (s *fakeSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauses++
	return nil
}

func (s *fakeSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

func (s *fakeSink) lastSource() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sources) == 0 {
		return ""
	}
	return s.sources[len(s.sources)-1]
}

func (s *fakeSink) setPlayErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playErr = err
}

type fakeStream struct {
	url       string
	emit      func(driven.EngineEvent)
	mu        sync.Mutex
	attached  bool
	destroyed bool
}

func (s *fakeStream) AttachTarget(driven.MediaSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = true
	return nil
}

func (s *fakeStream) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
}

func (s *fakeStream) isDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

type fakeSegmentEngine struct {
	mu      sync.Mutex
	streams []*fakeStream
	loadErr error
}

func (e *fakeSegmentEngine) LoadSource(_ context.Context, url string, emit func(driven.EngineEvent)) (driven.SegmentStream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loadErr != nil {
		return nil, e.loadErr
	}
	s := &fakeStream{url: url, emit: emit}
	e.streams = append(e.streams, s)
	return s, nil
}

func (e *fakeSegmentEngine) stream(i int) *fakeStream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streams[i]
}

type fakeFile struct {
	name string
	url  string
	err  error
}

func (f fakeFile) Name() string { return f.name }
func (f fakeFile) Length() int64 { return 1 << 20 }

func (f fakeFile) BlobURL(context.Context) (string, error) {
	return f.url, f.err
}

type fakeSwarm struct {
	hash      string
	files     []driven.SwarmFile
	onReady   func(driven.Swarm)
	onError   func(error)
	mu        sync.Mutex
	destroyed int
}

func (s *fakeSwarm) InfoHash() string { return s.hash }
func (s *fakeSwarm) Files() []driven.SwarmFile { return s.files }

func (s *fakeSwarm) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed++
	return nil
}

func (s *fakeSwarm) destroyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

type fakeSwarmEngine struct {
	mu     sync.Mutex
	swarms []*fakeSwarm
	files  []driven.SwarmFile
	addErr error
}

func (e *fakeSwarmEngine) Add(_ context.Context, descriptor string, onReady func(driven.Swarm), onError func(error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.addErr != nil {
		return e.addErr
	}
	e.swarms = append(e.swarms, &fakeSwarm{
		hash:    InfoHash(descriptor),
		files:   e.files,
		onReady: onReady,
		onError: onError,
	})
	return nil
}

func (e *fakeSwarmEngine) Torrents() []driven.Swarm {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []driven.Swarm
	for _, s := range e.swarms {
		if s.destroyCount() == 0 {
			out = append(out, s)
		}
	}
	return out
}

func (e *fakeSwarmEngine) swarm(i int) *fakeSwarm {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.swarms[i]
}

// ready simulates the engine resolving metadata for swarm i.
func (e *fakeSwarmEngine) ready(i int) {
	s := e.swarm(i)
	s.onReady(s)
}

var errEngine = errors.New("engine exploded")
