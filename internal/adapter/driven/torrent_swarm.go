package driven

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/rs/zerolog"

	port "github.com/alorle/iptv-hub/internal/port/driven"
)

// TorrentConfig configures the BitTorrent client backing the swarm engine.
type TorrentConfig struct {
	DataDir string
	// PublicURL is the externally reachable base URL blob locators are built on.
	PublicURL string
	// ListenPort 0 picks a random port.
	ListenPort int

	NoDHT           bool
	DisableTrackers bool
}

// TorrentSwarmEngine implements the SwarmEngine port on top of anacrolix/torrent.
// File contents are exposed over HTTP at {PublicURL}/swarm/{infohash}/{index}.
type TorrentSwarmEngine struct {
	cl        *torrent.Client
	publicURL string
	logger    zerolog.Logger
	wg        sync.WaitGroup
}

// NewTorrentSwarmEngine starts a BitTorrent client storing data under cfg.DataDir.
func NewTorrentSwarmEngine(cfg TorrentConfig, logger zerolog.Logger) (*TorrentSwarmEngine, error) {
	tc := torrent.NewDefaultClientConfig()
	tc.DataDir = cfg.DataDir
	tc.ListenPort = cfg.ListenPort
	tc.Seed = false
	tc.NoDHT = cfg.NoDHT
	tc.DisableTrackers = cfg.DisableTrackers

	cl, err := torrent.NewClient(tc)
	if err != nil {
		return nil, fmt.Errorf("start torrent client: %w", err)
	}

	return &TorrentSwarmEngine{
		cl:        cl,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		logger:    logger,
	}, nil
}

// Add registers a magnet link or a 40 character hex info-hash. onReady fires from
// a background goroutine once the torrent metadata is known.
func (e *TorrentSwarmEngine) Add(ctx context.Context, descriptor string, onReady func(port.Swarm), onError func(error)) error {
	descriptor = strings.TrimSpace(descriptor)

	var (
		t   *torrent.Torrent
		err error
	)
	if strings.HasPrefix(strings.ToLower(descriptor), "magnet:") {
		t, err = e.cl.AddMagnet(descriptor)
		if err != nil {
			return fmt.Errorf("add magnet: %w", err)
		}
	} else {
		var h metainfo.Hash
		if err := h.FromHexString(descriptor); err != nil {
			return fmt.Errorf("parse info-hash %q: %w", descriptor, err)
		}
		t, _ = e.cl.AddTorrentInfoHash(h)
	}

	e.logger.Debug().Str("infohash", t.InfoHash().HexString()).Msg("Swarm added")
	e.track(ctx, t, onReady, onError)
	return nil
}

// track waits for t's metadata in the background. Nothing is reported when ctx
// ends first; a torrent dropped before metadata arrives reports an error.
func (e *TorrentSwarmEngine) track(ctx context.Context, t *torrent.Torrent, onReady func(port.Swarm), onError func(error)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		select {
		case <-t.GotInfo():
			e.logger.Debug().
				Str("infohash", t.InfoHash().HexString()).
				Int("files", len(t.Files())).
				Msg("Swarm metadata received")
			onReady(&torrentSwarm{engine: e, t: t})
		case <-t.Closed():
			if onError != nil {
				onError(fmt.Errorf("swarm %s dropped before metadata", t.InfoHash().HexString()))
			}
		case <-ctx.Done():
		}
	}()
}

// Torrents lists every torrent the client currently tracks.
func (e *TorrentSwarmEngine) Torrents() []port.Swarm {
	ts := e.cl.Torrents()
	out := make([]port.Swarm, 0, len(ts))
	for _, t := range ts {
		out = append(out, &torrentSwarm{engine: e, t: t})
	}
	return out
}

// OpenFile returns a seekable reader over file index of the swarm with the given
// info-hash, along with the file's display name.
func (e *TorrentSwarmEngine) OpenFile(infoHash string, index int) (string, io.ReadSeekCloser, error) {
	var h metainfo.Hash
	if err := h.FromHexString(infoHash); err != nil {
		return "", nil, port.ErrSwarmNotFound
	}
	t, ok := e.cl.Torrent(h)
	if !ok {
		return "", nil, port.ErrSwarmNotFound
	}
	if t.Info() == nil {
		return "", nil, port.ErrSwarmNoMetadata
	}
	files := t.Files()
	if index < 0 || index >= len(files) {
		return "", nil, port.ErrSwarmFileNotFound
	}

	f := files[index]
	r := f.NewReader()
	r.SetResponsive()
	return f.DisplayPath(), r, nil
}

// Close drops every torrent and shuts the client down.
func (e *TorrentSwarmEngine) Close() error {
	errs := e.cl.Close()
	e.wg.Wait()
	return errors.Join(errs...)
}

type torrentSwarm struct {
	engine *TorrentSwarmEngine
	t      *torrent.Torrent
	once   sync.Once
}

func (s *torrentSwarm) InfoHash() string {
	return s.t.InfoHash().HexString()
}

func (s *torrentSwarm) Files() []port.SwarmFile {
	if s.t.Info() == nil {
		return nil
	}
	files := s.t.Files()
	out := make([]port.SwarmFile, 0, len(files))
	for i, f := range files {
		out = append(out, &torrentFile{swarm: s, index: i, f: f})
	}
	return out
}

// Destroy drops the torrent. It is idempotent and leaves alone a newer torrent
// that was added for the same info-hash after this one was dropped.
func (s *torrentSwarm) Destroy() error {
	s.once.Do(func() {
		current, ok := s.engine.cl.Torrent(s.t.InfoHash())
		if !ok || current != s.t {
			return
		}
		s.t.Drop()
		s.engine.logger.Debug().Str("infohash", s.InfoHash()).Msg("Swarm destroyed")
	})
	return nil
}

type torrentFile struct {
	swarm *torrentSwarm
	index int
	f     *torrent.File
}

func (f *torrentFile) Name() string {
	return f.f.DisplayPath()
}

func (f *torrentFile) Length() int64 {
	return f.f.Length()
}

// BlobURL marks the file for download and returns its HTTP locator.
func (f *torrentFile) BlobURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.f.Download()
	return fmt.Sprintf("%s/swarm/%s/%d", f.swarm.engine.publicURL, f.swarm.InfoHash(), f.index), nil
}
