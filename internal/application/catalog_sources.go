package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/alorle/iptv-hub/internal/catalog"
	"github.com/alorle/iptv-hub/internal/channel"
	"github.com/alorle/iptv-hub/internal/m3u"
	"github.com/alorle/iptv-hub/internal/port/driven"
	"github.com/alorle/iptv-hub/metrics"
)

// CatalogSource produces the channels of one configured catalog.
type CatalogSource interface {
	Name() string
	Channels(ctx context.Context) ([]channel.Channel, error)
}

// M3USource downloads and parses an M3U playlist.
type M3USource struct {
	name    string
	url     string
	fetcher driven.SourceFetcher
}

// NewM3USource creates a playlist source labelled name.
func NewM3USource(name, url string, fetcher driven.SourceFetcher) *M3USource {
	return &M3USource{name: name, url: url, fetcher: fetcher}
}

func (s *M3USource) Name() string { return s.name }

// Channels fetches the playlist and parses it. Parse statistics are recorded
// per source.
func (s *M3USource) Channels(ctx context.Context) ([]channel.Channel, error) {
	body, err := s.fetcher.Fetch(ctx, s.url)
	if err != nil {
		return nil, err
	}
	chans, stats := m3u.ParseWithStats(string(body))
	metrics.RecordParse(s.name, stats.Channels, stats.Orphaned, stats.Malformed, stats.Nameless)
	return chans, nil
}

// LiveChannelLister is implemented by Xtream panel clients.
type LiveChannelLister interface {
	LiveChannels(ctx context.Context) ([]channel.Channel, error)
}

// XtreamSource lists the live channels of an Xtream panel.
type XtreamSource struct {
	name   string
	client LiveChannelLister
}

// NewXtreamSource creates a panel source labelled name.
func NewXtreamSource(name string, client LiveChannelLister) *XtreamSource {
	return &XtreamSource{name: name, client: client}
}

func (s *XtreamSource) Name() string { return s.name }

func (s *XtreamSource) Channels(ctx context.Context) ([]channel.Channel, error) {
	chans, err := s.client.LiveChannels(ctx)
	if err != nil {
		return nil, err
	}
	metrics.RecordParse(s.name, len(chans), 0, 0, 0)
	return chans, nil
}

// VerifiedSource reads the curated verified-channel list from a URL or a
// local file. The URL wins when both are set.
type VerifiedSource struct {
	url     string
	path    string
	fetcher driven.SourceFetcher
}

// NewVerifiedSource creates a verified list reader. It returns nil when
// neither url nor path is set.
func NewVerifiedSource(url, path string, fetcher driven.SourceFetcher) *VerifiedSource {
	if url == "" && path == "" {
		return nil
	}
	return &VerifiedSource{url: url, path: path, fetcher: fetcher}
}

// Load reads and decodes the verified list.
func (v *VerifiedSource) Load(ctx context.Context) (catalog.VerifiedList, error) {
	var (
		body []byte
		err  error
	)
	if v.url != "" {
		if v.fetcher == nil {
			return catalog.VerifiedList{}, errors.New("verified list: no fetcher configured")
		}
		body, err = v.fetcher.Fetch(ctx, v.url)
	} else {
		body, err = os.ReadFile(v.path)
	}
	if err != nil {
		return catalog.VerifiedList{}, fmt.Errorf("read verified list: %w", err)
	}
	return catalog.DecodeVerified(bytes.NewReader(body))
}
