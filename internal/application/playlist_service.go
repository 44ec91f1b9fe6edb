package application

import (
	"io"

	"github.com/alorle/iptv-hub/internal/catalog"
	"github.com/alorle/iptv-hub/internal/m3u"
)

// DirectorySnapshot returns the published channel directory.
type DirectorySnapshot interface {
	Directory() *catalog.Directory
}

// PlaylistService provides use cases for playlist generation.
type PlaylistService struct {
	directory DirectorySnapshot
	guideURLs []string
}

// NewPlaylistService creates a new PlaylistService. guideURLs are advertised
// in the playlist header.
func NewPlaylistService(directory DirectorySnapshot, guideURLs []string) *PlaylistService {
	return &PlaylistService{
		directory: directory,
		guideURLs: guideURLs,
	}
}

// WriteM3U writes the merged directory as an M3U playlist. A non-empty group
// restricts the output to that category.
// Returns a playlist with only the #EXTM3U header if the directory is empty.
func (p *PlaylistService) WriteM3U(w io.Writer, group string) error {
	channels := p.directory.Directory().Search("", group)
	return m3u.Encode(w, channels, p.guideURLs)
}
