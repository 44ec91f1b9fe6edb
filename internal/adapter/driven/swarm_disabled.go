package driven

import (
	"context"
	"errors"
	"io"

	port "github.com/alorle/iptv-hub/internal/port/driven"
)

// ErrSwarmDisabled is returned when peer-swarm playback is turned off.
var ErrSwarmDisabled = errors.New("peer swarm support is disabled")

// DisabledSwarmEngine rejects every swarm. It stands in for the torrent
// engine when it is turned off in the configuration.
type DisabledSwarmEngine struct{}

func (DisabledSwarmEngine) Add(context.Context, string, func(port.Swarm), func(error)) error {
	return ErrSwarmDisabled
}

func (DisabledSwarmEngine) Torrents() []port.Swarm { return nil }

func (DisabledSwarmEngine) OpenFile(string, int) (string, io.ReadSeekCloser, error) {
	return "", nil, port.ErrSwarmNotFound
}
