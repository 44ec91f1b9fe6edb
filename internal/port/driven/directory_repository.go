package driven

import (
	"context"

	"github.com/alorle/iptv-hub/internal/channel"
)

// DirectoryRepository persists the merged channel directory.
// This is a driven port that will be implemented by concrete adapters (e.g., BoltDB).
type DirectoryRepository interface {
	// SaveDirectory replaces the stored directory with channels (in order) and
	// the set of verified ids.
	SaveDirectory(ctx context.Context, channels []channel.Channel, verifiedIDs []string) error

	// LoadDirectory returns the last saved directory. An empty repository
	// yields empty slices and no error.
	LoadDirectory(ctx context.Context) (channels []channel.Channel, verifiedIDs []string, err error)

	// Ping checks if the repository (database) is accessible and operational.
	Ping(ctx context.Context) error
}
