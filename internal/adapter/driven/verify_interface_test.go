package driven

import (
	port "github.com/alorle/iptv-hub/internal/port/driven"
)

// Compile-time check that DirectoryBoltDBRepository implements DirectoryRepository interface
var _ port.DirectoryRepository = (*DirectoryBoltDBRepository)(nil)

// Compile-time check that HLSEngine implements SegmentEngine interface
var _ port.SegmentEngine = (*HLSEngine)(nil)

// Compile-time check that the swarm engines implement SwarmEngine and SwarmFileOpener
var (
	_ port.SwarmEngine     = (*TorrentSwarmEngine)(nil)
	_ port.SwarmFileOpener = (*TorrentSwarmEngine)(nil)
	_ port.SwarmEngine     = DisabledSwarmEngine{}
	_ port.SwarmFileOpener = DisabledSwarmEngine{}
)

// Compile-time check that HeadlessSink implements MediaSink interface
var _ port.MediaSink = (*HeadlessSink)(nil)
