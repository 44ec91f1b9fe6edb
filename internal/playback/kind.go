package playback

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/alorle/iptv-hub/internal/channel"
)

// TransportKind is the delivery mechanism chosen for a channel.
type TransportKind int

const (
	KindUnplayable TransportKind = iota
	KindPeerSwarm
	KindSegmentedStream
	KindDirectFile
)

func (k TransportKind) String() string {
	switch k {
	case KindPeerSwarm:
		return "peer-swarm"
	case KindSegmentedStream:
		return "segmented-stream"
	case KindDirectFile:
		return "direct-file"
	default:
		return "unplayable"
	}
}

// MarshalText renders the kind by name in JSON payloads.
func (k TransportKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *TransportKind) UnmarshalText(text []byte) error {
	for kind := KindUnplayable; kind <= KindDirectFile; kind++ {
		if kind.String() == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown transport kind %q", text)
}

const (
	magnetPrefix  = "magnet:?"
	btihPrefix    = "urn:btih:"
	segmentSuffix = ".m3u8"
)

var infoHashRegex = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// Classify decides how a channel's locator must be played. It is total:
// every channel maps to exactly one kind.
func Classify(ch channel.Channel) TransportKind {
	loc := strings.TrimSpace(ch.URL)
	switch {
	case loc == "":
		return KindUnplayable
	case isSwarmDescriptor(loc):
		return KindPeerSwarm
	case isSegmentedLocator(loc):
		return KindSegmentedStream
	default:
		return KindDirectFile
	}
}

func isSwarmDescriptor(loc string) bool {
	if infoHashRegex.MatchString(loc) {
		return true
	}
	return magnetInfoHash(loc) != ""
}

// InfoHash returns the lowercase info-hash named by a swarm descriptor, or ""
// when loc is not a swarm descriptor.
func InfoHash(loc string) string {
	loc = strings.TrimSpace(loc)
	if infoHashRegex.MatchString(loc) {
		return strings.ToLower(loc)
	}
	return strings.ToLower(magnetInfoHash(loc))
}

func magnetInfoHash(loc string) string {
	if len(loc) < len(magnetPrefix) || !strings.EqualFold(loc[:len(magnetPrefix)], magnetPrefix) {
		return ""
	}
	// Malformed parameters are skipped; the remaining ones are still usable.
	query, _ := url.ParseQuery(loc[len(magnetPrefix):])
	for _, xt := range query["xt"] {
		if len(xt) > len(btihPrefix) && strings.EqualFold(xt[:len(btihPrefix)], btihPrefix) {
			return xt[len(btihPrefix):]
		}
	}
	return ""
}

func isSegmentedLocator(loc string) bool {
	p := loc
	if u, err := url.Parse(loc); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(loc, "?#"); i >= 0 {
		p = loc[:i]
	}
	return strings.HasSuffix(strings.ToLower(p), segmentSuffix)
}

// playableExtensions lists the container formats a media sink can render
// from a swarm blob.
var playableExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".webm": true,
	".mov":  true,
}

// IsPlayableFile reports whether a swarm file name has a playable extension.
func IsPlayableFile(name string) bool {
	return playableExtensions[strings.ToLower(path.Ext(name))]
}
