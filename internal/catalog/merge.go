package catalog

import (
	"github.com/alorle/iptv-hub/internal/channel"
)

// Source is one parsed playlist or catalog, labelled for logging.
type Source struct {
	Label    string
	Channels []channel.Channel
}

// Merge folds sources in order into a new Directory, then folds overrides
// last and marks their ids as verified. A channel whose id is already
// present overwrites the existing entry field by field, but only with
// non-empty values. Channels violating the channel invariants are skipped.
//
// Merge is deterministic: the same inputs always produce the same directory.
func Merge(sources []Source, overrides []channel.Channel) *Directory {
	d := NewDirectory()

	for _, src := range sources {
		for _, ch := range src.Channels {
			if channel.Validate(ch) != nil {
				continue
			}
			d.upsert(ch)
		}
	}

	for _, ch := range overrides {
		if channel.Validate(ch) != nil {
			continue
		}
		d.upsert(ch)
		d.verified[ch.ID] = struct{}{}
	}

	return d
}

// Restore rebuilds a directory from a persisted channel list and the ids that
// were verified when it was saved. Verified ids without a channel are ignored.
func Restore(channels []channel.Channel, verifiedIDs []string) *Directory {
	d := Merge([]Source{{Label: "restored", Channels: channels}}, nil)
	for _, id := range verifiedIDs {
		if _, ok := d.entries[id]; ok {
			d.verified[id] = struct{}{}
		}
	}
	return d
}
