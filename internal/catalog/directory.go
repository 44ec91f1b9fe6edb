// Package catalog merges parsed channel sources into a single directory.
package catalog

import (
	"strings"

	"github.com/alorle/iptv-hub/internal/channel"
)

// UndefinedGroup is the category label used for channels without a group.
const UndefinedGroup = "Undefined"

// Directory is an insertion-ordered set of channels keyed by id, together
// with the ids that came from the verified override list. A Directory
// returned by Merge is never mutated afterwards and is safe for concurrent
// reads.
type Directory struct {
	order    []string
	entries  map[string]channel.Channel
	verified map[string]struct{}
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		entries:  make(map[string]channel.Channel),
		verified: make(map[string]struct{}),
	}
}

// upsert inserts ch or overlays its non-empty fields onto the existing entry.
func (d *Directory) upsert(ch channel.Channel) {
	existing, ok := d.entries[ch.ID]
	if !ok {
		d.order = append(d.order, ch.ID)
		d.entries[ch.ID] = ch
		return
	}
	d.entries[ch.ID] = channel.Overlay(existing, ch)
}

// Len returns the number of channels.
func (d *Directory) Len() int {
	return len(d.order)
}

// Lookup returns the channel with the given id.
func (d *Directory) Lookup(id string) (channel.Channel, bool) {
	ch, ok := d.entries[id]
	return ch, ok
}

// Channels returns all channels in directory order.
func (d *Directory) Channels() []channel.Channel {
	out := make([]channel.Channel, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.entries[id])
	}
	return out
}

// IsVerified reports whether id was provided by the verified override list.
func (d *Directory) IsVerified(id string) bool {
	_, ok := d.verified[id]
	return ok
}

// VerifiedIDs returns the verified ids in directory order.
func (d *Directory) VerifiedIDs() []string {
	out := make([]string, 0, len(d.verified))
	for _, id := range d.order {
		if _, ok := d.verified[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Search returns channels whose name contains query (case-insensitive) and,
// when group is non-empty, whose category label equals group. Empty query
// and group return every channel.
func (d *Directory) Search(query, group string) []channel.Channel {
	query = strings.ToLower(strings.TrimSpace(query))
	out := []channel.Channel{}
	for _, id := range d.order {
		ch := d.entries[id]
		if group != "" && categoryLabel(ch) != group {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(ch.Name), query) {
			continue
		}
		out = append(out, ch)
	}
	return out
}

func categoryLabel(ch channel.Channel) string {
	if ch.Group == "" {
		return UndefinedGroup
	}
	return ch.Group
}
