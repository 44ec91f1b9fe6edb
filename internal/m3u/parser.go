// Package m3u reads and writes M3U-family playlists.
package m3u

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"github.com/alorle/iptv-hub/internal/channel"
)

const (
	directivePrefix = "#EXTINF:"
	groupPrefix     = "#EXTGRP:"
	bom             = "\uFEFF"
)

var attrRegex = regexp.MustCompile(`([A-Za-z0-9_-]+)=(?:"([^"]*)"|([^\s",]+))`)

// Stats counts what a parse run kept and what it discarded.
type Stats struct {
	Channels   int // channels produced
	Orphaned   int // directives with no locator before the next directive or EOF
	Malformed  int // directives with an unreadable duration field
	Nameless   int // entries with neither a display name nor tvg-name
	Stray      int // locator lines with no pending directive
	RenamedIDs int // entries whose id collided and received a suffix
}

// Dropped returns the number of directives that did not produce a channel.
func (s Stats) Dropped() int {
	return s.Orphaned + s.Malformed + s.Nameless
}

// pendingEntry accumulates directive metadata until its locator line shows up.
type pendingEntry struct {
	position    int
	attrs       map[string]string
	displayName string
	extGroup    string
}

// Parse turns playlist text into channels, in input order. It never fails:
// malformed, orphaned and nameless entries are dropped. Every returned
// channel has a non-empty name and an id that is unique within the result.
func Parse(text string) []channel.Channel {
	channels, _ := ParseWithStats(text)
	return channels
}

// ParseWithStats is Parse plus counters describing the dropped entries.
func ParseWithStats(text string) ([]channel.Channel, Stats) {
	var stats Stats
	var pending *pendingEntry
	position := 0
	channels := []channel.Channel{}
	seenIDs := make(map[string]struct{})

	text = strings.TrimPrefix(text, bom)

	for raw := range strings.Lines(text) {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, directivePrefix):
			if pending != nil {
				stats.Orphaned++
			}
			position++
			entry, ok := parseDirective(line[len(directivePrefix):])
			if !ok {
				stats.Malformed++
				pending = nil
				continue
			}
			entry.position = position
			pending = entry

		case strings.HasPrefix(upper, groupPrefix):
			if pending != nil && pending.extGroup == "" {
				pending.extGroup = strings.TrimSpace(line[len(groupPrefix):])
			}

		case strings.HasPrefix(line, "#"):
			// comment or unsupported tag

		default:
			if pending == nil {
				stats.Stray++
				continue
			}
			entry := pending
			pending = nil

			ch, ok := entry.toChannel(line)
			if !ok {
				stats.Nameless++
				continue
			}

			id, renamed := uniqueID(ch.ID, seenIDs)
			if renamed {
				stats.RenamedIDs++
			}
			ch.ID = id
			seenIDs[id] = struct{}{}
			channels = append(channels, ch)
		}
	}

	if pending != nil {
		stats.Orphaned++
	}

	stats.Channels = len(channels)
	return channels, stats
}

// parseDirective splits the body of an #EXTINF line into duration,
// attributes and display name. The display name follows the last comma
// that is not inside a quoted attribute value.
func parseDirective(body string) (*pendingEntry, bool) {
	body = strings.TrimSpace(body)

	durEnd := strings.IndexAny(body, " \t,")
	if durEnd == -1 {
		durEnd = len(body)
	}
	if duration := body[:durEnd]; duration != "" {
		if _, err := strconv.ParseFloat(duration, 64); err != nil {
			return nil, false
		}
	}
	rest := body[durEnd:]

	lastComma := -1
	inQuote := false
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				lastComma = i
			}
		}
	}

	attrPart := rest
	displayName := ""
	if lastComma != -1 {
		attrPart = rest[:lastComma]
		displayName = strings.TrimSpace(rest[lastComma+1:])
	}

	return &pendingEntry{
		attrs:       parseAttributes(attrPart),
		displayName: displayName,
	}, true
}

// parseAttributes extracts key="value" pairs. Keys are case-insensitive and
// the first occurrence of a key wins.
func parseAttributes(s string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrRegex.FindAllStringSubmatch(s, -1) {
		key := strings.ToLower(m[1])
		if _, exists := attrs[key]; exists {
			continue
		}
		value := m[2]
		if value == "" {
			value = m[3]
		}
		attrs[key] = strings.TrimSpace(value)
	}
	return attrs
}

func (e *pendingEntry) toChannel(locator string) (channel.Channel, bool) {
	name := e.displayName
	if name == "" {
		name = e.attrs["tvg-name"]
	}
	if name == "" {
		return channel.Channel{}, false
	}

	group := e.attrs["group-title"]
	if group == "" {
		group = e.extGroup
	}

	id := e.attrs["tvg-id"]
	if id == "" {
		id = synthesizeID(name, locator, e.position)
	}

	return channel.Channel{
		ID:       id,
		Name:     name,
		URL:      locator,
		Logo:     e.attrs["tvg-logo"],
		Group:    group,
		Country:  e.attrs["tvg-country"],
		Language: e.attrs["tvg-language"],
	}, true
}

// synthesizeID derives a stable id from the entry content and its position,
// so that parsing the same text twice yields the same ids.
func synthesizeID(name, locator string, position int) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(locator))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(position)))
	return "ch-" + hex.EncodeToString(h.Sum(nil))[:16]
}

// uniqueID returns id, or id with the first free "~N" suffix when id was
// already handed out in this parse run.
func uniqueID(id string, seen map[string]struct{}) (string, bool) {
	if _, taken := seen[id]; !taken {
		return id, false
	}
	for n := 2; ; n++ {
		candidate := id + "~" + strconv.Itoa(n)
		if _, taken := seen[candidate]; !taken {
			return candidate, true
		}
	}
}
