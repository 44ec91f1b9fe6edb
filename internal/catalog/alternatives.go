package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/alorle/iptv-hub/internal/channel"
)

// qualityTokens are dropped when comparing names, so "TF1 HD" matches "TF1".
var qualityTokens = map[string]struct{}{
	"hd": {}, "sd": {}, "fhd": {}, "uhd": {}, "4k": {}, "8k": {},
	"hevc": {}, "h265": {}, "1080p": {}, "720p": {}, "576p": {}, "480p": {},
	"backup": {}, "alt": {},
}

// Alternatives returns other channels that likely carry the same content as
// the channel with the given id: first those with the same normalized name,
// then those in the same group. The channel itself is never included. An
// unknown id yields an empty result.
func (d *Directory) Alternatives(id string) []channel.Channel {
	target, ok := d.entries[id]
	if !ok {
		return []channel.Channel{}
	}

	key := normalizeName(target.Name)
	picked := map[string]struct{}{id: {}}
	out := []channel.Channel{}

	for _, otherID := range d.order {
		if _, done := picked[otherID]; done {
			continue
		}
		other := d.entries[otherID]
		if key != "" && normalizeName(other.Name) == key {
			picked[otherID] = struct{}{}
			out = append(out, other)
		}
	}

	if target.Group == "" {
		return out
	}

	for _, otherID := range d.order {
		if _, done := picked[otherID]; done {
			continue
		}
		other := d.entries[otherID]
		if other.Group == target.Group {
			picked[otherID] = struct{}{}
			out = append(out, other)
		}
	}

	return out
}

// normalizeName folds case and diacritics, drops punctuation and quality
// markers: "Télé Monte-Carlo HD" becomes "tele monte carlo".
func normalizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	fields := strings.FieldsFunc(strings.ToLower(folded), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	kept := fields[:0]
	for _, f := range fields {
		if _, quality := qualityTokens[f]; quality {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}
