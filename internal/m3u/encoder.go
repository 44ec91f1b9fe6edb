package m3u

import (
	"fmt"
	"io"
	"strings"

	"github.com/alorle/iptv-hub/internal/channel"
)

type encoder struct {
	epgUrls []string
	items   []channel.Channel
}

// NewEncoder returns an encoder that writes an #EXTM3U playlist, advertising
// guideUrls in the header when present.
func NewEncoder(guideUrls []string) *encoder {
	return &encoder{epgUrls: guideUrls, items: []channel.Channel{}}
}

func (p *encoder) AddChannel(item channel.Channel) {
	p.items = append(p.items, item)
}

func (p *encoder) Encode(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "#EXTM3U"); err != nil {
		return err
	}

	if len(p.epgUrls) > 0 {
		if _, err := fmt.Fprintf(w, " url-tvg=\"%s\"", strings.Join(p.epgUrls, ",")); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "\n"); err != nil {
		return err
	}

	for _, item := range p.items {
		if err := encodeChannel(w, item); err != nil {
			return err
		}
	}

	return nil
}

// Encode writes channels as a playlist in one call.
func Encode(w io.Writer, channels []channel.Channel, guideUrls []string) error {
	enc := NewEncoder(guideUrls)
	for _, ch := range channels {
		enc.AddChannel(ch)
	}
	return enc.Encode(w)
}

// displayNameReplacer keeps the display name on its directive line and
// after the last comma, which is where the parser looks for it.
var displayNameReplacer = strings.NewReplacer(",", " ", "\n", " ", "\r", " ")

// locatorReplacer keeps the locator on a single line.
var locatorReplacer = strings.NewReplacer("\n", "", "\r", "")

// encodeChannel writes one entry. Channels without a locator are skipped, they
// would read back as orphan directives.
func encodeChannel(w io.Writer, ch channel.Channel) error {
	locator := strings.TrimSpace(locatorReplacer.Replace(ch.URL))
	if locator == "" {
		return nil
	}
	name := strings.Join(strings.Fields(displayNameReplacer.Replace(ch.Name)), " ")

	if _, err := fmt.Fprintf(w, "#EXTINF:-1"); err != nil {
		return err
	}

	if err := encodeTags(w, ch); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, ",%s\n%s\n", name, locator); err != nil {
		return err
	}

	return nil
}
