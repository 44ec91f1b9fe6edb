package m3u

import (
	"fmt"
	"io"
	"strings"

	"github.com/alorle/iptv-hub/internal/channel"
)

// attribute values cannot carry a double quote inside the quoted form
var attrValueReplacer = strings.NewReplacer(`"`, `'`, "\n", " ", "\r", " ")

func encodeTags(w io.Writer, ch channel.Channel) error {
	tags := []struct {
		key   string
		value string
	}{
		{"tvg-id", ch.ID},
		{"tvg-name", ch.Name},
		{"tvg-logo", ch.Logo},
		{"tvg-country", ch.Country},
		{"tvg-language", ch.Language},
		{"group-title", ch.Group},
	}

	for _, tag := range tags {
		if tag.value == "" {
			continue
		}
		if _, err := fmt.Fprintf(w, " %s=\"%s\"", tag.key, attrValueReplacer.Replace(tag.value)); err != nil {
			return err
		}
	}

	return nil
}
