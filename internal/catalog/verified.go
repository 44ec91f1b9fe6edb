package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/alorle/iptv-hub/internal/channel"
)

// VerifiedList is the curated override document published by the admin
// export collaborator: {"version", "lastUpdated", "channels": [...]}.
type VerifiedList struct {
	Version     string
	LastUpdated string
	Channels    []channel.Channel
	// Rejected counts entries that were not objects or failed validation.
	Rejected int
}

type verifiedDocument struct {
	Version     looseString       `json:"version"`
	LastUpdated looseString       `json:"lastUpdated"`
	Channels    []json.RawMessage `json:"channels"`
}

type verifiedChannel struct {
	ID       looseString `json:"id"`
	Name     looseString `json:"name"`
	URL      looseString `json:"url"`
	Logo     looseString `json:"logo"`
	Group    looseString `json:"group"`
	Country  looseString `json:"country"`
	Language looseString `json:"language"`
}

// DecodeVerified reads a verified-channel document. Unknown fields are
// ignored, missing fields default to empty, scalar values of any JSON type
// are accepted as strings, and entries that do not satisfy the channel
// invariants are dropped and counted in Rejected.
func DecodeVerified(r io.Reader) (VerifiedList, error) {
	var doc verifiedDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return VerifiedList{}, fmt.Errorf("failed to decode verified list: %w", err)
	}

	list := VerifiedList{
		Version:     string(doc.Version),
		LastUpdated: string(doc.LastUpdated),
		Channels:    make([]channel.Channel, 0, len(doc.Channels)),
	}

	for _, raw := range doc.Channels {
		var vc verifiedChannel
		if err := json.Unmarshal(raw, &vc); err != nil {
			list.Rejected++
			continue
		}

		ch := channel.Normalize(channel.Channel{
			ID:       string(vc.ID),
			Name:     string(vc.Name),
			URL:      string(vc.URL),
			Logo:     string(vc.Logo),
			Group:    string(vc.Group),
			Country:  string(vc.Country),
			Language: string(vc.Language),
		})
		if err := channel.Validate(ch); err != nil {
			list.Rejected++
			continue
		}
		list.Channels = append(list.Channels, ch)
	}

	return list, nil
}

// looseString accepts a JSON string, number, boolean or null.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		*s = looseString(data)
		return nil
	default:
		if _, err := strconv.ParseFloat(string(data), 64); err != nil {
			return fmt.Errorf("unsupported value %s", data)
		}
		*s = looseString(data)
		return nil
	}
}
