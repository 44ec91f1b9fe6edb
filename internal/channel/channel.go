package channel

import (
	"errors"
	"strings"
)

// Domain errors
var (
	ErrEmptyID         = errors.New("channel id cannot be empty")
	ErrEmptyName       = errors.New("channel name cannot be empty")
	ErrChannelNotFound = errors.New("channel not found")
)

// Channel represents a playable TV channel or media item in the directory.
// It is the unit of content shared by the parser, the merger and the
// playback resolver. Empty string fields mean "unknown"; an empty Logo
// means the consumer should use fallback art.
type Channel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Logo     string `json:"logo"`
	Group    string `json:"group"`
	Country  string `json:"country"`
	Language string `json:"language"`
}

// Validate checks the channel invariants: a non-empty id and a non-empty name.
// Surrounding whitespace is not significant.
func Validate(ch Channel) error {
	if strings.TrimSpace(ch.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(ch.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

// Normalize trims surrounding whitespace from every field.
func Normalize(ch Channel) Channel {
	return Channel{
		ID:       strings.TrimSpace(ch.ID),
		Name:     strings.TrimSpace(ch.Name),
		URL:      strings.TrimSpace(ch.URL),
		Logo:     strings.TrimSpace(ch.Logo),
		Group:    strings.TrimSpace(ch.Group),
		Country:  strings.TrimSpace(ch.Country),
		Language: strings.TrimSpace(ch.Language),
	}
}

// Overlay returns base with every non-empty field of top copied over it.
// Empty fields in top never clear a value already present in base.
func Overlay(base, top Channel) Channel {
	out := base
	if top.ID != "" {
		out.ID = top.ID
	}
	if top.Name != "" {
		out.Name = top.Name
	}
	if top.URL != "" {
		out.URL = top.URL
	}
	if top.Logo != "" {
		out.Logo = top.Logo
	}
	if top.Group != "" {
		out.Group = top.Group
	}
	if top.Country != "" {
		out.Country = top.Country
	}
	if top.Language != "" {
		out.Language = top.Language
	}
	return out
}
