// Package xtream reads live channel catalogs from Xtream-Codes compatible
// panels through their player_api.php endpoint.
package xtream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alorle/iptv-hub/internal/channel"
)

// ErrUnexpectedResponse is returned when the panel answers with something
// other than the expected JSON document (bad credentials usually do this).
var ErrUnexpectedResponse = errors.New("unexpected xtream response")

// ErrResponseTooLarge is returned when a panel answer exceeds Options.MaxBytes.
var ErrResponseTooLarge = errors.New("xtream response too large")

const (
	defaultOutput   = "ts"
	defaultMaxBytes = 64 << 20
	idPrefix        = "xtream-"
)

// Options configure a Client.
type Options struct {
	BaseURL  string
	Username string
	Password string

	// Output is the container extension used in stream URLs (ts or m3u8).
	Output string

	RequestsPerSecond float64
	Burst             int
	UserAgent         string
	HTTPClient        *http.Client

	// MaxBytes caps each response body. Zero means 64 MiB.
	MaxBytes int64
}

// Client talks to one Xtream panel. Requests are paced by a token bucket so a
// refresh never hammers the provider.
type Client struct {
	base     string
	username string
	password string
	output   string
	ua       string
	maxBytes int64
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient creates a client for the panel described by opts.
func NewClient(opts Options) *Client {
	output := strings.TrimPrefix(strings.TrimSpace(opts.Output), ".")
	if output == "" {
		output = defaultOutput
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}

	return &Client{
		base:     strings.TrimRight(opts.BaseURL, "/"),
		username: opts.Username,
		password: opts.Password,
		output:   output,
		ua:       opts.UserAgent,
		maxBytes: maxBytes,
		http:     hc,
		limiter:  rate.NewLimiter(limit, burst),
	}
}

type liveCategory struct {
	ID   flexString `json:"category_id"`
	Name string     `json:"category_name"`
}

type liveStream struct {
	StreamID     flexString `json:"stream_id"`
	Name         string     `json:"name"`
	Icon         string     `json:"stream_icon"`
	EPGChannelID flexString `json:"epg_channel_id"`
	CategoryID   flexString `json:"category_id"`
}

// LiveChannels returns every live stream of the panel as a channel, in panel order.
// Streams without a name or stream id are skipped.
func (c *Client) LiveChannels(ctx context.Context) ([]channel.Channel, error) {
	var categories []liveCategory
	if err := c.get(ctx, "get_live_categories", &categories); err != nil {
		return nil, fmt.Errorf("live categories: %w", err)
	}
	groups := make(map[string]string, len(categories))
	for _, cat := range categories {
		groups[string(cat.ID)] = strings.TrimSpace(cat.Name)
	}

	var streams []liveStream
	if err := c.get(ctx, "get_live_streams", &streams); err != nil {
		return nil, fmt.Errorf("live streams: %w", err)
	}

	out := make([]channel.Channel, 0, len(streams))
	used := make(map[string]bool, len(streams))
	for _, s := range streams {
		sid := strings.TrimSpace(string(s.StreamID))
		name := strings.TrimSpace(s.Name)
		if sid == "" || name == "" {
			continue
		}

		// several streams of one panel may share an EPG id (HD/SD variants)
		id := strings.TrimSpace(string(s.EPGChannelID))
		if id == "" || used[id] {
			id = idPrefix + sid
		}
		used[id] = true

		out = append(out, channel.Channel{
			ID:    id,
			Name:  name,
			URL:   c.streamURL(sid),
			Logo:  strings.TrimSpace(s.Icon),
			Group: groups[string(s.CategoryID)],
		})
	}
	return out, nil
}

func (c *Client) streamURL(streamID string) string {
	return fmt.Sprintf("%s/live/%s/%s/%s.%s",
		c.base,
		url.PathEscape(c.username),
		url.PathEscape(c.password),
		url.PathEscape(streamID),
		c.output)
}

func (c *Client) get(ctx context.Context, action string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	q := url.Values{}
	q.Set("username", c.username)
	q.Set("password", c.password)
	q.Set("action", action)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/player_api.php?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP status %d", action, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", action, err)
	}
	if int64(len(body)) > c.maxBytes {
		return fmt.Errorf("%s: %w: over %d bytes", action, ErrResponseTooLarge, c.maxBytes)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '[' {
		return fmt.Errorf("%s: %w", action, ErrUnexpectedResponse)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: %w: %v", action, ErrUnexpectedResponse, err)
	}
	return nil
}

// flexString accepts JSON strings, numbers and null. Panels disagree on
// whether ids are quoted.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || string(data) == "null":
		*f = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		n, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("xtream: unsupported id %s", data)
		}
		*f = flexString(strconv.FormatFloat(n, 'f', -1, 64))
	}
	return nil
}
