package driven

import "context"

// SourceFetcher retrieves raw source documents (playlists, verified lists).
type SourceFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}
