package channel

import (
	"context"
	"time"
)

// Store persists and queries indexed channels.
type Store interface {
	HasChannel(ctx context.Context, handle string) (bool, error)
	// InsertChannel writes a new row. It reports false when a row with the
	// same handle already exists; the existing row is left untouched.
	InsertChannel(ctx context.Context, ch Channel) (bool, error)
	Search(ctx context.Context, query string, limit int) ([]Channel, error)
	Autocomplete(ctx context.Context, query string, limit int) ([]Suggestion, error)
	Stats(ctx context.Context) (Stats, error)
	ListChannels(ctx context.Context) ([]Channel, error)
}

// SitemapSource yields the channel descriptors to index, in sitemap order.
type SitemapSource interface {
	Channels(ctx context.Context) ([]Ref, error)
}

// Scraper extracts metadata from a single channel page. A non-nil error
// means the whole page failed; it never returns partial metadata.
type Scraper interface {
	Scrape(ctx context.Context, url string) (Metadata, error)
}

// BlobStore writes export artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes run-completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
