// Package channel defines core types shared across subsystems.
package channel

import "time"

// Ref is one entry extracted from the channels sitemap.
type Ref struct {
	Handle       string
	URL          string
	LastModified *string
}

// Metadata holds the fields scraped from a channel page. Every field is
// independent and nullable; a nil pointer means the page did not expose it.
type Metadata struct {
	Name        *string
	VideoCount  *int
	JoinDate    *string
	LogoURL     *string
	Description *string
}

// Channel is one indexed row. Handle is the natural key; a row is written
// exactly once and never updated afterwards.
type Channel struct {
	Handle       string    `json:"handle"`
	URL          string    `json:"url"`
	Name         *string   `json:"name"`
	VideoCount   *int      `json:"video_count"`
	JoinDate     *string   `json:"join_date"`
	LastModified *string   `json:"last_modified,omitempty"`
	LogoURL      *string   `json:"logo_url"`
	Description  *string   `json:"description"`
	ScrapedAt    time.Time `json:"-"`
}

// DisplayName returns the channel name, falling back to the handle.
func (c Channel) DisplayName() string {
	if c.Name != nil && *c.Name != "" {
		return *c.Name
	}
	return c.Handle
}

// Suggestion is one autocomplete entry, deduplicated by display text.
type Suggestion struct {
	Text       string `json:"text"`
	Handle     string `json:"handle"`
	VideoCount *int   `json:"video_count"`
}

// Stats summarizes the index. Averages count only rows with a video count.
type Stats struct {
	TotalChannels int     `json:"total_channels"`
	TotalVideos   int64   `json:"total_videos"`
	AvgVideos     float64 `json:"avg_videos_per_channel"`
}

// IndexReport is the outcome of one indexing run.
type IndexReport struct {
	SitemapTotal int           `json:"sitemap_total"`
	Processed    int           `json:"processed"`
	Indexed      int           `json:"indexed"`
	Skipped      int           `json:"skipped"`
	Errored      int           `json:"errored"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration_ns"`
}
