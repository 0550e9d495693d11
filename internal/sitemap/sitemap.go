// Package sitemap retrieves and parses the channels sitemap.
package sitemap

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/openvideo/channelindex/internal/channel"
	collyfetcher "github.com/openvideo/channelindex/internal/fetcher/colly"
)

// Getter performs the outbound GET for the sitemap document.
type Getter interface {
	Get(ctx context.Context, url string) (collyfetcher.Response, error)
}

// Source fetches a sitemap URL and yields channel descriptors in document
// order. Any fetch or parse failure yields an error; the indexer treats that
// as "nothing to index", never as a fatal condition.
type Source struct {
	url    string
	getter Getter
	logger *zap.Logger
}

// New builds a Source for the given sitemap URL.
func New(url string, getter Getter, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{url: url, getter: getter, logger: logger}
}

// Channels implements channel.SitemapSource.
func (s *Source) Channels(ctx context.Context) ([]channel.Ref, error) {
	resp, err := s.getter.Get(ctx, s.url)
	if err != nil {
		s.logger.Warn("sitemap fetch failed", zap.String("url", s.url), zap.Error(err))
		return nil, fmt.Errorf("fetch sitemap: %w", err)
	}

	refs, err := Parse(resp.Body)
	if err != nil {
		s.logger.Warn("sitemap parse failed", zap.String("url", s.url), zap.Error(err))
		return nil, err
	}
	s.logger.Info("sitemap fetched", zap.String("url", s.url), zap.Int("channels", len(refs)))
	return refs, nil
}

// Parse extracts channel refs from a sitemap XML document. Entries without a
// location are skipped; lastmod is optional.
func Parse(body []byte) ([]channel.Ref, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse sitemap xml: %w", err)
	}

	var refs []channel.Ref
	for _, node := range xmlquery.Find(doc, "//url") {
		locNode := xmlquery.FindOne(node, "loc")
		if locNode == nil {
			continue
		}
		loc := strings.TrimSpace(locNode.InnerText())
		if loc == "" {
			continue
		}
		ref := channel.Ref{
			URL:    loc,
			Handle: HandleFromURL(loc),
		}
		if modNode := xmlquery.FindOne(node, "lastmod"); modNode != nil {
			mod := strings.TrimSpace(modNode.InnerText())
			if mod != "" {
				ref.LastModified = &mod
			}
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// HandleFromURL derives the channel handle: strip a trailing slash and take
// the final path segment.
func HandleFromURL(url string) string {
	trimmed := strings.TrimRight(url, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}
