// Package scraper extracts channel metadata from HTML pages.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/openvideo/channelindex/internal/channel"
	collyfetcher "github.com/openvideo/channelindex/internal/fetcher/colly"
)

var (
	digitsRe     = regexp.MustCompile(`\d+`)
	videoCountRe = regexp.MustCompile(`(?i)^\d+\s*videos?$`)
	joinedRe     = regexp.MustCompile(`(?i)joined|join date`)
	joinDateRe   = regexp.MustCompile(`(?i)(January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}`)
	logoClassRe  = regexp.MustCompile(`(?i)logo|avatar|profile`)
)

// joinDateWindow bounds how far past a "joined" mention the date may appear.
const joinDateWindow = 160

// Getter performs the outbound GET for a channel page.
type Getter interface {
	Get(ctx context.Context, url string) (collyfetcher.Response, error)
}

// Scraper implements channel.Scraper on top of goquery. Field extraction is
// best effort: each field is independent and a missing field stays nil. Only
// a fetch or document parse failure fails the whole page.
type Scraper struct {
	getter Getter
	logger *zap.Logger
}

// New builds a Scraper.
func New(getter Getter, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{getter: getter, logger: logger}
}

// Scrape implements channel.Scraper.
func (s *Scraper) Scrape(ctx context.Context, url string) (channel.Metadata, error) {
	resp, err := s.getter.Get(ctx, url)
	if err != nil {
		return channel.Metadata{}, fmt.Errorf("fetch channel page: %w", err)
	}
	meta, err := Extract(resp.Body)
	if err != nil {
		return channel.Metadata{}, err
	}
	return meta, nil
}

// Extract pulls channel metadata out of an HTML document.
func Extract(body []byte) (channel.Metadata, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return channel.Metadata{}, fmt.Errorf("parse channel html: %w", err)
	}

	meta := channel.Metadata{
		Name:        extractName(doc),
		VideoCount:  extractVideoCount(doc),
		JoinDate:    extractJoinDate(doc),
		LogoURL:     extractLogoURL(doc),
		Description: extractDescription(doc),
	}
	return meta, nil
}

// extractName takes the first heading, falling back to the document title.
func extractName(doc *goquery.Document) *string {
	if h1 := doc.Find("h1").First(); h1.Length() > 0 {
		if text := strings.TrimSpace(h1.Text()); text != "" {
			return &text
		}
	}
	if title := doc.Find("title").First(); title.Length() > 0 {
		if text := strings.TrimSpace(title.Text()); text != "" {
			return &text
		}
	}
	return nil
}

// extractVideoCount prefers a dedicated count element, then scans paragraphs
// for a bare "<n> videos" line.
func extractVideoCount(doc *goquery.Document) *int {
	if elem := doc.Find("div.video-count").First(); elem.Length() > 0 {
		if match := digitsRe.FindString(elem.Text()); match != "" {
			if n, err := strconv.Atoi(match); err == nil {
				return &n
			}
		}
	}

	var count *int
	doc.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		text := strings.TrimSpace(p.Text())
		if !videoCountRe.MatchString(text) {
			return true
		}
		match := digitsRe.FindString(text)
		if n, err := strconv.Atoi(match); err == nil {
			count = &n
			return false
		}
		return true
	})
	return count
}

// extractJoinDate finds the first "joined" mention and searches the text
// window after it for a month-day-year pattern.
func extractJoinDate(doc *goquery.Document) *string {
	text := doc.Text()
	loc := joinedRe.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	end := loc[0] + joinDateWindow
	if end > len(text) {
		end = len(text)
	}
	if match := joinDateRe.FindString(text[loc[0]:end]); match != "" {
		return &match
	}
	return nil
}

// extractLogoURL takes the first image whose class looks like a logo/avatar.
func extractLogoURL(doc *goquery.Document) *string {
	var logo *string
	doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		class, ok := img.Attr("class")
		if !ok || !logoClassRe.MatchString(class) {
			return true
		}
		if src, ok := img.Attr("src"); ok && src != "" {
			logo = &src
			return false
		}
		return true
	})
	return logo
}

// extractDescription reads the standard meta description, then the Open
// Graph variant.
func extractDescription(doc *goquery.Document) *string {
	for _, selector := range []string{`meta[name="description"]`, `meta[property="og:description"]`} {
		if content, ok := doc.Find(selector).First().Attr("content"); ok && content != "" {
			return &content
		}
	}
	return nil
}
