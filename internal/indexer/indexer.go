// Package indexer drives the sequential crawl-and-load pipeline.
package indexer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openvideo/channelindex/internal/channel"
	"github.com/openvideo/channelindex/internal/metrics"
)

// checkpointEvery controls how often the loop logs progress counters.
const checkpointEvery = 100

// Config controls Indexer behavior.
type Config struct {
	// Delay is the fixed pause after each processed channel. It is plain
	// politeness toward the source site, not load-adaptive.
	Delay time.Duration
	// MaxChannels truncates the sitemap list when > 0. A per-run bound
	// passed to Run takes precedence.
	MaxChannels int
	// Topic names the destination for run-completion events.
	Topic string
}

// Indexer walks the sitemap in order, scrapes channels not yet stored, and
// inserts them. One pass, strictly sequential; per-channel failures are
// isolated and counted, never fatal.
type Indexer struct {
	sitemap   channel.SitemapSource
	scraper   channel.Scraper
	store     channel.Store
	clock     channel.Clock
	publisher channel.Publisher
	logger    *zap.Logger
	cfg       Config
}

// New constructs an Indexer. The publisher is optional; a nil publisher
// disables run-completion events.
func New(
	sitemap channel.SitemapSource,
	scraper channel.Scraper,
	store channel.Store,
	clock channel.Clock,
	publisher channel.Publisher,
	logger *zap.Logger,
	cfg Config,
) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		sitemap:   sitemap,
		scraper:   scraper,
		store:     store,
		clock:     clock,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run executes one indexing pass. maxChannels > 0 truncates the sitemap list
// to its first entries; 0 falls back to the configured bound, and a bound of
// 0 means no limit. A sitemap failure completes the run with zero processed
// channels. The only error Run returns is context cancellation.
func (ix *Indexer) Run(ctx context.Context, maxChannels int) (channel.IndexReport, error) {
	started := ix.clock.Now()
	report := channel.IndexReport{StartedAt: started}

	refs, err := ix.sitemap.Channels(ctx)
	if err != nil {
		// Already logged by the sitemap source; an unreachable sitemap
		// means "nothing to index", not a failed run.
		refs = nil
	}
	report.SitemapTotal = len(refs)

	if maxChannels <= 0 {
		maxChannels = ix.cfg.MaxChannels
	}
	if maxChannels > 0 && len(refs) > maxChannels {
		ix.logger.Info("limiting run to first channels", zap.Int("max_channels", maxChannels))
		refs = refs[:maxChannels]
	}

	ix.logger.Info("indexing run started",
		zap.Int("channels", len(refs)),
		zap.Duration("delay", ix.cfg.Delay),
	)

	for i, ref := range refs {
		if ctx.Err() != nil {
			return report, fmt.Errorf("indexing interrupted: %w", ctx.Err())
		}
		ix.processChannel(ctx, ref, &report)
		report.Processed++

		if ix.cfg.Delay > 0 {
			time.Sleep(ix.cfg.Delay)
		}
		if (i+1)%checkpointEvery == 0 {
			ix.logger.Info("indexing checkpoint",
				zap.Int("processed", report.Processed),
				zap.Int("indexed", report.Indexed),
				zap.Int("skipped", report.Skipped),
				zap.Int("errored", report.Errored),
			)
		}
	}

	report.Duration = ix.clock.Now().Sub(started)
	metrics.ObserveRun("completed")
	ix.logger.Info("indexing run complete",
		zap.Int("indexed", report.Indexed),
		zap.Int("skipped", report.Skipped),
		zap.Int("errored", report.Errored),
		zap.Duration("duration", report.Duration),
	)

	ix.publishReport(ctx, report)
	return report, nil
}

func (ix *Indexer) processChannel(ctx context.Context, ref channel.Ref, report *channel.IndexReport) {
	exists, err := ix.store.HasChannel(ctx, ref.Handle)
	if err != nil {
		report.Errored++
		metrics.ObserveChannel(metrics.OutcomeError)
		ix.logger.Warn("channel lookup failed", zap.String("handle", ref.Handle), zap.Error(err))
		return
	}
	if exists {
		report.Skipped++
		metrics.ObserveChannel(metrics.OutcomeSkipped)
		return
	}

	scrapeStart := time.Now()
	meta, err := ix.scraper.Scrape(ctx, ref.URL)
	metrics.ObserveScrape(time.Since(scrapeStart))
	if err != nil {
		report.Errored++
		metrics.ObserveChannel(metrics.OutcomeError)
		ix.logger.Warn("channel scrape failed",
			zap.String("handle", ref.Handle),
			zap.String("url", ref.URL),
			zap.Error(err),
		)
		return
	}

	ch := channel.Channel{
		Handle:       ref.Handle,
		URL:          ref.URL,
		Name:         meta.Name,
		VideoCount:   meta.VideoCount,
		JoinDate:     meta.JoinDate,
		LastModified: ref.LastModified,
		LogoURL:      meta.LogoURL,
		Description:  meta.Description,
		ScrapedAt:    ix.clock.Now(),
	}
	inserted, err := ix.store.InsertChannel(ctx, ch)
	if err != nil {
		report.Errored++
		metrics.ObserveChannel(metrics.OutcomeError)
		ix.logger.Warn("channel insert failed", zap.String("handle", ref.Handle), zap.Error(err))
		return
	}
	if !inserted {
		// Lost a duplicate-key race; the existing row wins.
		report.Skipped++
		metrics.ObserveChannel(metrics.OutcomeSkipped)
		return
	}
	report.Indexed++
	metrics.ObserveChannel(metrics.OutcomeIndexed)
	ix.logger.Debug("channel indexed", zap.String("handle", ref.Handle))
}

func (ix *Indexer) publishReport(ctx context.Context, report channel.IndexReport) {
	if ix.publisher == nil {
		return
	}
	if _, err := ix.publisher.Publish(ctx, ix.cfg.Topic, report); err != nil {
		ix.logger.Warn("publish run report failed", zap.Error(err))
	}
}
