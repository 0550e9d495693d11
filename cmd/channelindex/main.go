// Package main wires together the channel index service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcppubsub "cloud.google.com/go/pubsub"
	gcpstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/openvideo/channelindex/internal/api"
	"github.com/openvideo/channelindex/internal/channel"
	"github.com/openvideo/channelindex/internal/clock/system"
	"github.com/openvideo/channelindex/internal/config"
	collyfetcher "github.com/openvideo/channelindex/internal/fetcher/colly"
	"github.com/openvideo/channelindex/internal/indexer"
	"github.com/openvideo/channelindex/internal/logging"
	"github.com/openvideo/channelindex/internal/metrics"
	pubsubpublisher "github.com/openvideo/channelindex/internal/publisher/pubsub"
	"github.com/openvideo/channelindex/internal/sitemap"
	"github.com/openvideo/channelindex/internal/scraper"
	"github.com/openvideo/channelindex/internal/storage/gcs"
	"github.com/openvideo/channelindex/internal/storage/local"
	"github.com/openvideo/channelindex/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	store, err := postgres.NewStore(ctx, postgres.StoreConfig{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	}, logger.Named("store"))
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal("schema init failed", zap.Error(err))
	}

	sitemapFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.SitemapTimeout(),
	})
	pageFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.PageTimeout(),
	})
	source := sitemap.New(cfg.Sitemap.URL, sitemapFetcher, logger.Named("sitemap"))
	scrape := scraper.New(pageFetcher, logger.Named("scraper"))
	clock := system.New()

	var publisher channel.Publisher
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		client, err := gcppubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("pubsub client init failed", zap.Error(err))
		}
		defer client.Close() //nolint:errcheck // best-effort close on exit
		topic := client.Topic(cfg.PubSub.TopicName)
		defer topic.Stop()
		publisher = pubsubpublisher.New(topic)
	}

	var blobs channel.BlobStore
	switch cfg.Export.Provider {
	case "gcs":
		client, err := gcpstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("gcs client init failed", zap.Error(err))
		}
		defer client.Close() //nolint:errcheck // best-effort close on exit
		blobs, err = gcs.New(client, gcs.Config{Bucket: cfg.Export.GCSBucket})
		if err != nil {
			logger.Fatal("gcs blob store init failed", zap.Error(err))
		}
	default:
		blobs, err = local.New(local.Config{BaseDir: cfg.Export.LocalDir})
		if err != nil {
			logger.Fatal("local blob store init failed", zap.Error(err))
		}
	}

	runner := indexer.New(source, scrape, store, clock, publisher, logger.Named("indexer"), indexer.Config{
		Delay:       cfg.Delay(),
		MaxChannels: cfg.Crawler.MaxChannels,
		Topic:       cfg.PubSub.TopicName,
	})
	exporter := indexer.NewExporter(store, blobs, logger.Named("exporter"))

	apiServer := api.NewServer(store, runner, exporter, logger.Named("api"), cfg)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
