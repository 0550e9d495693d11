package indexer

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/openvideo/channelindex/internal/channel"
)

// Exporter dumps the entire index as a JSON artifact, ordered by video count
// descending.
type Exporter struct {
	store  channel.Store
	blobs  channel.BlobStore
	logger *zap.Logger
}

// NewExporter builds an Exporter.
func NewExporter(store channel.Store, blobs channel.BlobStore, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{store: store, blobs: blobs, logger: logger}
}

// Export writes the full channel list to the blob store under the given
// object name and returns the artifact URI.
func (e *Exporter) Export(ctx context.Context, object string) (string, error) {
	if object == "" {
		object = "channels_index.json"
	}
	channels, err := e.store.ListChannels(ctx)
	if err != nil {
		return "", fmt.Errorf("list channels: %w", err)
	}
	if channels == nil {
		channels = []channel.Channel{}
	}
	data, err := json.MarshalIndent(channels, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal channels: %w", err)
	}
	uri, err := e.blobs.PutObject(ctx, object, "application/json", data)
	if err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	e.logger.Info("index exported", zap.Int("channels", len(channels)), zap.String("uri", uri))
	return uri, nil
}
