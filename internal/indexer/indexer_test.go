package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openvideo/channelindex/internal/channel"
	"github.com/openvideo/channelindex/internal/metrics"
	"github.com/openvideo/channelindex/internal/publisher/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

type fakeSitemap struct {
	refs []channel.Ref
	err  error
}

func (f *fakeSitemap) Channels(context.Context) ([]channel.Ref, error) {
	return f.refs, f.err
}

type fakeScraper struct {
	meta    map[string]channel.Metadata
	failing map[string]error
	scraped []string
}

func (f *fakeScraper) Scrape(_ context.Context, url string) (channel.Metadata, error) {
	f.scraped = append(f.scraped, url)
	if err, ok := f.failing[url]; ok {
		return channel.Metadata{}, err
	}
	return f.meta[url], nil
}

type fakeStore struct {
	existing  map[string]bool
	inserted  []channel.Channel
	lookupErr error
	insertErr error
}

func (f *fakeStore) HasChannel(_ context.Context, handle string) (bool, error) {
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	return f.existing[handle], nil
}

func (f *fakeStore) InsertChannel(_ context.Context, ch channel.Channel) (bool, error) {
	if f.insertErr != nil {
		return false, f.insertErr
	}
	if f.existing[ch.Handle] {
		return false, nil
	}
	if f.existing == nil {
		f.existing = make(map[string]bool)
	}
	f.existing[ch.Handle] = true
	f.inserted = append(f.inserted, ch)
	return true, nil
}

func (f *fakeStore) Search(context.Context, string, int) ([]channel.Channel, error) {
	return nil, nil
}

func (f *fakeStore) Autocomplete(context.Context, string, int) ([]channel.Suggestion, error) {
	return nil, nil
}

func (f *fakeStore) Stats(context.Context) (channel.Stats, error) {
	return channel.Stats{}, nil
}

func (f *fakeStore) ListChannels(context.Context) ([]channel.Channel, error) {
	return f.inserted, nil
}

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.now = f.now.Add(time.Second)
	return f.now
}

func refsFor(handles ...string) []channel.Ref {
	refs := make([]channel.Ref, 0, len(handles))
	for _, h := range handles {
		refs = append(refs, channel.Ref{
			Handle: h,
			URL:    fmt.Sprintf("https://open.video/channel/%s/", h),
		})
	}
	return refs
}

func TestRun_IndexesNewChannels(t *testing.T) {
	t.Parallel()

	refs := refsFor("chan1", "chan2")
	scraper := &fakeScraper{meta: map[string]channel.Metadata{
		refs[0].URL: {Name: strPtr("Chan One"), VideoCount: intPtr(42)},
		refs[1].URL: {Name: strPtr("Chan Two")},
	}}
	store := &fakeStore{}
	pub := memory.New()

	ix := New(&fakeSitemap{refs: refs}, scraper, store, &fakeClock{}, pub, nil,
		Config{Topic: "index-runs"})

	report, err := ix.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 2, report.SitemapTotal)
	require.Equal(t, 2, report.Processed)
	require.Equal(t, 2, report.Indexed)
	require.Zero(t, report.Skipped)
	require.Zero(t, report.Errored)
	require.NotZero(t, report.Duration)

	require.Len(t, store.inserted, 2)
	require.Equal(t, "chan1", store.inserted[0].Handle)
	require.Equal(t, "Chan One", *store.inserted[0].Name)
	require.Equal(t, 42, *store.inserted[0].VideoCount)
	require.False(t, store.inserted[0].ScrapedAt.IsZero())

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "index-runs", msgs[0].Topic)
	require.Equal(t, report, msgs[0].Payload)
}

func TestRun_SecondPassSkipsWithoutScraping(t *testing.T) {
	t.Parallel()

	refs := refsFor("chan1")
	scraper := &fakeScraper{meta: map[string]channel.Metadata{}}
	store := &fakeStore{existing: map[string]bool{"chan1": true}}

	ix := New(&fakeSitemap{refs: refs}, scraper, store, &fakeClock{}, nil, nil, Config{})

	report, err := ix.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped)
	require.Zero(t, report.Indexed)
	require.Empty(t, scraper.scraped, "existing channels must not be re-fetched")
}

func TestRun_ScrapeFailureIsIsolated(t *testing.T) {
	t.Parallel()

	refs := refsFor("bad", "good")
	scraper := &fakeScraper{
		meta:    map[string]channel.Metadata{refs[1].URL: {Name: strPtr("Good")}},
		failing: map[string]error{refs[0].URL: errors.New("status 503")},
	}
	store := &fakeStore{}

	ix := New(&fakeSitemap{refs: refs}, scraper, store, &fakeClock{}, nil, nil, Config{})

	report, err := ix.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 2, report.Processed)
	require.Equal(t, 1, report.Errored)
	require.Equal(t, 1, report.Indexed)
	require.Len(t, store.inserted, 1)
	require.Equal(t, "good", store.inserted[0].Handle)
}

func TestRun_LookupFailureCountsAsError(t *testing.T) {
	t.Parallel()

	store := &fakeStore{lookupErr: errors.New("connection refused")}
	ix := New(&fakeSitemap{refs: refsFor("chan1")}, &fakeScraper{}, store,
		&fakeClock{}, nil, nil, Config{})

	report, err := ix.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, report.Errored)
	require.Zero(t, report.Indexed)
}

func TestRun_SitemapFailureCompletesEmpty(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	ix := New(&fakeSitemap{err: errors.New("status 500")}, &fakeScraper{},
		&fakeStore{}, &fakeClock{}, pub, nil, Config{Topic: "index-runs"})

	report, err := ix.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Zero(t, report.SitemapTotal)
	require.Zero(t, report.Processed)
	require.Len(t, pub.Messages(), 1)
}

func TestRun_MaxChannelsTruncates(t *testing.T) {
	t.Parallel()

	refs := refsFor("chan1", "chan2", "chan3")
	scraper := &fakeScraper{meta: map[string]channel.Metadata{}}
	ix := New(&fakeSitemap{refs: refs}, scraper, &fakeStore{}, &fakeClock{},
		nil, nil, Config{MaxChannels: 1})

	report, err := ix.Run(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, 3, report.SitemapTotal)
	require.Equal(t, 2, report.Processed, "run argument overrides configured bound")

	report, err = ix.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, report.Processed, "configured bound applies when no argument given")
}

func TestRun_CancelledContextStopsLoop(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ix := New(&fakeSitemap{refs: refsFor("chan1")}, &fakeScraper{}, &fakeStore{},
		&fakeClock{}, nil, nil, Config{})

	report, err := ix.Run(ctx, 0)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, report.Processed)
}

func TestRun_InsertRaceCountsAsSkip(t *testing.T) {
	t.Parallel()

	refs := refsFor("chan1")
	store := &racingStore{}
	ix := New(&fakeSitemap{refs: refs}, &fakeScraper{}, store, &fakeClock{},
		nil, nil, Config{})

	report, err := ix.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped)
	require.Zero(t, report.Indexed)
}

// racingStore reports no existing row but refuses the insert, the shape of a
// duplicate-key race between two concurrent runs.
type racingStore struct {
	fakeStore
}

func (r *racingStore) HasChannel(context.Context, string) (bool, error) {
	return false, nil
}

func (r *racingStore) InsertChannel(context.Context, channel.Channel) (bool, error) {
	return false, nil
}
