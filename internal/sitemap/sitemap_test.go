package sitemap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	collyfetcher "github.com/openvideo/channelindex/internal/fetcher/colly"
)

const sampleSitemap = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url>
    <loc>https://open.video/channel/chan1/</loc>
    <lastmod>2024-01-01</lastmod>
  </url>
  <url>
    <loc>https://open.video/channel/chan2</loc>
  </url>
  <url>
    <lastmod>2024-02-02</lastmod>
  </url>
</urlset>`

func TestParse_ExtractsRefsInDocumentOrder(t *testing.T) {
	t.Parallel()

	refs, err := Parse([]byte(sampleSitemap))
	require.NoError(t, err)
	require.Len(t, refs, 2)

	require.Equal(t, "chan1", refs[0].Handle)
	require.Equal(t, "https://open.video/channel/chan1/", refs[0].URL)
	require.NotNil(t, refs[0].LastModified)
	require.Equal(t, "2024-01-01", *refs[0].LastModified)

	require.Equal(t, "chan2", refs[1].Handle)
	require.Nil(t, refs[1].LastModified)
}

func TestParse_EmptyDocument(t *testing.T) {
	t.Parallel()

	refs, err := Parse([]byte(`<?xml version="1.0"?><urlset></urlset>`))
	require.NoError(t, err)
	require.Empty(t, refs)
}

func TestParse_MalformedXML(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`<urlset><url><loc>https://open.video/a`))
	require.Error(t, err)
}

func TestHandleFromURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://open.video/channel/chan1/": "chan1",
		"https://open.video/channel/chan1":  "chan1",
		"https://open.video/":               "open.video",
		"solo":                              "solo",
	}
	for url, want := range cases {
		require.Equal(t, want, HandleFromURL(url), "url %q", url)
	}
}

type fakeGetter struct {
	resp collyfetcher.Response
	err  error
}

func (f *fakeGetter) Get(_ context.Context, _ string) (collyfetcher.Response, error) {
	return f.resp, f.err
}

func TestSource_FetchFailureReturnsError(t *testing.T) {
	t.Parallel()

	src := New("https://open.video/channels-sitemap.xml", &fakeGetter{err: errors.New("boom")}, nil)
	refs, err := src.Channels(context.Background())
	require.Error(t, err)
	require.Empty(t, refs)
}

func TestSource_FetchSuccess(t *testing.T) {
	t.Parallel()

	src := New("https://open.video/channels-sitemap.xml", &fakeGetter{
		resp: collyfetcher.Response{Body: []byte(sampleSitemap), StatusCode: 200},
	}, nil)
	refs, err := src.Channels(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 2)
}
