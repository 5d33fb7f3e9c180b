package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/khobor-topics/internal/domain"
	"github.com/Adda-Baaj/khobor-topics/pkg/httpclient"
)

const newsSitemap = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"
        xmlns:news="http://www.google.com/schemas/sitemap-news/0.9"
        xmlns:image="http://www.google.com/schemas/sitemap-image/1.1">
  <url>
    <loc>https://example.com/in-window</loc>
    <news:news>
      <news:publication><news:name>Example Times</news:name></news:publication>
      <news:publication_date>2026-10-18T08:00:00+05:30</news:publication_date>
      <news:title>Scientists publish climate study</news:title>
      <news:keywords>climate, science</news:keywords>
    </news:news>
    <image:image><image:loc>https://example.com/img.jpg</image:loc></image:image>
  </url>
  <url>
    <loc>https://example.com/too-old</loc>
    <news:news>
      <news:publication_date>2026-09-01T08:00:00Z</news:publication_date>
      <news:title>Old story</news:title>
    </news:news>
  </url>
  <url>
    <loc>https://example.com/undated</loc>
    <news:news><news:title>No date</news:title></news:news>
  </url>
</urlset>`

func TestGoogleNewsFetchFollowsIndex(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/index.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<sitemapindex><sitemap><loc>%s/news.xml</loc></sitemap><sitemap><loc>%s/index.xml</loc></sitemap></sitemapindex>`, srv.URL, srv.URL)
	})
	mux.HandleFunc("/news.xml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(newsSitemap))
	})

	f := NewGoogleNewsFetcher(httpclient.NewRestyClient(2*time.Second), Options{SitemapURLs: []string{srv.URL + "/index.xml", " "}})
	raws, err := f.Fetch(context.Background(), Request{
		From: time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, raws, 2)

	first := raws[0]
	assert.Equal(t, "https://example.com/in-window", first["url"])
	assert.Equal(t, "Scientists publish climate study", first["title"])
	assert.Equal(t, "2026-10-18T08:00:00+05:30", first["publishedAt"])
	assert.Equal(t, "Example Times", first["source"])
	assert.Equal(t, "climate, science", first["description"])
	assert.Equal(t, "https://example.com/img.jpg", first["image_url"])
	assert.Equal(t, "", first["content"])

	assert.Equal(t, "https://example.com/undated", raws[1]["url"])
}

func TestGoogleNewsFetchErrors(t *testing.T) {
	_, err := NewGoogleNewsFetcher(nil, Options{}).Fetch(context.Background(), Request{})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewGoogleNewsFetcher(httpclient.NewRestyClient(2*time.Second), Options{SitemapURLs: []string{srv.URL}})
	_, err = f.Fetch(context.Background(), Request{})
	assert.ErrorIs(t, err, domain.ErrUpstreamFetch)
}

func TestRegistry(t *testing.T) {
	reg := DefaultFetcherRegistry(nil, Options{})
	assert.Equal(t, []string{ProviderTypeGoogleNews, ProviderTypeNewsAPI}, reg.IDs())

	f, err := reg.FetcherFor(" NewsAPI ")
	require.NoError(t, err)
	assert.Equal(t, ProviderTypeNewsAPI, f.ID())

	_, err = reg.FetcherFor("rss")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	_, err = reg.FetcherFor("")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
