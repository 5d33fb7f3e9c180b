package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/khobor-topics/internal/domain"
	"github.com/Adda-Baaj/khobor-topics/pkg/httpclient"
)

const newsAPIBody = `{
  "status": "ok",
  "totalResults": 2,
  "articles": [
    {
      "source": {"id": null, "name": "Wired"},
      "author": "Jane Doe",
      "title": "A new neural network",
      "description": "desc",
      "url": "https://example.com/a",
      "publishedAt": "2026-10-18T10:00:00Z",
      "content": "Body text… [+1200 chars]"
    },
    {
      "source": {"id": "bbc", "name": "BBC"},
      "author": null,
      "title": "Marketing news",
      "url": "https://example.com/b",
      "publishedAt": "2026-10-18T11:00:00Z",
      "content": null
    }
  ]
}`

func TestNewsAPIFetch(t *testing.T) {
	from := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/everything", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))

		q := r.URL.Query()
		assert.Equal(t, "en", q.Get("language"))
		assert.Equal(t, "popularity", q.Get("sortBy"))
		assert.Equal(t, "2026-10-17T00:00:00", q.Get("from"))
		assert.Equal(t, "2026-10-18T00:00:00", q.Get("to"))
		assert.Equal(t, `"ai" OR "science"`, q.Get("q"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(newsAPIBody))
	}))
	defer srv.Close()

	f := NewNewsAPIFetcher(httpclient.NewRestyClient(2*time.Second), Options{
		NewsAPIKey:      "secret",
		NewsAPIURL:      srv.URL + "/v2/everything",
		NewsAPILanguage: "en",
		NewsAPISortBy:   "popularity",
	})
	assert.Equal(t, ProviderTypeNewsAPI, f.ID())

	raws, err := f.Fetch(context.Background(), Request{Keywords: []string{"ai", "science"}, From: from, To: to})
	require.NoError(t, err)
	require.Len(t, raws, 2)

	assert.Equal(t, "A new neural network", raws[0]["title"])
	assert.Equal(t, map[string]any{"id": nil, "name": "Wired"}, raws[0]["source"])
	assert.Nil(t, raws[1]["content"])
}

func TestNewsAPIFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/unauthorized":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":"error","code":"apiKeyInvalid"}`))
		case "/status-error":
			_, _ = w.Write([]byte(`{"status":"error","code":"rateLimited","message":"slow down"}`))
		case "/garbage":
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer srv.Close()

	client := httpclient.NewRestyClient(2 * time.Second)
	for _, path := range []string{"/unauthorized", "/status-error", "/garbage"} {
		f := NewNewsAPIFetcher(client, Options{NewsAPIKey: "k", NewsAPIURL: srv.URL + path})
		_, err := f.Fetch(context.Background(), Request{})
		require.Error(t, err, path)
		assert.ErrorIs(t, err, domain.ErrUpstreamFetch, path)
	}

	_, err := NewNewsAPIFetcher(client, Options{}).Fetch(context.Background(), Request{})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestKeywordQueryIsCapped(t *testing.T) {
	assert.Equal(t, "", keywordQuery(nil))
	assert.Equal(t, `"machine learning" OR "seo"`, keywordQuery([]string{" machine learning ", "", `"seo"`}))

	var many []string
	for range 200 {
		many = append(many, "keyword")
	}
	q := keywordQuery(many)
	assert.Less(t, len(q), maxKeywordQueryChars)
	assert.True(t, strings.HasPrefix(q, `"keyword" OR "keyword"`))

	long := strings.Repeat("x", 500)
	assert.Equal(t, `"`+long+`"`, keywordQuery([]string{long, "y"}))
}
