package normalizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/khobor-topics/internal/crawler"
	"github.com/Adda-Baaj/khobor-topics/internal/domain"
)

type stubFetcher struct {
	page  crawler.Page
	err   error
	calls int
}

func (s *stubFetcher) FetchText(_ context.Context, _ string) (crawler.Page, error) {
	s.calls++
	return s.page, s.err
}

func newsAPIRecord() domain.RawArticle {
	return domain.RawArticle{
		"source":      map[string]any{"id": "wired", "name": "Wired"},
		"author":      "Jane Doe",
		"title":       "Researchers unveil a <b>new</b> neural network",
		"description": "<p>A short summary.</p>",
		"url":         "https://example.com/neural",
		"publishedAt": "2026-10-18T09:30:00Z",
		"content":     "Scientists at the lab trained a neural network on… [+2400 chars]",
	}
}

func defaultOptions() Options {
	return Options{MinContentSize: DefaultMinContentSize, MinTitleSize: DefaultMinTitleSize}
}

func TestNormalizeNewsAPIRecord(t *testing.T) {
	n := New(defaultOptions(), nil, nil)

	res, err := n.Normalize(context.Background(), newsAPIRecord())
	require.NoError(t, err)
	require.NoError(t, res.FullTextErr)

	a := res.Article
	assert.Equal(t, "Jane Doe", a.Author)
	assert.Equal(t, "Researchers unveil a new neural network", a.Title)
	assert.Equal(t, "A short summary.", a.Description)
	assert.Equal(t, "https://example.com/neural", a.URL)
	assert.Equal(t, "Wired", a.Source)
	assert.Equal(t, time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC), a.PublishedAt)
	assert.Equal(t, "Scientists at the lab trained a neural network on…", a.Content)
	assert.Equal(t, a.Content, a.ContentHead)
	assert.Equal(t, len("Scientists at the lab trained a neural network on… [+2400 chars]")+2400, a.ContentSize)
	assert.Len(t, a.ID, 40)
	assert.NotNil(t, a.Topics)
	assert.Empty(t, a.Topics)
}

func TestNormalizeRejections(t *testing.T) {
	n := New(defaultOptions(), nil, nil)

	cases := map[string]struct {
		mutate func(domain.RawArticle)
		field  string
	}{
		"missing title":   {func(r domain.RawArticle) { delete(r, "title") }, "title"},
		"blank url":       {func(r domain.RawArticle) { r["url"] = "   " }, "url"},
		"bad date":        {func(r domain.RawArticle) { r["publishedAt"] = "yesterday" }, "published_at"},
		"missing date":    {func(r domain.RawArticle) { delete(r, "publishedAt") }, "published_at"},
		"missing content": {func(r domain.RawArticle) { delete(r, "content") }, "content"},
		"short title":     {func(r domain.RawArticle) { r["title"] = "Too short" }, "title"},
		"small content":   {func(r domain.RawArticle) { r["content"] = "tiny body" }, "content"},
		"wrong types":     {func(r domain.RawArticle) { r["title"] = []int{1}; r["url"] = 42 }, "title"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			raw := newsAPIRecord()
			tc.mutate(raw)

			_, err := n.Normalize(context.Background(), raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))

			var rej *RejectedError
			require.True(t, errors.As(err, &rej))
			assert.Equal(t, tc.field, rej.Field)
		})
	}

	_, err := n.Normalize(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNormalizeBoundaryIsInclusive(t *testing.T) {
	n := New(Options{MinContentSize: 10, MinTitleSize: 15}, nil, nil)
	raw := newsAPIRecord()
	raw["title"] = strings.Repeat("t", 15)
	raw["content"] = strings.Repeat("c", 10)

	res, err := n.Normalize(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Article.ContentSize)
}

func TestNormalizeFieldAliases(t *testing.T) {
	n := New(Options{MinContentSize: 1, MinTitleSize: 1}, nil, nil)
	published := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("IST", 19800))

	res, err := n.Normalize(context.Background(), domain.RawArticle{
		"title":        "Sitemap headline",
		"url":          "https://example.com/s",
		"published_at": published,
		"content_head": "snippet",
		"content_size": float64(4200),
		"source":       "example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, published.UTC(), res.Article.PublishedAt)
	assert.Equal(t, 4200, res.Article.ContentSize)
	assert.Equal(t, "example.com", res.Article.Source)
	assert.Empty(t, res.Article.Author)
}

func TestNormalizeFullTextReplacesSnippet(t *testing.T) {
	body := strings.Repeat("neural network research ", 100)
	f := &stubFetcher{page: crawler.Page{Text: body, Description: "from meta"}}
	opts := defaultOptions()
	opts.GetFullText = true
	n := New(opts, f, nil)

	raw := newsAPIRecord()
	delete(raw, "description")
	raw["content"] = "short snippet"

	res, err := n.Normalize(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls)
	assert.Equal(t, body, res.Article.Content)
	assert.Equal(t, len(body), res.Article.ContentSize)
	assert.Len(t, []rune(res.Article.ContentHead), ContentHeadRunes)
	assert.Equal(t, "from meta", res.Article.Description)
}

func TestNormalizeFullTextFailureFallsBack(t *testing.T) {
	f := &stubFetcher{err: fmt.Errorf("%w: status 403", domain.ErrUpstreamFetch)}
	opts := defaultOptions()
	opts.GetFullText = true
	n := New(opts, f, nil)

	res, err := n.Normalize(context.Background(), newsAPIRecord())
	require.NoError(t, err)
	assert.ErrorIs(t, res.FullTextErr, domain.ErrUpstreamFetch)
	assert.Equal(t, "Scientists at the lab trained a neural network on…", res.Article.Content)
}

func TestNormalizeSkipsFullTextForShortTitles(t *testing.T) {
	f := &stubFetcher{page: crawler.Page{Text: strings.Repeat("x", 5000)}}
	opts := defaultOptions()
	opts.GetFullText = true
	n := New(opts, f, nil)

	raw := newsAPIRecord()
	raw["title"] = "Short"
	_, err := n.Normalize(context.Background(), raw)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, f.calls)
}

func TestContentSize(t *testing.T) {
	assert.Equal(t, 5, contentSize("hello"))
	assert.Equal(t, len("abc [+10 chars]")+10, contentSize("abc [+10 chars]"))
	assert.Equal(t, len("abc [+x chars]"), contentSize("abc [+x chars]"))
	assert.Equal(t, 2, contentSize("é"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hé", truncateRunes("héllo", 2))
	assert.Equal(t, "héllo", truncateRunes("héllo", 10))
	assert.Equal(t, "h", truncateBytes("hé", 2))
	assert.Equal(t, "hé", truncateBytes("hé", 3))
}
