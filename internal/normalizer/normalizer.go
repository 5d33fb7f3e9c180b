// Package normalizer turns raw upstream records into canonical articles and
// rejects records that are incomplete or too small to classify.
package normalizer

import (
	"context"
	"crypto/sha1" //nolint:gosec // non-cryptographic id generation
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Adda-Baaj/khobor-topics/internal/crawler"
	"github.com/Adda-Baaj/khobor-topics/internal/domain"
	"github.com/Adda-Baaj/khobor-topics/internal/logger"
)

const (
	// MaxContentBytes caps the text kept for classification.
	MaxContentBytes = 1 << 20
	// ContentHeadRunes is the length of the stored content snippet.
	ContentHeadRunes = 200

	DefaultMinContentSize = 1000
	DefaultMinTitleSize   = 15
)

// TextFetcher retrieves the full body of an article page.
type TextFetcher interface {
	FetchText(ctx context.Context, url string) (crawler.Page, error)
}

// Options are the thresholds read from one configuration snapshot.
type Options struct {
	MinContentSize int
	MinTitleSize   int
	GetFullText    bool
}

// Result is a successfully normalized article. FullTextErr is set when full text
// was requested but could not be fetched and the snippet was kept.
type Result struct {
	Article     domain.Article
	FullTextErr error
}

// Normalizer converts raw records into articles.
type Normalizer struct {
	opts    Options
	fetcher TextFetcher
	log     logger.Logger
}

// New builds a Normalizer. fetcher may be nil when opts.GetFullText is false.
func New(opts Options, fetcher TextFetcher, log logger.Logger) *Normalizer {
	if opts.MinContentSize < 0 {
		opts.MinContentSize = 0
	}
	if opts.MinTitleSize < 0 {
		opts.MinTitleSize = 0
	}
	return &Normalizer{opts: opts, fetcher: fetcher, log: logger.Ensure(log)}
}

// Normalize extracts an Article from raw. A rejected record yields a
// *RejectedError wrapping domain.ErrValidation; no other error is returned.
func (n *Normalizer) Normalize(ctx context.Context, raw domain.RawArticle) (Result, error) {
	var res Result
	if len(raw) == 0 {
		return Result{}, reject("", "empty record")
	}

	art := domain.Article{
		Author:      stripHTML(stringField(raw, "author")),
		Title:       stripHTML(stringField(raw, "title")),
		Description: stripHTML(stringField(raw, "description")),
		URL:         strings.TrimSpace(stringField(raw, "url")),
		Source:      sourceField(raw),
	}

	if art.Title == "" {
		return Result{}, reject("title", "missing title")
	}
	if art.URL == "" {
		return Result{}, reject("url", "missing url")
	}

	publishedAt, ok := timeField(raw, "publishedAt", "published_at", "pubDate")
	if !ok {
		return Result{}, reject("published_at", "missing or unparseable publication date")
	}
	art.PublishedAt = publishedAt.UTC()

	rawContent, hasContent := firstPresent(raw, "content", "content_head")
	if !hasContent {
		return Result{}, reject("content", "missing content")
	}
	content := strings.TrimSpace(truncatedMarker.ReplaceAllString(stripHTML(rawContent), ""))
	size, ok := intField(raw, "content_size")
	if !ok {
		size = contentSize(rawContent)
	}

	if titleLen := utf8.RuneCountInString(art.Title); titleLen < n.opts.MinTitleSize {
		return Result{}, reject("title", fmt.Sprintf("title length %d below minimum %d", titleLen, n.opts.MinTitleSize))
	}

	if n.opts.GetFullText && n.fetcher != nil {
		page, ferr := n.fetcher.FetchText(ctx, art.URL)
		if ferr != nil {
			n.log.WarnObj("full text fetch failed, keeping snippet", "full_text_error", map[string]any{
				"url":   art.URL,
				"error": ferr.Error(),
			})
			res.FullTextErr = ferr
		} else {
			content = page.Text
			size = len(page.Text)
			if art.Description == "" {
				art.Description = page.Description
			}
		}
	}

	if size < n.opts.MinContentSize {
		return Result{}, reject("content", fmt.Sprintf("content size %d below minimum %d", size, n.opts.MinContentSize))
	}

	art.Content = truncateBytes(content, MaxContentBytes)
	art.ContentHead = truncateRunes(content, ContentHeadRunes)
	art.ContentSize = size
	art.ID = hashURL(art.URL)
	art.Topics = []string{}

	res.Article = art
	return res, nil
}

// hashURL generates a SHA-1 hash of the given URL string.
func hashURL(u string) string {
	sum := sha1.Sum([]byte(u))
	return hex.EncodeToString(sum[:])
}

// truncateBytes cuts s to at most max bytes without splitting a rune.
func truncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// truncateRunes cuts s to at most max runes.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	i := 0
	for pos := range s {
		if i == max {
			return s[:pos]
		}
		i++
	}
	return s
}
