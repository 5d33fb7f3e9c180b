package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Adda-Baaj/khobor-topics/internal/domain"
	"github.com/Adda-Baaj/khobor-topics/internal/logger"
	"github.com/Adda-Baaj/khobor-topics/pkg/httpclient"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

const (
	maxHTMLBodyBytes = 1 << 20 // 1 MiB
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36"
)

// Page is the readable content extracted from an article page.
type Page struct {
	Text        string
	Title       string
	Description string
}

// Scraper fetches article pages and extracts their readable text.
type Scraper struct {
	client  httpclient.Client
	log     logger.Logger
	headers map[string]string
	limiter *rate.Limiter
}

// NewScraper creates a new Scraper with the given HTTP client and logger. An empty
// userAgent falls back to a desktop browser string, since many publishers block
// obvious bots.
func NewScraper(client httpclient.Client, log logger.Logger, userAgent string) *Scraper {
	if client == nil {
		client = httpclient.NewRestyClient(httpclient.DefaultTimeout)
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = browserUserAgent
	}
	return &Scraper{
		client: client,
		log:    logger.Ensure(log),
		headers: map[string]string{
			"User-Agent": userAgent,
			"Accept":     "text/html,application/xhtml+xml",
		},
	}
}

// WithRateLimit caps page downloads at perSecond across all callers. A
// non-positive rate disables the limit.
func (s *Scraper) WithRateLimit(perSecond float64, burst int) *Scraper {
	if perSecond <= 0 {
		s.limiter = nil
		return s
	}
	s.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	return s
}

// FetchText downloads url and returns its readable text. Every failure wraps
// domain.ErrUpstreamFetch.
func (s *Scraper) FetchText(ctx context.Context, url string) (Page, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return Page{}, fmt.Errorf("%w: rate limit wait: %v", domain.ErrUpstreamFetch, err)
		}
	}

	s.log.DebugObj("fetching article full text", "full_text_start", map[string]any{
		"url": url,
	})

	resp, err := s.client.Get(ctx, url, s.headers)
	if err != nil {
		return Page{}, fmt.Errorf("%w: http fetch: %v", domain.ErrUpstreamFetch, err)
	}

	if resp.StatusCode() != http.StatusOK {
		snippet := strings.TrimSpace(string(resp.Body()))
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return Page{}, fmt.Errorf("%w: status %d body: %s", domain.ErrUpstreamFetch, resp.StatusCode(), snippet)
	}

	body := resp.Body()
	if len(body) > maxHTMLBodyBytes {
		s.log.InfoObj("html body truncated", "truncation", map[string]any{
			"url":      url,
			"original": len(body),
			"kept":     maxHTMLBodyBytes,
		})
		body = body[:maxHTMLBodyBytes]
	}

	page, err := extractPage(body)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %v", domain.ErrUpstreamFetch, err)
	}
	if page.Text == "" {
		return Page{}, fmt.Errorf("%w: page has no readable text", domain.ErrUpstreamFetch)
	}
	return page, nil
}

// extractPage parses the HTML body and pulls out title, description and text.
func extractPage(body []byte) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}

	extract := func(sel string) string {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if val, ok := node.Attr("content"); ok {
				return strings.TrimSpace(val)
			}
		}
		return ""
	}

	page := Page{
		Title: firstNonEmpty(
			extract(`meta[property="og:title"]`),
			strings.TrimSpace(doc.Find("title").First().Text()),
		),
		Description: firstNonEmpty(
			extract(`meta[property="og:description"]`),
			extract(`meta[name="description"]`),
		),
	}

	doc.Find("script, style, noscript, template, iframe, svg, nav, header, footer, aside, form").Remove()

	root := doc.Find("article").First()
	if root.Length() == 0 || collapseSpaces(root.Text()) == "" {
		root = doc.Find("body").First()
	}
	page.Text = collapseSpaces(root.Text())

	return page, nil
}

// collapseSpaces trims s and replaces every whitespace run with a single space.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// firstNonEmpty returns the first non-empty string from the given values.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
