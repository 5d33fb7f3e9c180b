package providers

import (
	"context"
	"strings"
	"time"

	"github.com/Adda-Baaj/khobor-topics/internal/domain"
	"github.com/Adda-Baaj/khobor-topics/pkg/httpclient"
)

// Known fetcher ids.
const (
	ProviderTypeNewsAPI    = "newsapi"
	ProviderTypeGoogleNews = "googlenews"
)

// HTTPClient is the transport fetchers use.
type HTTPClient = httpclient.Client

// Request describes one fetch window.
type Request struct {
	Keywords []string
	From     time.Time
	To       time.Time
}

// Fetcher retrieves raw article records from one upstream source.
type Fetcher interface {
	ID() string
	Fetch(ctx context.Context, req Request) ([]domain.RawArticle, error)
}

// FetcherRegistry resolves a fetcher by id.
type FetcherRegistry interface {
	FetcherFor(id string) (Fetcher, error)
	IDs() []string
}

// Options configures the default fetchers.
type Options struct {
	NewsAPIKey      string
	NewsAPIURL      string
	NewsAPILanguage string
	NewsAPISortBy   string
	SitemapURLs     []string
	UserAgent       string
}

// Headers returns the request headers shared by fetchers.
func Headers(userAgent string) map[string]string {
	h := map[string]string{
		"Accept": "application/json, application/xml;q=0.9, */*;q=0.8",
	}
	if ua := strings.TrimSpace(userAgent); ua != "" {
		h["User-Agent"] = ua
	}
	return h
}
