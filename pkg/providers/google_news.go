package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/Adda-Baaj/khobor-topics/internal/domain"
)

// googleNewsFetcher implements Fetcher for Google News sitemap sources.
type googleNewsFetcher struct {
	client  HTTPClient
	sources []string
	headers map[string]string
}

// NewGoogleNewsFetcher builds a Fetcher over the configured Google News sitemaps.
func NewGoogleNewsFetcher(client HTTPClient, opts Options) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}

	sources := make([]string, 0, len(opts.SitemapURLs))
	for _, u := range opts.SitemapURLs {
		if u = strings.TrimSpace(u); u != "" {
			sources = append(sources, u)
		}
	}

	return &googleNewsFetcher{client: client, sources: sources, headers: Headers(opts.UserAgent)}
}

// ID returns the provider type for the Google News fetcher.
func (f *googleNewsFetcher) ID() string {
	return ProviderTypeGoogleNews
}

// Fetch retrieves sitemap entries inside the request window from every source.
// Keywords are not applied; topic filtering happens during classification.
func (f *googleNewsFetcher) Fetch(ctx context.Context, req Request) ([]domain.RawArticle, error) {
	if len(f.sources) == 0 {
		return nil, fmt.Errorf("%w: no sitemap urls configured", domain.ErrConfiguration)
	}

	visited := make(map[string]struct{})
	var out []domain.RawArticle
	for _, src := range f.sources {
		urls, err := f.fetchGoogleNewsURLs(ctx, src, visited)
		if err != nil {
			return nil, err
		}
		out = append(out, buildRawFromSitemap(urls, req.From, req.To)...)
	}
	return out, nil
}

// fetchGoogleNewsURLs resolves the given sitemap URL into article entries, following sitemap indexes if necessary.
func (f *googleNewsFetcher) fetchGoogleNewsURLs(ctx context.Context, url string, visited map[string]struct{}) ([]googleNewsURL, error) {
	if _, seen := visited[url]; seen {
		return nil, nil
	}
	visited[url] = struct{}{}

	raw, err := fetchSitemap(ctx, f.client, url, ProviderTypeGoogleNews, f.headers)
	if err != nil {
		return nil, err
	}

	urls, err := parseGoogleNewsSitemap(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode google news sitemap: %v", domain.ErrUpstreamFetch, err)
	}
	if len(urls) > 0 {
		return urls, nil
	}

	indexURLs, err := parseSitemapIndex(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode sitemap index: %v", domain.ErrUpstreamFetch, err)
	}
	if len(indexURLs) == 0 {
		return nil, nil
	}

	var all []googleNewsURL
	for _, indexURL := range indexURLs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamFetch, err)
		}

		nested, err := f.fetchGoogleNewsURLs(ctx, indexURL, visited)
		if err != nil {
			return nil, err
		}
		all = append(all, nested...)
	}
	return all, nil
}
