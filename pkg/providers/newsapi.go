package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Adda-Baaj/khobor-topics/internal/domain"
)

const (
	newsAPIDefaultURL = "https://newsapi.org/v2/everything"
	newsAPITimeLayout = "2006-01-02T15:04:05"
	newsAPIPageSize   = 100

	// NewsAPI rejects q values over 500 characters once encoded; keep headroom.
	maxKeywordQueryChars = 400
)

// newsAPIFetcher implements Fetcher for the newsapi.org "everything" endpoint.
type newsAPIFetcher struct {
	client   HTTPClient
	baseURL  string
	apiKey   string
	language string
	sortBy   string
	headers  map[string]string
}

// NewNewsAPIFetcher builds a Fetcher for newsapi.org.
func NewNewsAPIFetcher(client HTTPClient, opts Options) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	f := &newsAPIFetcher{
		client:   client,
		baseURL:  strings.TrimSpace(opts.NewsAPIURL),
		apiKey:   strings.TrimSpace(opts.NewsAPIKey),
		language: strings.TrimSpace(opts.NewsAPILanguage),
		sortBy:   strings.TrimSpace(opts.NewsAPISortBy),
		headers:  Headers(opts.UserAgent),
	}
	if f.baseURL == "" {
		f.baseURL = newsAPIDefaultURL
	}
	return f
}

// ID returns the provider type for the NewsAPI fetcher.
func (f *newsAPIFetcher) ID() string {
	return ProviderTypeNewsAPI
}

type newsAPIResponse struct {
	Status       string           `json:"status"`
	Code         string           `json:"code"`
	Message      string           `json:"message"`
	TotalResults int              `json:"totalResults"`
	Articles     []map[string]any `json:"articles"`
}

// Fetch retrieves articles published inside the request window that match any of
// the keywords.
func (f *newsAPIFetcher) Fetch(ctx context.Context, req Request) ([]domain.RawArticle, error) {
	if f.apiKey == "" {
		return nil, fmt.Errorf("%w: newsapi key is empty", domain.ErrConfiguration)
	}

	endpoint, err := f.requestURL(req)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(f.headers)+1)
	for k, v := range f.headers {
		headers[k] = v
	}
	headers["X-Api-Key"] = f.apiKey

	resp, err := f.client.Get(ctx, endpoint, headers)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch newsapi: %v", domain.ErrUpstreamFetch, err)
	}

	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: newsapi returned status %d body: %s", domain.ErrUpstreamFetch, resp.StatusCode(), responseSnippet(body))
	}

	var payload newsAPIResponse
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode newsapi response: %v", domain.ErrUpstreamFetch, err)
	}
	if strings.EqualFold(payload.Status, "error") {
		return nil, fmt.Errorf("%w: newsapi error %s: %s", domain.ErrUpstreamFetch, payload.Code, payload.Message)
	}

	out := make([]domain.RawArticle, 0, len(payload.Articles))
	for _, a := range payload.Articles {
		if a == nil {
			continue
		}
		out = append(out, domain.RawArticle(a))
	}
	return out, nil
}

// requestURL builds the everything endpoint URL for req.
func (f *newsAPIFetcher) requestURL(req Request) (string, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: parse newsapi url: %v", domain.ErrConfiguration, err)
	}

	q := u.Query()
	if f.language != "" {
		q.Set("language", f.language)
	}
	if f.sortBy != "" {
		q.Set("sortBy", f.sortBy)
	}
	q.Set("pageSize", fmt.Sprint(newsAPIPageSize))
	if !req.From.IsZero() {
		q.Set("from", req.From.UTC().Format(newsAPITimeLayout))
	}
	if !req.To.IsZero() {
		q.Set("to", req.To.UTC().Format(newsAPITimeLayout))
	}
	if kq := keywordQuery(req.Keywords); kq != "" {
		q.Set("q", kq)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// keywordQuery OR-joins quoted keywords, stopping before the query would reach
// maxKeywordQueryChars. The first keyword is always kept.
func keywordQuery(keywords []string) string {
	var b strings.Builder
	for _, kw := range keywords {
		kw = strings.TrimSpace(strings.ReplaceAll(kw, `"`, ""))
		if kw == "" {
			continue
		}
		term := `"` + kw + `"`
		if b.Len() == 0 {
			b.WriteString(term)
			continue
		}
		if b.Len()+len(" OR ")+len(term) >= maxKeywordQueryChars {
			break
		}
		b.WriteString(" OR ")
		b.WriteString(term)
	}
	return b.String()
}
