package providers

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Adda-Baaj/khobor-topics/internal/domain"
	"github.com/Adda-Baaj/khobor-topics/pkg/httpclient"
)

// responseSnippet returns a truncated snippet of the response body for logging.
func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

type googleNewsSitemap struct {
	URLs []googleNewsURL `xml:"url"`
}

type googleNewsURL struct {
	Loc    string            `xml:"loc"`
	News   googleNewsDetail  `xml:"news"`
	Images []googleNewsImage `xml:"image"`
}

type sitemapIndex struct {
	Sitemaps []sitemapIndexEntry `xml:"sitemap"`
}

type sitemapIndexEntry struct {
	Loc string `xml:"loc"`
}

type googleNewsDetail struct {
	Publication     googleNewsPublication `xml:"publication"`
	PublicationDate string                `xml:"publication_date"`
	Keywords        string                `xml:"keywords"`
	Title           string                `xml:"title"`
}

type googleNewsPublication struct {
	Name string `xml:"name"`
}

type googleNewsImage struct {
	Loc   string `xml:"loc"`
	Title string `xml:"title"`
}

// parseGoogleNewsSitemap parses the XML data into a slice of googleNewsURL structs.
func parseGoogleNewsSitemap(data []byte) ([]googleNewsURL, error) {
	var sitemap googleNewsSitemap
	if err := xml.Unmarshal(data, &sitemap); err != nil {
		return nil, err
	}
	return sitemap.URLs, nil
}

// parseSitemapIndex parses an XML sitemap index file and returns the nested sitemap URLs.
func parseSitemapIndex(data []byte) ([]string, error) {
	var index sitemapIndex
	if err := xml.Unmarshal(data, &index); err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(index.Sitemaps))
	for _, entry := range index.Sitemaps {
		if loc := strings.TrimSpace(entry.Loc); loc != "" {
			urls = append(urls, loc)
		}
	}
	return urls, nil
}

// buildRawFromSitemap converts sitemap entries published inside [from, to] into
// raw records. Entries without a parseable date are passed through so the
// normalizer can reject them. Sitemaps carry no body, so content is empty.
func buildRawFromSitemap(urls []googleNewsURL, from, to time.Time) []domain.RawArticle {
	out := make([]domain.RawArticle, 0, len(urls))
	for _, entry := range urls {
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" {
			continue
		}

		rawDate := strings.TrimSpace(entry.News.PublicationDate)
		if published, ok := parsePublicationDate(rawDate); ok {
			if (!from.IsZero() && published.Before(from)) || (!to.IsZero() && published.After(to)) {
				continue
			}
		}

		keywords := parseKeywords(entry.News.Keywords)
		out = append(out, domain.RawArticle{
			"title":       strings.TrimSpace(entry.News.Title),
			"url":         loc,
			"publishedAt": rawDate,
			"description": strings.Join(keywords, ", "),
			"content":     "",
			"source":      strings.TrimSpace(entry.News.Publication.Name),
			"image_url":   firstImageURL(entry.Images),
			"keywords":    keywords,
		})
	}
	return out
}

// firstImageURL returns the first non-empty image URL from the list.
func firstImageURL(images []googleNewsImage) string {
	for _, img := range images {
		if loc := strings.TrimSpace(img.Loc); loc != "" {
			return loc
		}
	}
	return ""
}

// parseKeywords splits a comma-separated string of keywords into a slice of trimmed strings.
func parseKeywords(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	keywords := make([]string, 0, len(parts))
	for _, part := range parts {
		if kw := strings.TrimSpace(part); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	if len(keywords) == 0 {
		return nil
	}
	return keywords
}

// parsePublicationDate attempts to parse the publication date from a string.
func parsePublicationDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04Z07:00", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// fetchSitemap retrieves the sitemap XML data from the given URL using the provided HTTP client.
func fetchSitemap(ctx context.Context, client httpclient.Client, url, providerID string, headers map[string]string) ([]byte, error) {
	resp, err := client.Get(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s sitemap: %v", domain.ErrUpstreamFetch, providerID, err)
	}

	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: %s sitemap returned status %d body: %s", domain.ErrUpstreamFetch, providerID, resp.StatusCode(), responseSnippet(body))
	}

	return body, nil
}
