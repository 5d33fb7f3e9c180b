// Package httpclient provides the resty-backed HTTP client shared by fetchers,
// the full-text crawler and HTTP publishers.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultUserAgent = "khobor-topics/1.0 (+https://github.com/Adda-Baaj/khobor-topics)"

// DefaultTimeout bounds requests made by clients built without explicit settings.
const DefaultTimeout = 15 * time.Second

// Response is the subset of a resty response callers need.
type Response interface {
	StatusCode() int
	Body() []byte
}

// Client performs HTTP requests with per-call headers.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
	Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (Response, error)
}

type restyClient struct {
	rc *resty.Client
}

// NewRestyClient builds a Client with the given timeout and a small retry budget
// for transient failures.
func NewRestyClient(timeout time.Duration) Client {
	rc := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(300 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("User-Agent", defaultUserAgent).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}
			return r.StatusCode() == 429 || r.StatusCode() >= 500
		})

	return &restyClient{rc: rc}
}

// Get issues a GET request.
func (c *restyClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	return c.Do(ctx, "GET", url, headers, nil)
}

// Do issues a request with an optional body.
func (c *restyClient) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	req := c.rc.R().SetContext(ctx)
	for k, v := range headers {
		req.SetHeader(k, v)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(strings.ToUpper(method), url)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", strings.ToUpper(method), url, err)
	}
	return resp, nil
}
