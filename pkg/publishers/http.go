package publishers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Adda-Baaj/khobor-topics/pkg/httpclient"
)

// httpPublisher posts events as JSON to a webhook.
type httpPublisher struct {
	id      string
	url     string
	method  string
	headers map[string]string
	client  httpclient.Client
	log     Logger
}

func newHTTPPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("publisher %q missing http configuration", cfg.ID)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range cfg.HTTP.Headers {
		headers[k] = v
	}

	return &httpPublisher{
		id:      cfg.ID,
		url:     cfg.HTTP.URL,
		method:  cfg.HTTP.Method,
		headers: headers,
		client:  httpclient.NewRestyClient(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second),
		log:     ensureLogger(log),
	}, nil
}

func (p *httpPublisher) ID() string   { return p.id }
func (p *httpPublisher) Type() string { return TypeHTTP }

// Publish sends the event and expects a 2xx response.
func (p *httpPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	resp, err := p.client.Do(ctx, p.method, p.url, p.headers, payload)
	if err != nil {
		return fmt.Errorf("http publisher %s: %w", p.id, err)
	}
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return fmt.Errorf("http publisher %s: unexpected status %d", p.id, resp.StatusCode())
	}

	p.log.DebugObj("http publisher delivered event", "publisher_http_delivery", map[string]any{
		"publisher_id": p.id,
		"event_id":     evt.ID,
		"status":       resp.StatusCode(),
	})
	return nil
}
