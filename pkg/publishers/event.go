// Package publishers delivers events about persisted articles to external sinks
// such as webhooks, AWS SQS and SNS, and Google Cloud Pub/Sub.
package publishers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Adda-Baaj/khobor-topics/internal/domain"
	"github.com/Adda-Baaj/khobor-topics/internal/logger"
)

// EventTypeArticleStored is emitted once per persisted article.
const EventTypeArticleStored = "article.stored"

// Logger is the structured logger publishers write to.
type Logger = logger.Logger

func ensureLogger(log Logger) Logger {
	return logger.Ensure(log)
}

// Event is the message body every publisher sends.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	RunID      string         `json:"run_id"`
	Source     string         `json:"source"`
	Topics     []string       `json:"topics"`
	Article    domain.Article `json:"article"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewArticleEvent builds the event for a persisted article.
func NewArticleEvent(runID string, art domain.Article, now time.Time) Event {
	topics := art.Topics
	if topics == nil {
		topics = []string{}
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       EventTypeArticleStored,
		RunID:      runID,
		Source:     art.Source,
		Topics:     topics,
		Article:    art,
		OccurredAt: now.UTC(),
	}
}

// Publisher delivers events to one sink.
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

// topicFilter restricts a publisher to events tagged with one of its topics.
type topicFilter struct {
	Publisher
	cfg PublisherConfig
}

func (f *topicFilter) Accepts(evt Event) bool { return f.cfg.Accepts(evt.Topics) }

func (f *topicFilter) Close() error {
	if c, ok := f.Publisher.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
