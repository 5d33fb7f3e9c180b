package domain

import "time"

// Domain contains core models and interfaces.

// RawArticle is a single upstream record before normalization. Field names and
// value types depend on the source that produced it.
type RawArticle map[string]any

// Article is the canonical record that flows through classification and storage.
type Article struct {
	ID          string    `json:"id"`
	Author      string    `json:"author"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	Content     string    `json:"-"`
	ContentHead string    `json:"content_head"`
	ContentSize int       `json:"content_size"`
	Source      string    `json:"source"`
	Topics      []string  `json:"topics"`
	Seq         uint64    `json:"seq,omitempty"`
}

// HasTopic reports whether the article is tagged with topic.
func (a Article) HasTopic(topic string) bool {
	for _, t := range a.Topics {
		if t == topic {
			return true
		}
	}
	return false
}
