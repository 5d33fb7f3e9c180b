// Package store persists classified articles and answers topic/date queries over
// them.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/Adda-Baaj/khobor-topics/internal/domain"
)

// Supported backends.
const (
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// Store is implemented by every persistence backend.
type Store interface {
	// Save upserts articles keyed by URL.
	Save(ctx context.Context, articles ...domain.Article) error
	// Query returns at most q.Limit articles matching q, ordered as described on Select.
	Query(ctx context.Context, q Query) ([]domain.Article, error)
	// Get returns the article stored under url.
	Get(ctx context.Context, url string) (domain.Article, bool, error)
	Close() error
}

// Open builds the backend named by backend. path is ignored by the memory backend.
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendBolt, "":
		return OpenBolt(path)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: store backend %q not supported", domain.ErrConfiguration, backend)
	}
}
