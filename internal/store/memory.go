package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Adda-Baaj/khobor-topics/internal/domain"
)

// MemoryStore keeps articles in process memory. It is used by tests and by
// short-lived runs that do not need durability.
type MemoryStore struct {
	mu      sync.RWMutex
	byURL   map[string]domain.Article
	nextSeq uint64
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{byURL: make(map[string]domain.Article)}
}

func (s *MemoryStore) Save(ctx context.Context, articles ...domain.Article) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	for _, a := range articles {
		if a.URL == "" {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, errors.New("article url is empty"))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range articles {
		s.nextSeq++
		a.Seq = s.nextSeq
		a.Topics = append([]string(nil), a.Topics...)
		s.byURL[a.URL] = a
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, q Query) ([]domain.Article, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	s.mu.RLock()
	records := make([]domain.Article, 0, len(s.byURL))
	for _, a := range s.byURL {
		records = append(records, a)
	}
	s.mu.RUnlock()

	return Select(records, q), nil
}

func (s *MemoryStore) Get(_ context.Context, url string) (domain.Article, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byURL[url]
	return a, ok, nil
}

func (s *MemoryStore) Close() error { return nil }
