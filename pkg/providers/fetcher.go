package providers

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adda-Baaj/khobor-topics/internal/domain"
	"github.com/Adda-Baaj/khobor-topics/pkg/httpclient"
)

type fetcherRegistry struct {
	fetchers map[string]Fetcher
	mu       sync.RWMutex
}

// NewFetcherRegistry builds a registry for the provided fetcher implementations.
func NewFetcherRegistry(fetchers ...Fetcher) FetcherRegistry {
	reg := &fetcherRegistry{
		fetchers: make(map[string]Fetcher, len(fetchers)),
	}

	for _, f := range fetchers {
		if f == nil {
			continue
		}
		reg.fetchers[strings.ToLower(strings.TrimSpace(f.ID()))] = f
	}

	return reg
}

// FetcherFor selects the fetcher registered under id.
func (r *fetcherRegistry) FetcherFor(id string) (Fetcher, error) {
	key := strings.ToLower(strings.TrimSpace(id))
	if key == "" {
		return nil, fmt.Errorf("%w: fetcher id is empty", domain.ErrConfiguration)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.fetchers[key]; ok {
		return f, nil
	}

	return nil, fmt.Errorf("%w: no fetcher registered for %q", domain.ErrConfiguration, id)
}

// IDs lists the registered fetcher ids in sorted order.
func (r *fetcherRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.fetchers))
	for id := range r.fetchers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DefaultHTTPClient returns a tuned client for provider fetchers.
func DefaultHTTPClient() HTTPClient { return httpclient.NewRestyClient(15 * time.Second) }

// DefaultFetcherRegistry wires up the known fetchers.
func DefaultFetcherRegistry(client HTTPClient, opts Options) FetcherRegistry {
	if client == nil {
		client = DefaultHTTPClient()
	}

	return NewFetcherRegistry(
		NewNewsAPIFetcher(client, opts),
		NewGoogleNewsFetcher(client, opts),
	)
}
