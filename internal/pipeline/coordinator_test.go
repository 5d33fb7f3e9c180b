package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/khobor-topics/internal/domain"
	"github.com/Adda-Baaj/khobor-topics/internal/normalizer"
	"github.com/Adda-Baaj/khobor-topics/internal/store"
	"github.com/Adda-Baaj/khobor-topics/internal/taxonomy"
	"github.com/Adda-Baaj/khobor-topics/pkg/publishers"
)

func testTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tx, err := taxonomy.New(map[string][]string{
		"ai":      {"neural network"},
		"science": {"research"},
	})
	require.NoError(t, err)
	return tx
}

func testNormalizer() *normalizer.Normalizer {
	return normalizer.New(normalizer.Options{MinContentSize: 20, MinTitleSize: 5}, nil, nil)
}

func rawArticle(i int, content string) domain.RawArticle {
	return domain.RawArticle{
		"title":       fmt.Sprintf("Story number %d", i),
		"url":         fmt.Sprintf("https://example.com/%d", i),
		"publishedAt": time.Date(2026, 10, 18, 10, i, 0, 0, time.UTC).Format(time.RFC3339),
		"content":     content,
		"source":      map[string]any{"name": "Example"},
	}
}

const aiContent = "a neural network and another neural network were trained for research"

// failingSaver fails for one URL and delegates the rest.
type failingSaver struct {
	store.Store
	failURL string
}

func (s *failingSaver) Save(ctx context.Context, articles ...domain.Article) error {
	for _, a := range articles {
		if a.URL == s.failURL {
			return fmt.Errorf("%w: disk full", domain.ErrPersistence)
		}
	}
	return s.Store.Save(ctx, articles...)
}

func TestProcessIsolatesPersistenceFailure(t *testing.T) {
	mem := store.NewMemory()
	saver := &failingSaver{Store: mem, failURL: "https://example.com/5"}

	var raws []domain.RawArticle
	for i := range 10 {
		raws = append(raws, rawArticle(i, aiContent))
	}

	c := NewCoordinator(Options{RunID: "run-1", ScoreThreshold: 1, Workers: 3}, testNormalizer(), testTaxonomy(t), saver, nil, nil)
	sum := c.Process(context.Background(), raws)

	assert.Equal(t, "run-1", sum.RunID)
	assert.Equal(t, 10, sum.Fetched)
	assert.Equal(t, 9, sum.Persisted)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 10, sum.Classified)
	assert.False(t, sum.Cancelled)
	require.Len(t, sum.Outcomes, 10)

	failed := sum.Outcomes[5]
	assert.Equal(t, StageFailed, failed.Stage)
	assert.ErrorIs(t, failed.Err, domain.ErrPersistence)

	for i := range 10 {
		url := fmt.Sprintf("https://example.com/%d", i)
		art, ok, err := mem.Get(context.Background(), url)
		require.NoError(t, err)
		if i == 5 {
			assert.False(t, ok)
			continue
		}
		require.True(t, ok, url)
		assert.Equal(t, []string{"ai"}, art.Topics)
	}
}

func TestProcessRejectedRecordsAreNeverClassified(t *testing.T) {
	noURL := rawArticle(1, aiContent)
	delete(noURL, "url")
	shortTitle := rawArticle(2, aiContent)
	shortTitle["title"] = "AI"
	tooSmall := rawArticle(3, "tiny")

	raws := []domain.RawArticle{rawArticle(0, aiContent), noURL, shortTitle, tooSmall, rawArticle(4, "nothing relevant in this body at all")}

	c := NewCoordinator(Options{ScoreThreshold: 1}, testNormalizer(), testTaxonomy(t), store.NewMemory(), nil, nil)
	sum := c.Process(context.Background(), raws)

	assert.Equal(t, 3, sum.Rejected)
	assert.Equal(t, 2, sum.Persisted)
	assert.Equal(t, 2, sum.Classified)
	assert.Equal(t, 1, sum.Unassigned)

	for _, i := range []int{1, 2, 3} {
		o := sum.Outcomes[i]
		assert.Equal(t, StageRejected, o.Stage, i)
		assert.False(t, o.Classified, i)
		assert.Nil(t, o.Topics, i)
		var rej *normalizer.RejectedError
		assert.True(t, errors.As(o.Err, &rej), i)
	}
	assert.Equal(t, []string{}, sum.Outcomes[4].Topics)
}

func TestProcessCancelledRunSkipsEverything(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mem := store.NewMemory()
	raws := []domain.RawArticle{rawArticle(0, aiContent), rawArticle(1, aiContent)}

	c := NewCoordinator(Options{}, testNormalizer(), testTaxonomy(t), mem, nil, nil)
	sum := c.Process(ctx, raws)

	assert.True(t, sum.Cancelled)
	assert.Equal(t, 2, sum.Skipped)
	assert.Zero(t, sum.Persisted)
	for _, o := range sum.Outcomes {
		assert.Equal(t, StageSkipped, o.Stage)
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}

// blockingSaver waits until the article context ends.
type blockingSaver struct{}

func (blockingSaver) Save(ctx context.Context, _ ...domain.Article) error {
	<-ctx.Done()
	return fmt.Errorf("%w: %w", domain.ErrPersistence, ctx.Err())
}

func TestProcessArticleTimeout(t *testing.T) {
	c := NewCoordinator(Options{ArticleTimeout: 20 * time.Millisecond}, testNormalizer(), testTaxonomy(t), blockingSaver{}, nil, nil)
	sum := c.Process(context.Background(), []domain.RawArticle{rawArticle(0, aiContent)})

	assert.Equal(t, 1, sum.Failed)
	assert.False(t, sum.Cancelled)
	assert.ErrorIs(t, sum.Outcomes[0].Err, context.DeadlineExceeded)
}

// countingSaver tracks how many saves run at once.
type countingSaver struct {
	active, peak atomic.Int32
}

func (s *countingSaver) Save(context.Context, ...domain.Article) error {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return nil
}

func TestProcessBoundsConcurrency(t *testing.T) {
	var raws []domain.RawArticle
	for i := range 20 {
		raws = append(raws, rawArticle(i, aiContent))
	}

	saver := &countingSaver{}
	c := NewCoordinator(Options{Workers: 4}, testNormalizer(), testTaxonomy(t), saver, nil, nil)
	sum := c.Process(context.Background(), raws)

	assert.Equal(t, 20, sum.Persisted)
	assert.LessOrEqual(t, saver.peak.Load(), int32(4))
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishers.Event
	err    error
}

func (p *fakePublisher) Len() int { return 1 }

func (p *fakePublisher) Publish(_ context.Context, evt publishers.Event) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.events = append(p.events, evt)
	return 1, nil
}

func TestProcessPublishesPersistedArticles(t *testing.T) {
	pub := &fakePublisher{}
	bad := rawArticle(1, aiContent)
	bad["title"] = "x"

	c := NewCoordinator(Options{RunID: "run-7", ScoreThreshold: 1}, testNormalizer(), testTaxonomy(t), store.NewMemory(), pub, nil)
	sum := c.Process(context.Background(), []domain.RawArticle{rawArticle(0, aiContent), bad})

	assert.Equal(t, 1, sum.Published)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "run-7", pub.events[0].RunID)
	assert.Equal(t, []string{"ai"}, pub.events[0].Topics)
	assert.Empty(t, pub.events[0].Article.Content)
}

func TestPublishFailureKeepsArticlePersisted(t *testing.T) {
	pub := &fakePublisher{err: errors.New("sink down")}
	mem := store.NewMemory()

	c := NewCoordinator(Options{}, testNormalizer(), testTaxonomy(t), mem, pub, nil)
	sum := c.Process(context.Background(), []domain.RawArticle{rawArticle(0, aiContent)})

	assert.Equal(t, 1, sum.Persisted)
	assert.Zero(t, sum.Published)
	assert.Zero(t, sum.Failed)
	_, ok, err := mem.Get(context.Background(), "https://example.com/0")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProcessEmptyBatch(t *testing.T) {
	c := NewCoordinator(Options{}, testNormalizer(), testTaxonomy(t), store.NewMemory(), nil, nil)
	sum := c.Process(context.Background(), nil)

	assert.Zero(t, sum.Fetched)
	assert.Empty(t, sum.Outcomes)
	assert.False(t, sum.Finished.Before(sum.Started))
}

func TestStageString(t *testing.T) {
	var names []string
	for s := StageFetched; s <= StageSkipped; s++ {
		names = append(names, s.String())
	}
	assert.Equal(t, "fetched normalized classified persisted rejected failed skipped", strings.Join(names, " "))
	assert.Equal(t, "unknown", Stage(99).String())
}
