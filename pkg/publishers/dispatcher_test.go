package publishers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/khobor-topics/internal/domain"
)

type recordingPublisher struct {
	id     string
	err    error
	mu     sync.Mutex
	events []Event
	closed bool
}

func (p *recordingPublisher) ID() string   { return p.id }
func (p *recordingPublisher) Type() string { return "test" }

func (p *recordingPublisher) Publish(_ context.Context, evt Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func testEvent(topics ...string) Event {
	return NewArticleEvent("run-1", domain.Article{
		URL:    "https://example.com/a",
		Source: "Wired",
		Topics: topics,
	}, time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC))
}

func TestDispatcherDeliversToAllAndJoinsErrors(t *testing.T) {
	ok := &recordingPublisher{id: "ok"}
	bad := &recordingPublisher{id: "bad", err: errors.New("boom")}
	also := &recordingPublisher{id: "also"}

	d := NewDispatcher([]Publisher{ok, nil, bad, also}, nil)
	assert.Equal(t, 3, d.Len())

	n, err := d.Publish(context.Background(), testEvent("ai"))
	assert.Equal(t, 2, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publisher bad")
	assert.Len(t, ok.events, 1)
	assert.Len(t, also.events, 1)
}

func TestDispatcherAppliesTopicFilter(t *testing.T) {
	aiOnly := &recordingPublisher{id: "ai-only"}
	filtered := &topicFilter{Publisher: aiOnly, cfg: PublisherConfig{Topics: []string{"ai"}}}

	d := NewDispatcher([]Publisher{filtered}, nil)

	n, err := d.Publish(context.Background(), testEvent("marketing"))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = d.Publish(context.Background(), testEvent("ai", "science"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, d.Close())
	assert.True(t, aiOnly.closed)
}

func TestDispatcherStopsOnCancelledContext(t *testing.T) {
	p := &recordingPublisher{id: "p"}
	d := NewDispatcher([]Publisher{p}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := d.Publish(ctx, testEvent())
	assert.Zero(t, n)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, p.events)
}

func TestNilDispatcherIsNoop(t *testing.T) {
	var d *Dispatcher
	n, err := d.Publish(context.Background(), testEvent())
	assert.Zero(t, n)
	assert.NoError(t, err)
	assert.Zero(t, d.Len())
	assert.NoError(t, d.Close())
}

func TestSetupWithoutFile(t *testing.T) {
	d, err := Setup(context.Background(), "", nil, nil)
	require.NoError(t, err)
	assert.Zero(t, d.Len())
}

func TestNewArticleEvent(t *testing.T) {
	evt := testEvent()
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, EventTypeArticleStored, evt.Type)
	assert.Equal(t, "run-1", evt.RunID)
	assert.Equal(t, "Wired", evt.Source)
	assert.Equal(t, []string{}, evt.Topics)
}
