// Package pipeline drives raw upstream records through normalization,
// classification, persistence and publishing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Adda-Baaj/khobor-topics/internal/classifier"
	"github.com/Adda-Baaj/khobor-topics/internal/domain"
	"github.com/Adda-Baaj/khobor-topics/internal/logger"
	"github.com/Adda-Baaj/khobor-topics/internal/normalizer"
	"github.com/Adda-Baaj/khobor-topics/internal/taxonomy"
	"github.com/Adda-Baaj/khobor-topics/pkg/publishers"
)

const (
	DefaultWorkers        = 10
	DefaultArticleTimeout = 30 * time.Second
)

// Normalizer turns a raw record into an article.
type Normalizer interface {
	Normalize(ctx context.Context, raw domain.RawArticle) (normalizer.Result, error)
}

// Saver persists articles.
type Saver interface {
	Save(ctx context.Context, articles ...domain.Article) error
}

// EventPublisher fans article events out to external sinks.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
	Len() int
}

// Options tune one coordinator.
type Options struct {
	RunID          string
	ConfigVersion  string
	ScoreThreshold int
	Workers        int
	ArticleTimeout time.Duration
}

// Coordinator processes a batch of raw records with a bounded worker pool.
type Coordinator struct {
	opts       Options
	normalizer Normalizer
	taxonomy   *taxonomy.Taxonomy
	saver      Saver
	publisher  EventPublisher
	log        logger.Logger
	now        func() time.Time
}

// NewCoordinator wires a coordinator. publisher may be nil.
func NewCoordinator(opts Options, n Normalizer, tx *taxonomy.Taxonomy, saver Saver, publisher EventPublisher, log logger.Logger) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.ArticleTimeout <= 0 {
		opts.ArticleTimeout = DefaultArticleTimeout
	}
	return &Coordinator{
		opts:       opts,
		normalizer: n,
		taxonomy:   tx,
		saver:      saver,
		publisher:  publisher,
		log:        logger.Ensure(log),
		now:        time.Now,
	}
}

// Process runs every record through the stages. Records are independent: a
// failure on one never stops the others. When ctx is cancelled no further
// records are dispatched; those are reported as skipped.
func (c *Coordinator) Process(ctx context.Context, raws []domain.RawArticle) Summary {
	sum := Summary{
		RunID:         c.opts.RunID,
		ConfigVersion: c.opts.ConfigVersion,
		Fetched:       len(raws),
		Started:       c.now().UTC(),
	}

	outcomes := make([]Outcome, len(raws))
	dispatched := make([]bool, len(raws))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for range min(c.opts.Workers, max(len(raws), 1)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = c.processOne(ctx, i, raws[i])
			}
		}()
	}

dispatch:
	for i := range raws {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
			dispatched[i] = true
		}
	}
	close(jobs)
	wg.Wait()

	for i := range raws {
		if !dispatched[i] {
			outcomes[i] = Outcome{Index: i, Stage: StageSkipped, Err: ctx.Err()}
		}
	}

	sum.tally(outcomes)
	sum.Cancelled = ctx.Err() != nil
	sum.Finished = c.now().UTC()
	return sum
}

// processOne takes one record as far as it can go within the article timeout.
func (c *Coordinator) processOne(ctx context.Context, i int, raw domain.RawArticle) Outcome {
	out := Outcome{Index: i, Stage: StageFetched}

	actx, cancel := context.WithTimeout(ctx, c.opts.ArticleTimeout)
	defer cancel()

	res, err := c.normalizer.Normalize(actx, raw)
	if err != nil {
		out.Err = err
		if errors.Is(err, domain.ErrValidation) {
			out.Stage = StageRejected
			c.log.DebugObj("article rejected", "article_rejected", map[string]any{
				"run_id": c.opts.RunID,
				"index":  i,
				"reason": err.Error(),
			})
			return out
		}
		return c.fail(out, err)
	}

	art := res.Article
	out.URL = art.URL
	out.Stage = StageNormalized
	out.FullTextFallback = res.FullTextErr != nil

	art.Topics = classifier.Classify(art, c.taxonomy, c.opts.ScoreThreshold)
	out.Topics = art.Topics
	out.Classified = true
	out.Stage = StageClassified

	if err := actx.Err(); err != nil {
		return c.fail(out, fmt.Errorf("article aborted before persistence: %w", err))
	}
	if err := c.saver.Save(actx, art); err != nil {
		return c.fail(out, err)
	}
	out.Stage = StagePersisted

	if c.publisher != nil && c.publisher.Len() > 0 {
		evt := publishers.NewArticleEvent(c.opts.RunID, art, c.now())
		n, perr := c.publisher.Publish(actx, evt)
		out.Published = perr == nil && n > 0
	}

	c.log.DebugObj("article persisted", "article_persisted", map[string]any{
		"run_id": c.opts.RunID,
		"url":    art.URL,
		"topics": art.Topics,
	})
	return out
}

func (c *Coordinator) fail(out Outcome, err error) Outcome {
	out.Stage = StageFailed
	out.Err = err
	c.log.WarnObj("article failed", "article_failed", map[string]any{
		"run_id": c.opts.RunID,
		"index":  out.Index,
		"url":    out.URL,
		"error":  err.Error(),
	})
	return out
}
