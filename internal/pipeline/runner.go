package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Adda-Baaj/khobor-topics/internal/config"
	"github.com/Adda-Baaj/khobor-topics/internal/crawler"
	"github.com/Adda-Baaj/khobor-topics/internal/domain"
	"github.com/Adda-Baaj/khobor-topics/internal/logger"
	"github.com/Adda-Baaj/khobor-topics/internal/normalizer"
	"github.com/Adda-Baaj/khobor-topics/internal/taxonomy"
	"github.com/Adda-Baaj/khobor-topics/pkg/httpclient"
	"github.com/Adda-Baaj/khobor-topics/pkg/providers"
)

// SnapshotLoader returns the configuration for one run.
type SnapshotLoader interface {
	Load() (config.Snapshot, error)
}

// FetcherFactory builds the fetcher registry for a settings snapshot.
type FetcherFactory func(s config.Settings) providers.FetcherRegistry

// TextFetcherFactory builds the full-text fetcher for a settings snapshot.
type TextFetcherFactory func(s config.Settings, log logger.Logger) normalizer.TextFetcher

// Deps are the collaborators a Runner needs. Config and Store are required.
type Deps struct {
	Config       SnapshotLoader
	Store        Saver
	Publisher    EventPublisher
	Fetchers     FetcherFactory
	TextFetchers TextFetcherFactory
	Log          logger.Logger
	Now          func() time.Time
}

// Runner executes one fetch-and-process run per call.
type Runner struct {
	deps Deps
	log  logger.Logger
}

// NewRunner fills default factories for anything left nil in deps.
func NewRunner(deps Deps) *Runner {
	if deps.Fetchers == nil {
		deps.Fetchers = DefaultFetchers
	}
	if deps.TextFetchers == nil {
		deps.TextFetchers = DefaultTextFetcher
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Runner{deps: deps, log: logger.Ensure(deps.Log)}
}

// DefaultFetchers builds the NewsAPI and Google News fetchers from s.
func DefaultFetchers(s config.Settings) providers.FetcherRegistry {
	return providers.DefaultFetcherRegistry(httpclient.NewRestyClient(s.HTTPTimeout), ProviderOptions(s))
}

// DefaultTextFetcher builds the goquery scraper used for GET_FULL_TEXT.
func DefaultTextFetcher(s config.Settings, log logger.Logger) normalizer.TextFetcher {
	return crawler.NewScraper(httpclient.NewRestyClient(s.FullTextTimeout), log, s.UserAgent).
		WithRateLimit(s.FullTextRPS, s.Workers)
}

// ProviderOptions maps settings onto fetcher options.
func ProviderOptions(s config.Settings) providers.Options {
	return providers.Options{
		NewsAPIKey:      s.NewsAPIKey,
		NewsAPIURL:      s.NewsAPIURL,
		NewsAPILanguage: s.NewsAPILanguage,
		NewsAPISortBy:   s.NewsAPISortBy,
		SitemapURLs:     s.SitemapURLs,
		UserAgent:       s.UserAgent,
	}
}

// Window returns the fetch window ending FETCH_OFFSET_HOURS before now and
// spanning HOURS_BACK hours.
func Window(s config.Settings, now time.Time) (from, to time.Time) {
	to = now.UTC().Add(-time.Duration(s.FetchOffsetHours) * time.Hour)
	from = to.Add(-time.Duration(s.HoursBack) * time.Hour)
	return from, to
}

// Run loads a configuration snapshot and the taxonomy, fetches one window of
// raw records and processes them. Configuration problems stop the run before
// anything is fetched. A fetch failure returns a summary with no articles.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	started := r.deps.Now().UTC()

	snap, err := r.deps.Config.Load()
	if err != nil {
		return Summary{Started: started, Finished: started}, fmt.Errorf("load config: %w", err)
	}
	s := snap.Settings

	sum := Summary{
		RunID:         uuid.NewString(),
		ConfigVersion: snap.Version,
		Started:       started,
	}
	finish := func(err error) (Summary, error) {
		sum.Finished = r.deps.Now().UTC()
		sum.Cancelled = ctx.Err() != nil
		return sum, err
	}

	tx, err := taxonomy.LoadOrDefault(s.TaxonomyFile)
	if err != nil {
		return finish(fmt.Errorf("load taxonomy: %w", err))
	}

	fetcher, err := r.deps.Fetchers(s).FetcherFor(s.Fetcher)
	if err != nil {
		return finish(err)
	}

	from, to := Window(s, started)
	r.log.InfoObj("run started", "run_start", map[string]any{
		"run_id":         sum.RunID,
		"config_version": snap.Version,
		"fetcher":        fetcher.ID(),
		"from":           from.Format(time.RFC3339),
		"to":             to.Format(time.RFC3339),
		"topics":         tx.Len(),
	})

	fctx, cancel := context.WithTimeout(ctx, s.FetchTimeout)
	raws, err := fetcher.Fetch(fctx, providers.Request{Keywords: tx.Topics(), From: from, To: to})
	cancel()
	if err != nil {
		if !errors.Is(err, domain.ErrUpstreamFetch) && !errors.Is(err, domain.ErrConfiguration) {
			err = fmt.Errorf("%w: %v", domain.ErrUpstreamFetch, err)
		}
		r.log.ErrorObj("fetch failed", "fetch_error", map[string]any{
			"run_id":  sum.RunID,
			"fetcher": fetcher.ID(),
			"error":   err.Error(),
		})
		return finish(fmt.Errorf("fetch %s: %w", fetcher.ID(), err))
	}

	var textFetcher normalizer.TextFetcher
	if s.GetFullText {
		textFetcher = r.deps.TextFetchers(s, r.log)
	}
	norm := normalizer.New(normalizer.Options{
		MinContentSize: s.MinContentSize,
		MinTitleSize:   s.MinTitleSize,
		GetFullText:    s.GetFullText,
	}, textFetcher, r.log)

	coord := NewCoordinator(Options{
		RunID:          sum.RunID,
		ConfigVersion:  snap.Version,
		ScoreThreshold: s.ScoreThreshold,
		Workers:        s.Workers,
		ArticleTimeout: s.ArticleTimeout,
	}, norm, tx, r.deps.Store, r.deps.Publisher, r.log)
	coord.now = r.deps.Now

	sum = coord.Process(ctx, raws)
	sum.Started = started

	fields := sum.Fields()
	if sum.Cancelled {
		r.log.WarnObj("run cancelled", "run_cancelled", fields)
	} else {
		r.log.InfoObj("run finished", "run_finish", fields)
	}
	return sum, nil
}
