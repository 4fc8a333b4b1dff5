// Package pipeline composes the stages into runnable units: discover new
// creators and items from the configured sources, backfill creator histories,
// enrich item details and rescore creators. Each stage is independently
// re-runnable and returns a report of what it touched.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"creatorank/app/crawl"
	"creatorank/app/database"
	"creatorank/app/enrich"
	"creatorank/app/identity"
	"creatorank/app/parser"
	"creatorank/app/scoring"
	"creatorank/app/sources"
)

// Fetcher is the paced fetch client shared by every stage.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, int, error)
}

// Failure records one unit of work a stage could not complete.
type Failure struct {
	Subject string
	Reason  string
}

// Report summarizes one stage run.
type Report struct {
	Stage     string
	Processed int
	Succeeded int
	Failed    int
	Failures  []Failure
}

func (r *Report) fail(subject string, err error) {
	r.Failed++
	r.Failures = append(r.Failures, Failure{Subject: subject, Reason: err.Error()})
}

type Pipeline struct {
	fetcher     Fetcher
	feedParser  *parser.FeedParser
	sources     *sources.Config
	creators    database.CreatorRepository
	items       database.ItemRepository
	scores      database.ScoreRepository
	cursor      *crawl.Cursor
	enricher    *enrich.Scheduler
	scorer      *scoring.Scorer
	workerCount int
}

func New(fetcher Fetcher, feedParser *parser.FeedParser, sourcesConfig *sources.Config,
	creators database.CreatorRepository, items database.ItemRepository, scores database.ScoreRepository,
	cursor *crawl.Cursor, enricher *enrich.Scheduler, scorer *scoring.Scorer, workerCount int) *Pipeline {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pipeline{
		fetcher:     fetcher,
		feedParser:  feedParser,
		sources:     sourcesConfig,
		creators:    creators,
		items:       items,
		scores:      scores,
		cursor:      cursor,
		enricher:    enricher,
		scorer:      scorer,
		workerCount: workerCount,
	}
}

// Discover walks the configured feeds and browse listings once and upserts
// every creator and item they surface. Browse listings are sampled at their
// first page only; deep pagination belongs to Backfill.
func (p *Pipeline) Discover(ctx context.Context) Report {
	report := Report{Stage: "discover"}

	for _, source := range p.sources.Feeds {
		report.Processed++

		body, _, err := p.fetcher.Fetch(ctx, source.URL)
		if err != nil {
			report.fail(source.Name, err)
			continue
		}

		candidates, skipped, err := p.feedParser.Run(body)
		if err != nil {
			report.fail(source.Name, err)
			continue
		}
		if skipped > 0 {
			slog.Warn("Skipped feed entries without a resolvable creator", "source", source.Name, "count", skipped)
		}

		if err := p.ingestCandidates(candidates); err != nil {
			report.fail(source.Name, err)
			continue
		}

		report.Succeeded++
		slog.Debug("Discovered from feed", "source", source.Name, "candidates", len(candidates))
	}

	for _, source := range p.sources.Browse {
		report.Processed++

		candidates, err := p.discoverFromBrowse(ctx, source)
		if err != nil {
			report.fail(source.Name, err)
			continue
		}

		if err := p.ingestCandidates(candidates); err != nil {
			report.fail(source.Name, err)
			continue
		}

		report.Succeeded++
		slog.Debug("Discovered from browse listing", "source", source.Name, "candidates", len(candidates))
	}

	return report
}

func (p *Pipeline) discoverFromBrowse(ctx context.Context, source sources.Source) ([]parser.Candidate, error) {
	base, err := url.Parse(source.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid browse URL %q: %w", source.URL, err)
	}

	body, _, err := p.fetcher.Fetch(ctx, source.URL)
	if err != nil {
		return nil, err
	}

	listing, err := parser.ParseListing(body, base)
	if err != nil {
		return nil, err
	}

	var candidates []parser.Candidate
	for _, item := range listing.Items {
		handle, profileURL, ok := p.feedParser.CreatorFromURL(item.URL)
		if !ok {
			continue
		}
		candidates = append(candidates, parser.Candidate{
			Title:       item.Title,
			Handle:      handle,
			ItemURL:     item.URL,
			ProfileURL:  profileURL,
			PublishedAt: item.PublishedAt,
		})
	}

	return candidates, nil
}

// ingestCandidates upserts each candidate's creator and item. A candidate
// that cannot be resolved is logged and skipped so one bad entry never sinks
// its source.
func (p *Pipeline) ingestCandidates(candidates []parser.Candidate) error {
	for _, candidate := range candidates {
		creator, created, err := p.creators.UpsertCreator(candidate.Handle, candidate.ProfileURL)
		if err != nil {
			return fmt.Errorf("failed to upsert creator %s: %w", candidate.Handle, err)
		}
		if created {
			slog.Info("Discovered creator", "name", creator.Name)
		}

		itemID, err := identity.Resolve(candidate.ItemURL, nil)
		if err != nil {
			slog.Warn("Skipping item with unresolvable URL", "url", candidate.ItemURL, "error", err)
			continue
		}
		canonical, err := identity.CanonicalURL(candidate.ItemURL, nil)
		if err != nil {
			slog.Warn("Skipping item with unresolvable URL", "url", candidate.ItemURL, "error", err)
			continue
		}

		if _, err := p.items.UpsertDiscovered(database.DiscoveredItem{
			Identity:    itemID,
			CreatorID:   creator.ID,
			Title:       candidate.Title,
			URL:         canonical,
			PublishDate: candidate.PublishedAt,
		}); err != nil {
			slog.Warn("Skipping item", "url", candidate.ItemURL, "error", err)
		}
	}

	return nil
}

// Backfill walks the publication history of every creator not yet crawled to
// completion. Creators are processed by a worker pool; the shared fetch gate
// keeps per-host pacing intact regardless of worker count.
func (p *Pipeline) Backfill(ctx context.Context) Report {
	report := Report{Stage: "backfill"}

	creators, err := p.creators.GetCreatorsForBackfill()
	if err != nil {
		report.fail("backfill", err)
		return report
	}
	report.Processed = len(creators)

	var mu sync.Mutex
	p.runWorkers(ctx, len(creators), func(ctx context.Context, i int) {
		creator := creators[i]
		outcome, err := p.cursor.Run(ctx, &creator)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.fail(creator.Name, err)
			return
		}
		if outcome.State == crawl.StateAborted {
			report.fail(creator.Name, fmt.Errorf("%s", outcome.Reason))
			return
		}
		report.Succeeded++
		slog.Debug("Backfilled creator", "name", creator.Name,
			"pages", outcome.PagesFetched, "items", outcome.ItemsUpserted)
	})

	return report
}

// Enrich visits the due items selected under the configured budget.
func (p *Pipeline) Enrich(ctx context.Context) Report {
	report := Report{Stage: "enrich"}

	now := time.Now().UTC()
	due, err := p.enricher.SelectDue(now)
	if err != nil {
		report.fail("enrich", err)
		return report
	}
	report.Processed = len(due)

	var mu sync.Mutex
	p.runWorkers(ctx, len(due), func(ctx context.Context, i int) {
		item := due[i]
		err := p.enricher.EnrichItem(ctx, item, time.Now().UTC())

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.fail(string(item.Identity), err)
			return
		}
		report.Succeeded++
	})

	return report
}

// Rescore recomputes every creator's aggregate and Bayesian score from the
// current item table. Pure recomputation, no fetching.
func (p *Pipeline) Rescore(ctx context.Context) Report {
	report := Report{Stage: "rescore"}

	aggregates, err := p.items.GetCreatorAggregates()
	if err != nil {
		report.fail("rescore", err)
		return report
	}
	report.Processed = len(aggregates)

	for _, score := range p.scorer.Run(aggregates, time.Now().UTC()) {
		if err := p.scores.UpsertScore(score); err != nil {
			report.fail(score.CreatorID, err)
			continue
		}
		report.Succeeded++
	}

	return report
}

// RunAll executes the full pipeline in stage order. A stage with failures
// does not block the next; each stage works from whatever state the store
// holds.
func (p *Pipeline) RunAll(ctx context.Context) []Report {
	reports := []Report{p.Discover(ctx)}
	for _, stage := range []func(context.Context) Report{p.Backfill, p.Enrich, p.Rescore} {
		if ctx.Err() != nil {
			break
		}
		reports = append(reports, stage(ctx))
	}
	return reports
}

// runWorkers fans n indexed jobs out over the worker pool.
func (p *Pipeline) runWorkers(ctx context.Context, n int, job func(ctx context.Context, i int)) {
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < p.workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				job(ctx, i)
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}
