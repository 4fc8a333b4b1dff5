// Package enrich drives the per-item staleness state machine. An item
// settles when a rating is observed, enters a timed cooldown when the source
// positively reports hidden ratings, and becomes eligible again once settled
// data ages out. Fetch and parse failures advance nothing: the item stays
// immediately retryable, unlike the confirmed hidden-ratings signal.
package enrich

import (
	"context"
	"fmt"
	"time"

	"creatorank/app/database"
	"creatorank/app/parser"
)

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, int, error)
}

// DetailParser is the external parsing collaborator.
type DetailParser func(html []byte) (*parser.Detail, error)

type Scheduler struct {
	fetcher    Fetcher
	parse      DetailParser
	items      database.ItemRepository
	cooldown   time.Duration
	staleAfter time.Duration
	budget     int
}

func NewScheduler(fetcher Fetcher, parse DetailParser, items database.ItemRepository,
	cooldown, staleAfter time.Duration, budget int) *Scheduler {
	return &Scheduler{
		fetcher:    fetcher,
		parse:      parse,
		items:      items,
		cooldown:   cooldown,
		staleAfter: staleAfter,
		budget:     budget,
	}
}

// SelectDue returns the items due for enrichment, unvisited before stale
// before expired-cooldown, capped by the run budget.
func (s *Scheduler) SelectDue(now time.Time) ([]database.Item, error) {
	return s.items.SelectForEnrichment(now, s.staleAfter, s.budget)
}

// EnrichItem performs one enrichment fetch and applies the resulting state
// transition. On any failure the item is left untouched, including its
// last-enriched timestamp.
func (s *Scheduler) EnrichItem(ctx context.Context, item database.Item, now time.Time) error {
	body, _, err := s.fetcher.Fetch(ctx, item.URL)
	if err != nil {
		return fmt.Errorf("failed to fetch item %s: %w", item.Identity, err)
	}

	detail, err := s.parse(body)
	if err != nil {
		return fmt.Errorf("failed to parse item %s: %w", item.Identity, err)
	}

	enrichment := database.Enrichment{
		CommentCount: detail.CommentCount,
		Description:  detail.Description,
		Tags:         detail.Tags,
		EnrichedAt:   now,
	}

	switch detail.Status {
	case parser.RatingPresent:
		rating := detail.Rating
		enrichment.State = database.EnrichSettled
		enrichment.Rating = &rating
		enrichment.RatingCount = detail.RatingCount

	case parser.RatingsHidden:
		until := now.Add(s.cooldown)
		enrichment.State = database.EnrichRatingHidden
		enrichment.HiddenUntil = &until

	default:
		return fmt.Errorf("item %s: unexpected rating status %q", item.Identity, detail.Status)
	}

	if err := s.items.UpdateEnrichment(item.Identity, enrichment); err != nil {
		return fmt.Errorf("failed to store enrichment for %s: %w", item.Identity, err)
	}

	return nil
}
