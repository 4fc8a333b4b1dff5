// Package crawl walks a creator's paginated publication history. The walk is
// an explicit state machine: every outcome (cycle, page cap, fetch error,
// clean end) is a named transition, and a creator is marked complete only
// after an error-free walk. A failed first page leaves it not_started so a
// later run retries it.
package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"creatorank/app/database"
	"creatorank/app/identity"
	"creatorank/app/parser"
)

type State string

const (
	StateStart    State = "start"
	StateFetching State = "fetching"
	StateParsed   State = "parsed"
	StateDone     State = "done"
	StateAborted  State = "aborted"
)

// Fetcher is the paced fetch client.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, int, error)
}

// ListingParser is the external parsing collaborator.
type ListingParser func(html []byte, baseURL *url.URL) (*parser.Listing, error)

// Outcome summarizes one walk for reporting.
type Outcome struct {
	State         State
	Reason        string
	PagesFetched  int
	ItemsSeen     int
	ItemsUpserted int
}

type Cursor struct {
	fetcher  Fetcher
	parse    ListingParser
	creators database.CreatorRepository
	items    database.ItemRepository
	pageCap  int
}

func NewCursor(fetcher Fetcher, parse ListingParser, creators database.CreatorRepository,
	items database.ItemRepository, pageCap int) *Cursor {
	return &Cursor{
		fetcher:  fetcher,
		parse:    parse,
		creators: creators,
		items:    items,
		pageCap:  pageCap,
	}
}

// Run walks the creator's listing from its profile URL. Each next-page link
// is resolved against the page it was found on, and each page's identity is
// checked against the visited set before fetching, so cyclic pagination
// terminates in at most pageCap fetches.
func (c *Cursor) Run(ctx context.Context, creator *database.Creator) (Outcome, error) {
	if err := c.creators.SetCrawlState(creator.ID, database.CrawlInProgress); err != nil {
		return Outcome{State: StateAborted, Reason: "store error"}, err
	}

	current, err := url.Parse(creator.ProfileURL)
	if err != nil || !current.IsAbs() {
		outcome := Outcome{State: StateAborted, Reason: fmt.Sprintf("invalid profile URL %q", creator.ProfileURL)}
		return outcome, c.abort(creator, outcome, 0)
	}

	visited := make(map[identity.ID]bool)
	outcome := Outcome{State: StateStart}

	for {
		if outcome.PagesFetched >= c.pageCap {
			outcome.State = StateAborted
			outcome.Reason = fmt.Sprintf("page cap of %d reached", c.pageCap)
			return outcome, c.abort(creator, outcome, outcome.PagesFetched)
		}

		pageID, err := identity.Resolve(current.String(), nil)
		if err != nil {
			outcome.State = StateAborted
			outcome.Reason = fmt.Sprintf("unresolvable page URL: %v", err)
			return outcome, c.abort(creator, outcome, outcome.PagesFetched)
		}
		if visited[pageID] {
			// Dead pagination pointing back at a seen page.
			outcome.State = StateDone
			outcome.Reason = "pagination cycle"
			break
		}
		visited[pageID] = true

		outcome.State = StateFetching
		body, _, err := c.fetcher.Fetch(ctx, current.String())
		if err != nil {
			outcome.State = StateAborted
			outcome.Reason = fmt.Sprintf("fetch failed: %v", err)
			return outcome, c.abort(creator, outcome, outcome.PagesFetched)
		}

		listing, err := c.parse(body, current)
		if err != nil {
			// Parse failures advance nothing, same as fetch failures.
			outcome.State = StateAborted
			outcome.Reason = fmt.Sprintf("parse failed: %v", err)
			return outcome, c.abort(creator, outcome, outcome.PagesFetched)
		}

		outcome.State = StateParsed
		outcome.PagesFetched++
		outcome.ItemsSeen += len(listing.Items)

		for _, listingItem := range listing.Items {
			if err := c.upsertItem(creator, listingItem, current); err != nil {
				slog.Warn("Skipping item", "creator", creator.Name, "url", listingItem.URL, "error", err)
				continue
			}
			outcome.ItemsUpserted++
		}

		if listing.NextPageURL == "" {
			outcome.State = StateDone
			break
		}

		next, err := url.Parse(listing.NextPageURL)
		if err != nil {
			outcome.State = StateDone
			outcome.Reason = "unparseable next-page link"
			break
		}
		// Relative pagination resolves against the page it appeared on.
		current = current.ResolveReference(next)
	}

	// Done: at least one page parsed without error, so completing is safe
	// even when the creator has published nothing.
	if err := c.creators.SetCrawlState(creator.ID, database.CrawlComplete); err != nil {
		return outcome, fmt.Errorf("failed to mark crawl complete: %w", err)
	}

	return outcome, nil
}

func (c *Cursor) upsertItem(creator *database.Creator, listingItem parser.ListingItem, pageURL *url.URL) error {
	itemID, err := identity.Resolve(listingItem.URL, pageURL)
	if err != nil {
		return fmt.Errorf("failed to resolve item identity: %w", err)
	}
	canonical, err := identity.CanonicalURL(listingItem.URL, pageURL)
	if err != nil {
		return fmt.Errorf("failed to canonicalize item URL: %w", err)
	}

	_, err = c.items.UpsertDiscovered(database.DiscoveredItem{
		Identity:    itemID,
		CreatorID:   creator.ID,
		Title:       listingItem.Title,
		URL:         canonical,
		PublishDate: listingItem.PublishedAt,
	})
	return err
}

// abort records the failure and leaves the creator retryable: not_started if
// nothing was walked successfully, in_progress otherwise. Never complete.
func (c *Cursor) abort(creator *database.Creator, outcome Outcome, successfulPages int) error {
	if err := c.creators.RecordCrawlError(creator.ID, outcome.Reason, time.Now()); err != nil {
		return fmt.Errorf("failed to record crawl error: %w", err)
	}

	state := database.CrawlInProgress
	if successfulPages == 0 {
		state = database.CrawlNotStarted
	}
	if err := c.creators.SetCrawlState(creator.ID, state); err != nil {
		return fmt.Errorf("failed to reset crawl state: %w", err)
	}

	return nil
}
