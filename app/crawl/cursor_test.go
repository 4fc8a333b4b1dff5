package crawl

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"creatorank/app/database"
	"creatorank/app/httpclient"
	"creatorank/app/identity"
	"creatorank/app/parser"
)

type fakeFetcher struct {
	pages  map[string]string
	errors map[string]error
	calls  []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, int, error) {
	f.calls = append(f.calls, rawURL)
	if err, ok := f.errors[rawURL]; ok {
		return nil, 0, err
	}
	if body, ok := f.pages[rawURL]; ok {
		return []byte(body), 200, nil
	}
	return nil, 404, &httpclient.FetchError{Kind: httpclient.KindNotFound, URL: rawURL, LastStatus: 404}
}

type fakeCreatorRepo struct {
	database.CreatorRepository
	states []database.CrawlState
	errors []string
}

func (f *fakeCreatorRepo) SetCrawlState(id string, state database.CrawlState) error {
	f.states = append(f.states, state)
	return nil
}

func (f *fakeCreatorRepo) RecordCrawlError(id string, reason string, at time.Time) error {
	f.errors = append(f.errors, reason)
	return nil
}

func (f *fakeCreatorRepo) finalState() database.CrawlState {
	if len(f.states) == 0 {
		return ""
	}
	return f.states[len(f.states)-1]
}

type fakeItemRepo struct {
	database.ItemRepository
	upserted []database.DiscoveredItem
}

func (f *fakeItemRepo) UpsertDiscovered(item database.DiscoveredItem) (bool, error) {
	f.upserted = append(f.upserted, item)
	return true, nil
}

func page(items []string, next string) string {
	html := "<html><body>"
	for _, item := range items {
		html += fmt.Sprintf(`<div class="game_cell"><a class="title game_link" href=%q>%s</a></div>`, item, item)
	}
	if next != "" {
		html += fmt.Sprintf(`<a class="next_page" href=%q>Next</a>`, next)
	}
	return html + "</body></html>"
}

func parseListing(html []byte, baseURL *url.URL) (*parser.Listing, error) {
	return parser.ParseListing(html, baseURL)
}

func testCreator() *database.Creator {
	return &database.Creator{
		ID:         "creator-1",
		Name:       "testdev",
		ProfileURL: "https://testdev.itch.io",
		CrawlState: database.CrawlNotStarted,
	}
}

func TestCursorWalksFiniteChain(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://testdev.itch.io":        page([]string{"/game-a"}, "?page=2"),
		"https://testdev.itch.io?page=2": page([]string{"/game-b", "/game-c"}, ""),
	}}
	creators := &fakeCreatorRepo{}
	items := &fakeItemRepo{}

	cursor := NewCursor(fetcher, parseListing, creators, items, 50)
	outcome, err := cursor.Run(context.Background(), testCreator())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if outcome.State != StateDone {
		t.Errorf("Expected state %s, got: %s (%s)", StateDone, outcome.State, outcome.Reason)
	}
	if outcome.PagesFetched != 2 {
		t.Errorf("Expected 2 pages fetched, got: %d", outcome.PagesFetched)
	}
	if outcome.ItemsUpserted != 3 {
		t.Errorf("Expected 3 items upserted, got: %d", outcome.ItemsUpserted)
	}
	if creators.finalState() != database.CrawlComplete {
		t.Errorf("Expected crawl marked complete, got: %s", creators.finalState())
	}

	// Relative item links resolved against the page they appeared on.
	wantID, _ := identity.Resolve("https://testdev.itch.io/game-a", nil)
	if items.upserted[0].Identity != wantID {
		t.Errorf("Expected identity of resolved absolute URL, got: %s", items.upserted[0].Identity)
	}
}

func TestCursorDetectsPaginationCycle(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://testdev.itch.io":        page([]string{"/game-a"}, "?page=2"),
		"https://testdev.itch.io?page=2": page([]string{"/game-b"}, "https://testdev.itch.io"),
	}}
	creators := &fakeCreatorRepo{}
	items := &fakeItemRepo{}

	cursor := NewCursor(fetcher, parseListing, creators, items, 50)
	outcome, err := cursor.Run(context.Background(), testCreator())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if outcome.State != StateDone {
		t.Errorf("Expected cycle to force %s, got: %s", StateDone, outcome.State)
	}
	if outcome.PagesFetched != 2 {
		t.Errorf("Expected exactly 2 fetches for a 2-page cycle, got: %d", outcome.PagesFetched)
	}
	if creators.finalState() != database.CrawlComplete {
		t.Errorf("Expected crawl marked complete after cycle, got: %s", creators.finalState())
	}
}

func TestCursorEnforcesPageCap(t *testing.T) {
	// Every page links to a fresh next page; only the cap stops the walk.
	pages := map[string]string{"https://testdev.itch.io": page([]string{"/game-0"}, "?page=1")}
	for i := 1; i <= 10; i++ {
		pages[fmt.Sprintf("https://testdev.itch.io?page=%d", i)] =
			page([]string{fmt.Sprintf("/game-%d", i)}, fmt.Sprintf("?page=%d", i+1))
	}

	fetcher := &fakeFetcher{pages: pages}
	creators := &fakeCreatorRepo{}
	items := &fakeItemRepo{}

	cursor := NewCursor(fetcher, parseListing, creators, items, 3)
	outcome, err := cursor.Run(context.Background(), testCreator())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if outcome.State != StateAborted {
		t.Errorf("Expected cap to force %s, got: %s", StateAborted, outcome.State)
	}
	if outcome.PagesFetched != 3 {
		t.Errorf("Expected 3 pages fetched, got: %d", outcome.PagesFetched)
	}
	if creators.finalState() == database.CrawlComplete {
		t.Error("A capped walk must never be marked complete")
	}
	if len(creators.errors) == 0 {
		t.Error("Expected the abort reason to be recorded")
	}
}

func TestCursorFirstPageFailureLeavesNotStarted(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: map[string]string{},
		errors: map[string]error{
			"https://testdev.itch.io": &httpclient.FetchError{Kind: httpclient.KindExhausted, URL: "https://testdev.itch.io", LastStatus: 503},
		},
	}
	creators := &fakeCreatorRepo{}
	items := &fakeItemRepo{}

	cursor := NewCursor(fetcher, parseListing, creators, items, 50)
	outcome, err := cursor.Run(context.Background(), testCreator())
	if err != nil {
		t.Fatalf("Expected clean abort, got: %v", err)
	}

	if outcome.State != StateAborted {
		t.Errorf("Expected state %s, got: %s", StateAborted, outcome.State)
	}
	if creators.finalState() != database.CrawlNotStarted {
		t.Errorf("A fully failed walk must leave the creator not_started, got: %s", creators.finalState())
	}
	if len(items.upserted) != 0 {
		t.Errorf("Expected no items from a failed walk, got: %d", len(items.upserted))
	}
	if len(creators.errors) != 1 {
		t.Fatalf("Expected 1 recorded error, got: %d", len(creators.errors))
	}
}

func TestCursorMidWalkFailureKeepsProgress(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: map[string]string{
			"https://testdev.itch.io": page([]string{"/game-a"}, "?page=2"),
		},
		errors: map[string]error{
			"https://testdev.itch.io?page=2": &httpclient.FetchError{Kind: httpclient.KindExhausted, LastStatus: 500},
		},
	}
	creators := &fakeCreatorRepo{}
	items := &fakeItemRepo{}

	cursor := NewCursor(fetcher, parseListing, creators, items, 50)
	outcome, err := cursor.Run(context.Background(), testCreator())
	if err != nil {
		t.Fatalf("Expected clean abort, got: %v", err)
	}

	if outcome.State != StateAborted {
		t.Errorf("Expected state %s, got: %s", StateAborted, outcome.State)
	}
	if len(items.upserted) != 1 {
		t.Errorf("Expected first page's item kept, got: %d", len(items.upserted))
	}
	if creators.finalState() != database.CrawlInProgress {
		t.Errorf("Expected partial walk to stay in_progress, got: %s", creators.finalState())
	}
}

func TestCursorEmptyProfileCompletes(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://testdev.itch.io": "<html><body><p>Nothing published yet</p></body></html>",
	}}
	creators := &fakeCreatorRepo{}
	items := &fakeItemRepo{}

	cursor := NewCursor(fetcher, parseListing, creators, items, 50)
	outcome, err := cursor.Run(context.Background(), testCreator())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if outcome.State != StateDone {
		t.Errorf("Expected state %s, got: %s", StateDone, outcome.State)
	}
	if outcome.ItemsSeen != 0 {
		t.Errorf("Expected zero items, got: %d", outcome.ItemsSeen)
	}
	if creators.finalState() != database.CrawlComplete {
		t.Errorf("An error-free empty walk completes, got: %s", creators.finalState())
	}
}
