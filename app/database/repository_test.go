package database

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"creatorank/app/identity"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

func seedCreator(t *testing.T, db *DB, name string) *Creator {
	t.Helper()
	creator, _, err := NewCreatorRepository(db).UpsertCreator(name, "https://"+name+".itch.io")
	if err != nil {
		t.Fatalf("Failed to seed creator: %v", err)
	}
	return creator
}

func TestUpsertCreatorIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewCreatorRepository(db)

	first, created, err := repo.UpsertCreator("testdev", "https://testdev.itch.io")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !created {
		t.Error("Expected first upsert to create the creator")
	}
	if first.CrawlState != CrawlNotStarted {
		t.Errorf("Expected initial crawl state %s, got: %s", CrawlNotStarted, first.CrawlState)
	}

	second, created, err := repo.UpsertCreator("testdev", "https://elsewhere.example.com")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if created {
		t.Error("Expected replay to be a noop")
	}
	if second.ID != first.ID {
		t.Errorf("Expected stable creator id, got %s then %s", first.ID, second.ID)
	}
	if second.ProfileURL != "https://testdev.itch.io" {
		t.Errorf("Rediscovery must not overwrite the profile URL, got: %s", second.ProfileURL)
	}
}

func TestCrawlStateAndErrorRecording(t *testing.T) {
	db := newTestDB(t)
	repo := NewCreatorRepository(db)
	creator := seedCreator(t, db, "testdev")

	if err := repo.SetCrawlState(creator.ID, CrawlInProgress); err != nil {
		t.Fatalf("SetCrawlState failed: %v", err)
	}
	if err := repo.RecordCrawlError(creator.ID, "fetch https://testdev.itch.io: exhausted", time.Now()); err != nil {
		t.Fatalf("RecordCrawlError failed: %v", err)
	}

	reloaded, err := repo.GetCreatorByID(creator.ID)
	if err != nil {
		t.Fatalf("GetCreatorByID failed: %v", err)
	}
	if reloaded.CrawlState != CrawlInProgress {
		t.Errorf("Expected crawl state %s, got: %s", CrawlInProgress, reloaded.CrawlState)
	}
	if reloaded.CrawlError == "" || reloaded.CrawlErrorAt == nil {
		t.Error("Expected crawl error and timestamp to be recorded")
	}

	backfill, err := repo.GetCreatorsForBackfill()
	if err != nil {
		t.Fatalf("GetCreatorsForBackfill failed: %v", err)
	}
	if len(backfill) != 1 {
		t.Fatalf("Expected 1 creator due for backfill, got: %d", len(backfill))
	}

	if err := repo.SetCrawlState(creator.ID, CrawlComplete); err != nil {
		t.Fatalf("SetCrawlState failed: %v", err)
	}
	backfill, err = repo.GetCreatorsForBackfill()
	if err != nil {
		t.Fatalf("GetCreatorsForBackfill failed: %v", err)
	}
	if len(backfill) != 0 {
		t.Errorf("Expected no creators due after completion, got: %d", len(backfill))
	}
}

func TestUpsertDiscoveredIdempotentAndPartial(t *testing.T) {
	db := newTestDB(t)
	creator := seedCreator(t, db, "testdev")
	repo := NewItemRepository(db)

	id := identity.ID("a1b2c3")
	publishDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	applied, err := repo.UpsertDiscovered(DiscoveredItem{
		Identity: id, CreatorID: creator.ID, Title: "Cool Game",
		URL: "https://testdev.itch.io/cool-game", PublishDate: &publishDate,
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !applied {
		t.Error("Expected first upsert to apply")
	}

	// Identical replay is a noop.
	applied, err = repo.UpsertDiscovered(DiscoveredItem{
		Identity: id, CreatorID: creator.ID, Title: "Cool Game",
		URL: "https://testdev.itch.io/cool-game", PublishDate: &publishDate,
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if applied {
		t.Error("Expected identical replay to be a noop")
	}

	// Partial upsert without title or date keeps the known values.
	applied, err = repo.UpsertDiscovered(DiscoveredItem{
		Identity: id, CreatorID: creator.ID,
		URL: "https://testdev.itch.io/cool-game",
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if applied {
		t.Error("Expected field-less upsert to be a noop")
	}

	item, err := repo.GetItem(id)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if item.Title != "Cool Game" {
		t.Errorf("Partial upsert nulled the title, got: %q", item.Title)
	}
	if item.PublishDate == nil {
		t.Error("Partial upsert nulled the publish date")
	}
}

func TestUpsertDiscoveredIdentityConflict(t *testing.T) {
	db := newTestDB(t)
	alice := seedCreator(t, db, "alice")
	bob := seedCreator(t, db, "bob")
	repo := NewItemRepository(db)

	id := identity.ID("shared")
	if _, err := repo.UpsertDiscovered(DiscoveredItem{
		Identity: id, CreatorID: alice.ID, Title: "Dungeon", URL: "https://alice.itch.io/dungeon",
	}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	_, err := repo.UpsertDiscovered(DiscoveredItem{
		Identity: id, CreatorID: bob.ID, Title: "Dungeon", URL: "https://alice.itch.io/dungeon",
	})
	if !errors.Is(err, ErrIdentityConflict) {
		t.Errorf("Expected ErrIdentityConflict, got: %v", err)
	}

	item, err := repo.GetItem(id)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if item.CreatorID != alice.ID {
		t.Error("Conflicting upsert must not reassign ownership")
	}
}

func TestUpdateEnrichmentNeverNullsKnownFields(t *testing.T) {
	db := newTestDB(t)
	creator := seedCreator(t, db, "testdev")
	repo := NewItemRepository(db)

	id := identity.ID("item-1")
	if _, err := repo.UpsertDiscovered(DiscoveredItem{
		Identity: id, CreatorID: creator.ID, Title: "Cool Game", URL: "https://testdev.itch.io/cool-game",
	}); err != nil {
		t.Fatalf("Seed upsert failed: %v", err)
	}

	rating := 4.5
	now := time.Now().UTC()
	err := repo.UpdateEnrichment(id, Enrichment{
		State: EnrichSettled, Rating: &rating, RatingCount: 20, CommentCount: 3,
		Description: "A dungeon crawler.", Tags: []string{"horror", "pixel-art"},
		EnrichedAt: now,
	})
	if err != nil {
		t.Fatalf("UpdateEnrichment failed: %v", err)
	}

	// A later observation with hidden ratings and no description must keep
	// the previously stored rating and description.
	hiddenUntil := now.Add(7 * 24 * time.Hour)
	err = repo.UpdateEnrichment(id, Enrichment{
		State: EnrichRatingHidden, HiddenUntil: &hiddenUntil, EnrichedAt: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("UpdateEnrichment failed: %v", err)
	}

	item, err := repo.GetItem(id)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if item.EnrichmentState != EnrichRatingHidden {
		t.Errorf("Expected state %s, got: %s", EnrichRatingHidden, item.EnrichmentState)
	}
	if item.Rating == nil || *item.Rating != 4.5 {
		t.Error("Hidden observation must not null the stored rating")
	}
	if item.RatingCount != 20 {
		t.Errorf("Hidden observation must not reset rating count, got: %d", item.RatingCount)
	}
	if item.Description == "" {
		t.Error("Empty description must not overwrite the stored one")
	}
	if len(item.Tags) != 2 {
		t.Errorf("Empty tags must not overwrite stored tags, got: %v", item.Tags)
	}
	if item.HiddenUntil == nil {
		t.Error("Expected hidden_until to be stored")
	}
}

func TestSelectForEnrichmentPriorityAndBudget(t *testing.T) {
	db := newTestDB(t)
	creator := seedCreator(t, db, "testdev")
	repo := NewItemRepository(db)

	now := time.Now().UTC()
	staleAfter := 7 * 24 * time.Hour
	rating := 4.0

	seed := func(id identity.ID) {
		t.Helper()
		if _, err := repo.UpsertDiscovered(DiscoveredItem{
			Identity: id, CreatorID: creator.ID, URL: "https://testdev.itch.io/" + string(id),
		}); err != nil {
			t.Fatalf("Seed failed: %v", err)
		}
	}

	// unvisited
	seed("unvisited-1")
	// settled but stale
	seed("stale-1")
	staleAt := now.Add(-8 * 24 * time.Hour)
	if err := repo.UpdateEnrichment("stale-1", Enrichment{State: EnrichSettled, Rating: &rating, RatingCount: 5, EnrichedAt: staleAt}); err != nil {
		t.Fatalf("UpdateEnrichment failed: %v", err)
	}
	// settled and fresh
	seed("fresh-1")
	if err := repo.UpdateEnrichment("fresh-1", Enrichment{State: EnrichSettled, Rating: &rating, RatingCount: 5, EnrichedAt: now}); err != nil {
		t.Fatalf("UpdateEnrichment failed: %v", err)
	}
	// hidden, cooldown elapsed
	seed("hidden-expired")
	expired := now.Add(-time.Hour)
	if err := repo.UpdateEnrichment("hidden-expired", Enrichment{State: EnrichRatingHidden, HiddenUntil: &expired, EnrichedAt: staleAt}); err != nil {
		t.Fatalf("UpdateEnrichment failed: %v", err)
	}
	// hidden, still cooling down
	seed("hidden-cooling")
	cooling := now.Add(time.Hour)
	if err := repo.UpdateEnrichment("hidden-cooling", Enrichment{State: EnrichRatingHidden, HiddenUntil: &cooling, EnrichedAt: now}); err != nil {
		t.Fatalf("UpdateEnrichment failed: %v", err)
	}

	selected, err := repo.SelectForEnrichment(now, staleAfter, 10)
	if err != nil {
		t.Fatalf("SelectForEnrichment failed: %v", err)
	}

	if len(selected) != 3 {
		ids := make([]identity.ID, 0, len(selected))
		for _, item := range selected {
			ids = append(ids, item.Identity)
		}
		t.Fatalf("Expected 3 due items, got %d: %v", len(selected), ids)
	}
	if selected[0].Identity != "unvisited-1" {
		t.Errorf("Expected unvisited first, got: %s", selected[0].Identity)
	}
	if selected[1].Identity != "stale-1" {
		t.Errorf("Expected stale second, got: %s", selected[1].Identity)
	}
	if selected[2].Identity != "hidden-expired" {
		t.Errorf("Expected expired-hidden third, got: %s", selected[2].Identity)
	}

	// Budget caps the batch, highest priority first.
	capped, err := repo.SelectForEnrichment(now, staleAfter, 1)
	if err != nil {
		t.Fatalf("SelectForEnrichment failed: %v", err)
	}
	if len(capped) != 1 || capped[0].Identity != "unvisited-1" {
		t.Errorf("Expected only the unvisited item within budget 1, got: %v", capped)
	}
}

func TestCreatorAggregates(t *testing.T) {
	db := newTestDB(t)
	creator := seedCreator(t, db, "testdev")
	repo := NewItemRepository(db)

	seed := func(id identity.ID, rating *float64, count int) {
		t.Helper()
		if _, err := repo.UpsertDiscovered(DiscoveredItem{
			Identity: id, CreatorID: creator.ID, URL: "https://testdev.itch.io/" + string(id),
		}); err != nil {
			t.Fatalf("Seed failed: %v", err)
		}
		if rating != nil {
			if err := repo.UpdateEnrichment(id, Enrichment{State: EnrichSettled, Rating: rating, RatingCount: count, EnrichedAt: time.Now()}); err != nil {
				t.Fatalf("Enrich failed: %v", err)
			}
		}
	}

	fiveStar := 5.0
	threeStar := 3.0
	seed("a", &fiveStar, 1)
	seed("b", &threeStar, 100)
	seed("c", nil, 0)

	aggregates, err := repo.GetCreatorAggregates()
	if err != nil {
		t.Fatalf("GetCreatorAggregates failed: %v", err)
	}
	if len(aggregates) != 1 {
		t.Fatalf("Expected 1 aggregate, got: %d", len(aggregates))
	}

	agg := aggregates[0]
	if agg.ItemCount != 3 || agg.RatedCount != 2 {
		t.Errorf("Expected 3 items / 2 rated, got: %d / %d", agg.ItemCount, agg.RatedCount)
	}
	if agg.TotalRatings != 101 {
		t.Errorf("Expected 101 total ratings, got: %d", agg.TotalRatings)
	}
	if agg.WeightedSum != 5.0*1+3.0*100 {
		t.Errorf("Expected weighted sum 305, got: %f", agg.WeightedSum)
	}
}

func TestScoreRepositoryUpsertAndRanking(t *testing.T) {
	db := newTestDB(t)
	alice := seedCreator(t, db, "alice")
	bob := seedCreator(t, db, "bob")
	nora := seedCreator(t, db, "nora")
	repo := NewScoreRepository(db)

	avgA, scoreA := 4.5, 4.2
	avgB, scoreB := 3.0, 3.1
	now := time.Now().UTC()

	scores := []CreatorScore{
		{CreatorID: alice.ID, ItemCount: 2, RatedCount: 2, TotalRatings: 40, AvgRating: &avgA, BayesianScore: &scoreA, CalculatedAt: now},
		{CreatorID: bob.ID, ItemCount: 5, RatedCount: 3, TotalRatings: 10, AvgRating: &avgB, BayesianScore: &scoreB, CalculatedAt: now},
		// No rated items: stored with NULL score, excluded from rankings.
		{CreatorID: nora.ID, ItemCount: 1, CalculatedAt: now},
	}
	for _, score := range scores {
		if err := repo.UpsertScore(score); err != nil {
			t.Fatalf("UpsertScore failed: %v", err)
		}
	}

	// Recompute overwrites wholesale.
	scoreA = 4.4
	if err := repo.UpsertScore(scores[0]); err != nil {
		t.Fatalf("UpsertScore replay failed: %v", err)
	}

	ranked, err := repo.GetTopRanked(10)
	if err != nil {
		t.Fatalf("GetTopRanked failed: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("Expected 2 ranked creators, got: %d", len(ranked))
	}
	if ranked[0].Name != "alice" || ranked[1].Name != "bob" {
		t.Errorf("Unexpected ranking order: %s, %s", ranked[0].Name, ranked[1].Name)
	}
	if ranked[0].BayesianScore != 4.4 {
		t.Errorf("Expected updated score 4.4, got: %f", ranked[0].BayesianScore)
	}

	count, err := repo.GetScoredCount()
	if err != nil {
		t.Fatalf("GetScoredCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 scored creators, got: %d", count)
	}
}
