package database

import (
	"time"

	"creatorank/app/identity"
)

// CrawlState tracks the backfill progress of a creator's publication history.
type CrawlState string

const (
	CrawlNotStarted CrawlState = "not_started"
	CrawlInProgress CrawlState = "in_progress"
	CrawlComplete   CrawlState = "complete"
)

// EnrichmentState is the persisted staleness state of an item. Staleness of
// settled items is derived from last_enriched at query time, not stored.
type EnrichmentState string

const (
	EnrichUnvisited    EnrichmentState = "unvisited"
	EnrichSettled      EnrichmentState = "settled"
	EnrichRatingHidden EnrichmentState = "ratings_hidden"
)

// Creator is a tracked creator. Never deleted; crawl state is mutated only by
// the crawl cursor.
type Creator struct {
	ID           string
	Name         string
	ProfileURL   string
	CrawlState   CrawlState
	CrawlError   string
	CrawlErrorAt *time.Time
	FirstSeen    time.Time
	UpdatedAt    time.Time
}

// Item is a tracked publication. Identity is derived from the canonical URL;
// the slug survives only inside Title/URL as display attributes.
type Item struct {
	Identity        identity.ID
	CreatorID       string
	Title           string
	URL             string
	PublishDate     *time.Time
	Rating          *float64
	RatingCount     int
	CommentCount    int
	Description     string
	Tags            []string
	EnrichmentState EnrichmentState
	HiddenUntil     *time.Time
	LastEnriched    *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DiscoveredItem is the partial record known at discovery time.
type DiscoveredItem struct {
	Identity    identity.ID
	CreatorID   string
	Title       string
	URL         string
	PublishDate *time.Time
}

// Enrichment is the partial record produced by one enrichment fetch. Nil
// Rating and empty Description/Tags mean "not observed", never "clear".
type Enrichment struct {
	State        EnrichmentState
	Rating       *float64
	RatingCount  int
	CommentCount int
	Description  string
	Tags         []string
	HiddenUntil  *time.Time
	EnrichedAt   time.Time
}

// CreatorAggregate is the per-creator rating rollup the scorer consumes.
type CreatorAggregate struct {
	CreatorID    string
	ItemCount    int
	RatedCount   int
	TotalRatings int
	WeightedSum  float64
}

// CreatorScore is one scoring-pass result for a creator. Nil BayesianScore
// means the creator has no rated items and is excluded from rankings.
type CreatorScore struct {
	CreatorID     string
	ItemCount     int
	RatedCount    int
	TotalRatings  int
	AvgRating     *float64
	BayesianScore *float64
	CalculatedAt  time.Time
}

// RankedCreator is a scored creator joined with its display attributes.
type RankedCreator struct {
	CreatorID     string
	Name          string
	ProfileURL    string
	ItemCount     int
	TotalRatings  int
	AvgRating     float64
	BayesianScore float64
}
