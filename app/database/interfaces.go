package database

import (
	"time"

	"creatorank/app/identity"
)

type CreatorRepository interface {
	UpsertCreator(name, profileURL string) (*Creator, bool, error)
	GetCreatorByName(name string) (*Creator, error)
	GetCreatorByID(id string) (*Creator, error)
	GetCreatorsForBackfill() ([]Creator, error)
	SetCrawlState(id string, state CrawlState) error
	RecordCrawlError(id string, reason string, at time.Time) error
	GetCrawlStateCounts() (map[CrawlState]int, error)
}

type ItemRepository interface {
	UpsertDiscovered(item DiscoveredItem) (bool, error)
	UpdateEnrichment(id identity.ID, enrichment Enrichment) error
	GetItem(id identity.ID) (*Item, error)
	GetItemsByCreator(creatorID string) ([]Item, error)
	SelectForEnrichment(now time.Time, staleAfter time.Duration, budget int) ([]Item, error)
	GetCreatorAggregates() ([]CreatorAggregate, error)
	GetEnrichmentStateCounts() (map[EnrichmentState]int, error)
	GetItemCount() (int, error)
}

type ScoreRepository interface {
	UpsertScore(score CreatorScore) error
	GetTopRanked(limit int) ([]RankedCreator, error)
	GetScoredCount() (int, error)
}
