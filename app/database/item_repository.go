package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"creatorank/app/identity"
)

// ErrIdentityConflict is returned when an upsert would reassign an item
// identity to a different creator. The record is skipped, never rewritten.
var ErrIdentityConflict = errors.New("item identity already owned by another creator")

var _ ItemRepository = (*SQLItemRepository)(nil)

// SQLItemRepository handles database operations for items. Writes for the
// same identity are serialized through a striped lock so at most one upsert
// per identity is in flight.
type SQLItemRepository struct {
	db    *DB
	locks [64]sync.Mutex
}

func NewItemRepository(db *DB) *SQLItemRepository {
	return &SQLItemRepository{db: db}
}

func (r *SQLItemRepository) lockFor(id identity.ID) *sync.Mutex {
	var sum byte
	for i := 0; i < len(id); i++ {
		sum += id[i]
	}
	return &r.locks[int(sum)%len(r.locks)]
}

// UpsertDiscovered records a discovered item, creating the skeleton row on
// first sight and filling in title/publish date as they become known. Fields
// the caller did not provide are left untouched; replaying an identical
// upsert reports false (noop).
func (r *SQLItemRepository) UpsertDiscovered(item DiscoveredItem) (bool, error) {
	lock := r.lockFor(item.Identity)
	lock.Lock()
	defer lock.Unlock()

	existing, err := r.GetItem(item.Identity)
	if err != nil {
		return false, fmt.Errorf("failed to check existing item: %w", err)
	}

	if existing == nil {
		var publishDate any
		if item.PublishDate != nil {
			publishDate = item.PublishDate.UTC()
		}
		_, err := r.db.Exec(`
			INSERT INTO items (identity, creator_id, title, url, publish_date)
			VALUES (?, ?, ?, ?, ?)
		`, string(item.Identity), item.CreatorID, item.Title, item.URL, publishDate)
		if err != nil {
			return false, fmt.Errorf("failed to insert item: %w", err)
		}
		return true, nil
	}

	if existing.CreatorID != item.CreatorID {
		return false, fmt.Errorf("%w: identity %s held by creator %s, rediscovered under %s",
			ErrIdentityConflict, item.Identity, existing.CreatorID, item.CreatorID)
	}

	newTitle := existing.Title
	if item.Title != "" {
		newTitle = item.Title
	}
	newPublish := existing.PublishDate
	if item.PublishDate != nil {
		newPublish = item.PublishDate
	}

	if newTitle == existing.Title && equalTimePtr(newPublish, existing.PublishDate) {
		return false, nil
	}

	var publishDate any
	if newPublish != nil {
		publishDate = newPublish.UTC()
	}
	_, err = r.db.Exec(`
		UPDATE items
		SET title = ?, publish_date = ?, updated_at = CURRENT_TIMESTAMP
		WHERE identity = ?
	`, newTitle, publishDate, string(item.Identity))
	if err != nil {
		return false, fmt.Errorf("failed to update item: %w", err)
	}

	return true, nil
}

// UpdateEnrichment applies one enrichment observation. Only enrichment
// columns are written; a nil rating or empty description/tags never nulls a
// previously stored value.
func (r *SQLItemRepository) UpdateEnrichment(id identity.ID, enrichment Enrichment) error {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	var rating any
	if enrichment.Rating != nil {
		rating = *enrichment.Rating
	}
	var hiddenUntil any
	if enrichment.HiddenUntil != nil {
		hiddenUntil = enrichment.HiddenUntil.UTC()
	}

	tagsJSON := "[]"
	if len(enrichment.Tags) > 0 {
		encoded, err := json.Marshal(enrichment.Tags)
		if err != nil {
			return fmt.Errorf("failed to encode tags: %w", err)
		}
		tagsJSON = string(encoded)
	}

	result, err := r.db.Exec(`
		UPDATE items
		SET rating = COALESCE(?, rating),
		    rating_count = CASE WHEN ? IS NOT NULL THEN ? ELSE rating_count END,
		    comment_count = ?,
		    description = CASE WHEN ? != '' THEN ? ELSE description END,
		    tags = CASE WHEN ? != '[]' THEN ? ELSE tags END,
		    enrichment_state = ?,
		    hidden_until = ?,
		    last_enriched = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE identity = ?
	`,
		rating,
		rating, enrichment.RatingCount,
		enrichment.CommentCount,
		enrichment.Description, enrichment.Description,
		tagsJSON, tagsJSON,
		enrichment.State,
		hiddenUntil,
		enrichment.EnrichedAt.UTC(),
		string(id),
	)
	if err != nil {
		return fmt.Errorf("failed to update enrichment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check enrichment update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no item with identity %s", id)
	}

	return nil
}

const itemColumns = `identity, creator_id, title, url, publish_date, rating, rating_count,
	comment_count, description, tags, enrichment_state, hidden_until, last_enriched,
	created_at, updated_at`

func (r *SQLItemRepository) GetItem(id identity.ID) (*Item, error) {
	row := r.db.QueryRow(`SELECT `+itemColumns+` FROM items WHERE identity = ?`, string(id))

	item, err := scanItem(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

func (r *SQLItemRepository) GetItemsByCreator(creatorID string) ([]Item, error) {
	rows, err := r.db.Query(`
		SELECT `+itemColumns+`
		FROM items
		WHERE creator_id = ?
		ORDER BY COALESCE(publish_date, created_at) DESC
	`, creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get items by creator: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// SelectForEnrichment returns up to budget items due for an enrichment fetch
// in priority order: unvisited first, then stale settled items, then hidden
// items whose cooldown has elapsed.
func (r *SQLItemRepository) SelectForEnrichment(now time.Time, staleAfter time.Duration, budget int) ([]Item, error) {
	if budget <= 0 {
		return nil, nil
	}

	var selected []Item

	queries := []struct {
		where string
		order string
		args  []any
	}{
		{
			where: "enrichment_state = ?",
			order: "created_at",
			args:  []any{EnrichUnvisited},
		},
		{
			where: "enrichment_state = ? AND last_enriched IS NOT NULL AND last_enriched <= ?",
			order: "last_enriched",
			args:  []any{EnrichSettled, now.Add(-staleAfter).UTC()},
		},
		{
			where: "enrichment_state = ? AND hidden_until IS NOT NULL AND hidden_until <= ?",
			order: "hidden_until",
			args:  []any{EnrichRatingHidden, now.UTC()},
		},
	}

	for _, q := range queries {
		remaining := budget - len(selected)
		if remaining <= 0 {
			break
		}

		args := append(append([]any{}, q.args...), remaining)
		rows, err := r.db.Query(`
			SELECT `+itemColumns+`
			FROM items
			WHERE `+q.where+`
			ORDER BY `+q.order+`
			LIMIT ?
		`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to select items for enrichment: %w", err)
		}

		items, err := collectItems(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		selected = append(selected, items...)
	}

	return selected, nil
}

// GetCreatorAggregates rolls up rating signals per creator. The weighted sum
// is Σ(rating × rating_count) over rated items, the numerator of the
// count-weighted average.
func (r *SQLItemRepository) GetCreatorAggregates() ([]CreatorAggregate, error) {
	rows, err := r.db.Query(`
		SELECT creator_id,
		       COUNT(*),
		       SUM(CASE WHEN rating IS NOT NULL THEN 1 ELSE 0 END),
		       COALESCE(SUM(CASE WHEN rating IS NOT NULL THEN rating_count ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN rating IS NOT NULL THEN rating * rating_count ELSE 0 END), 0)
		FROM items
		GROUP BY creator_id
		ORDER BY creator_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get creator aggregates: %w", err)
	}
	defer rows.Close()

	var aggregates []CreatorAggregate
	for rows.Next() {
		var agg CreatorAggregate
		err := rows.Scan(&agg.CreatorID, &agg.ItemCount, &agg.RatedCount, &agg.TotalRatings, &agg.WeightedSum)
		if err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}
		aggregates = append(aggregates, agg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating aggregate rows: %w", err)
	}

	return aggregates, nil
}

func (r *SQLItemRepository) GetEnrichmentStateCounts() (map[EnrichmentState]int, error) {
	rows, err := r.db.Query("SELECT enrichment_state, COUNT(*) FROM items GROUP BY enrichment_state")
	if err != nil {
		return nil, fmt.Errorf("failed to get enrichment state counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[EnrichmentState]int)
	for rows.Next() {
		var state EnrichmentState
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan enrichment state count: %w", err)
		}
		counts[state] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enrichment state counts: %w", err)
	}

	return counts, nil
}

func (r *SQLItemRepository) GetItemCount() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM items").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get item count: %w", err)
	}
	return count, nil
}

func scanItem(scan func(...any) error) (*Item, error) {
	var item Item
	var id string
	var publishDate, hiddenUntil, lastEnriched sql.NullTime
	var rating sql.NullFloat64
	var tagsJSON string

	err := scan(
		&id, &item.CreatorID, &item.Title, &item.URL, &publishDate, &rating,
		&item.RatingCount, &item.CommentCount, &item.Description, &tagsJSON,
		&item.EnrichmentState, &hiddenUntil, &lastEnriched,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Identity = identity.ID(id)
	if publishDate.Valid {
		item.PublishDate = &publishDate.Time
	}
	if rating.Valid {
		item.Rating = &rating.Float64
	}
	if hiddenUntil.Valid {
		item.HiddenUntil = &hiddenUntil.Time
	}
	if lastEnriched.Valid {
		item.LastEnriched = &lastEnriched.Time
	}
	if tagsJSON != "" && tagsJSON != "[]" {
		if err := json.Unmarshal([]byte(tagsJSON), &item.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags: %w", err)
		}
	}

	return &item, nil
}

func collectItems(rows *sql.Rows) ([]Item, error) {
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
