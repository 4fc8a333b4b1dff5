package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ CreatorRepository = (*SQLCreatorRepository)(nil)

// SQLCreatorRepository handles database operations for creators.
type SQLCreatorRepository struct {
	db *DB
}

func NewCreatorRepository(db *DB) *SQLCreatorRepository {
	return &SQLCreatorRepository{db: db}
}

// UpsertCreator inserts a creator if the name is unknown and returns the
// stored row. The boolean reports whether a new row was created. Replaying
// the same upsert is a no-op; an existing creator's profile URL and crawl
// state are never overwritten by rediscovery.
func (r *SQLCreatorRepository) UpsertCreator(name, profileURL string) (*Creator, bool, error) {
	existing, err := r.GetCreatorByName(name)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check existing creator: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	id := uuid.NewString()
	_, err = r.db.Exec(`
		INSERT INTO creators (id, name, profile_url)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO NOTHING
	`, id, name, profileURL)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert creator: %w", err)
	}

	// Re-read: a concurrent discover may have won the conflict.
	creator, err := r.GetCreatorByName(name)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read back creator: %w", err)
	}
	if creator == nil {
		return nil, false, fmt.Errorf("creator %s missing after insert", name)
	}

	return creator, creator.ID == id, nil
}

func (r *SQLCreatorRepository) GetCreatorByName(name string) (*Creator, error) {
	return r.getCreator("name = ?", name)
}

func (r *SQLCreatorRepository) GetCreatorByID(id string) (*Creator, error) {
	return r.getCreator("id = ?", id)
}

func (r *SQLCreatorRepository) getCreator(where string, arg any) (*Creator, error) {
	var creator Creator
	var errorAt sql.NullTime

	err := r.db.QueryRow(`
		SELECT id, name, profile_url, crawl_state, crawl_error, crawl_error_at, first_seen, updated_at
		FROM creators
		WHERE `+where, arg).Scan(
		&creator.ID, &creator.Name, &creator.ProfileURL, &creator.CrawlState,
		&creator.CrawlError, &errorAt, &creator.FirstSeen, &creator.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get creator: %w", err)
	}

	if errorAt.Valid {
		creator.CrawlErrorAt = &errorAt.Time
	}

	return &creator, nil
}

// GetCreatorsForBackfill returns creators whose history walk has not
// completed, oldest first. Includes in_progress rows left behind by aborted
// runs so they are retried.
func (r *SQLCreatorRepository) GetCreatorsForBackfill() ([]Creator, error) {
	rows, err := r.db.Query(`
		SELECT id, name, profile_url, crawl_state, crawl_error, crawl_error_at, first_seen, updated_at
		FROM creators
		WHERE crawl_state != ?
		ORDER BY first_seen
	`, CrawlComplete)
	if err != nil {
		return nil, fmt.Errorf("failed to get creators for backfill: %w", err)
	}
	defer rows.Close()

	var creators []Creator
	for rows.Next() {
		var creator Creator
		var errorAt sql.NullTime
		err := rows.Scan(
			&creator.ID, &creator.Name, &creator.ProfileURL, &creator.CrawlState,
			&creator.CrawlError, &errorAt, &creator.FirstSeen, &creator.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan creator row: %w", err)
		}
		if errorAt.Valid {
			creator.CrawlErrorAt = &errorAt.Time
		}
		creators = append(creators, creator)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating creator rows: %w", err)
	}

	return creators, nil
}

func (r *SQLCreatorRepository) SetCrawlState(id string, state CrawlState) error {
	_, err := r.db.Exec(`
		UPDATE creators
		SET crawl_state = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, state, id)
	if err != nil {
		return fmt.Errorf("failed to set crawl state: %w", err)
	}
	return nil
}

// RecordCrawlError stores the most recent crawl failure for diagnostics. It
// does not touch crawl_state; the cursor decides that separately.
func (r *SQLCreatorRepository) RecordCrawlError(id string, reason string, at time.Time) error {
	_, err := r.db.Exec(`
		UPDATE creators
		SET crawl_error = ?, crawl_error_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, reason, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to record crawl error: %w", err)
	}
	return nil
}

func (r *SQLCreatorRepository) GetCrawlStateCounts() (map[CrawlState]int, error) {
	rows, err := r.db.Query("SELECT crawl_state, COUNT(*) FROM creators GROUP BY crawl_state")
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl state counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[CrawlState]int)
	for rows.Next() {
		var state CrawlState
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan crawl state count: %w", err)
		}
		counts[state] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating crawl state counts: %w", err)
	}

	return counts, nil
}
