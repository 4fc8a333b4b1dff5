package database

import (
	"fmt"
)

var _ ScoreRepository = (*SQLScoreRepository)(nil)

// SQLScoreRepository handles database operations for creator scores. Scores
// are derived data: each scoring pass overwrites the full row.
type SQLScoreRepository struct {
	db *DB
}

func NewScoreRepository(db *DB) *SQLScoreRepository {
	return &SQLScoreRepository{db: db}
}

func (r *SQLScoreRepository) UpsertScore(score CreatorScore) error {
	var avgRating, bayesianScore any
	if score.AvgRating != nil {
		avgRating = *score.AvgRating
	}
	if score.BayesianScore != nil {
		bayesianScore = *score.BayesianScore
	}

	_, err := r.db.Exec(`
		INSERT INTO creator_scores (creator_id, item_count, rated_count, total_ratings, avg_rating, bayesian_score, calculated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (creator_id) DO UPDATE SET
			item_count = excluded.item_count,
			rated_count = excluded.rated_count,
			total_ratings = excluded.total_ratings,
			avg_rating = excluded.avg_rating,
			bayesian_score = excluded.bayesian_score,
			calculated_at = excluded.calculated_at
	`, score.CreatorID, score.ItemCount, score.RatedCount, score.TotalRatings,
		avgRating, bayesianScore, score.CalculatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert score: %w", err)
	}

	return nil
}

// GetTopRanked returns scored creators by descending Bayesian score.
// Creators without a score (no rated items) are excluded, not ranked at zero.
func (r *SQLScoreRepository) GetTopRanked(limit int) ([]RankedCreator, error) {
	rows, err := r.db.Query(`
		SELECT s.creator_id, c.name, c.profile_url, s.item_count, s.total_ratings,
		       s.avg_rating, s.bayesian_score
		FROM creator_scores s
		JOIN creators c ON c.id = s.creator_id
		WHERE s.bayesian_score IS NOT NULL
		ORDER BY s.bayesian_score DESC, c.name
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get rankings: %w", err)
	}
	defer rows.Close()

	var ranked []RankedCreator
	for rows.Next() {
		var rc RankedCreator
		err := rows.Scan(&rc.CreatorID, &rc.Name, &rc.ProfileURL, &rc.ItemCount,
			&rc.TotalRatings, &rc.AvgRating, &rc.BayesianScore)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ranking row: %w", err)
		}
		ranked = append(ranked, rc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ranking rows: %w", err)
	}

	return ranked, nil
}

func (r *SQLScoreRepository) GetScoredCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM creator_scores WHERE bayesian_score IS NOT NULL").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get scored count: %w", err)
	}
	return count, nil
}
