// Package scoring turns per-creator rating aggregates into a stable ranking
// score. The computation is deterministic and stateless: each pass recomputes
// every score from the current items, there is no incremental delta state.
package scoring

import (
	"math"
	"sort"
	"time"

	"creatorank/app/database"
)

type Scorer struct {
	minVotes int
}

// NewScorer builds a scorer with the given minimum-votes prior for the
// Bayesian blend.
func NewScorer(minVotes int) *Scorer {
	return &Scorer{minVotes: minVotes}
}

// Run scores every aggregate. The global average rating is computed once over
// all rated items system-wide and shared by the whole pass. Creators with no
// rated votes get nil averages and are excluded from ranked output by the
// store, never defaulted to zero.
func (s *Scorer) Run(aggregates []database.CreatorAggregate, now time.Time) []database.CreatorScore {
	var globalVotes int
	var globalWeightedSum float64
	for _, agg := range aggregates {
		globalVotes += agg.TotalRatings
		globalWeightedSum += agg.WeightedSum
	}

	globalAvg := 0.0
	if globalVotes > 0 {
		globalAvg = globalWeightedSum / float64(globalVotes)
	}

	scores := make([]database.CreatorScore, 0, len(aggregates))
	for _, agg := range aggregates {
		score := database.CreatorScore{
			CreatorID:    agg.CreatorID,
			ItemCount:    agg.ItemCount,
			RatedCount:   agg.RatedCount,
			TotalRatings: agg.TotalRatings,
			CalculatedAt: now,
		}

		if agg.TotalRatings > 0 {
			avg := round(agg.WeightedSum/float64(agg.TotalRatings), 2)
			bayesian := round(s.bayesian(agg.WeightedSum/float64(agg.TotalRatings), agg.TotalRatings, globalAvg), 4)
			score.AvgRating = &avg
			score.BayesianScore = &bayesian
		}

		scores = append(scores, score)
	}

	sort.Slice(scores, func(i, j int) bool {
		return scores[i].CreatorID < scores[j].CreatorID
	})

	return scores
}

// bayesian blends the creator's count-weighted average against the global
// average, trusting the creator's own average more as its vote count grows
// past the prior.
func (s *Scorer) bayesian(avgRating float64, totalRatings int, globalAvg float64) float64 {
	votes := float64(totalRatings)
	prior := float64(s.minVotes)

	return (votes/(votes+prior))*avgRating + (prior/(votes+prior))*globalAvg
}

func round(value float64, decimals int) float64 {
	factor := math.Pow10(decimals)
	return math.Round(value*factor) / factor
}
