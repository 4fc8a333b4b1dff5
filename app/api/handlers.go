package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"creatorank/app/database"
	"creatorank/app/pipeline"
	"creatorank/app/tasks"
)

const defaultRankingLimit = 50

func NewHandler(creatorRepo database.CreatorRepository, itemRepo database.ItemRepository,
	scoreRepo database.ScoreRepository, scheduler tasks.TaskSchedulerInterface, version string) *Handler {
	return &Handler{
		creatorRepo: creatorRepo,
		itemRepo:    itemRepo,
		scoreRepo:   scoreRepo,
		scheduler:   scheduler,
		version:     version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
	}

	if itemCount, err := h.itemRepo.GetItemCount(); err == nil {
		health["items"] = itemCount
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{}

	crawlCounts, err := h.creatorRepo.GetCrawlStateCounts()
	if err != nil {
		slog.Error("Database error", "operation", "crawl_state_counts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	crawl := map[string]int{}
	for state, count := range crawlCounts {
		crawl[string(state)] = count
	}
	stats["creators"] = crawl

	enrichCounts, err := h.itemRepo.GetEnrichmentStateCounts()
	if err != nil {
		slog.Error("Database error", "operation", "enrichment_state_counts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	enrichment := map[string]int{}
	for state, count := range enrichCounts {
		enrichment[string(state)] = count
	}
	stats["items"] = enrichment

	if itemCount, err := h.itemRepo.GetItemCount(); err == nil {
		stats["item_count"] = itemCount
	}
	if scoredCount, err := h.scoreRepo.GetScoredCount(); err == nil {
		stats["scored_creators"] = scoredCount
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetRankings(c *gin.Context) {
	limit := defaultRankingLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		limit = parsed
	}

	ranked, err := h.scoreRepo.GetTopRanked(limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_top_ranked", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	rankings := make([]map[string]interface{}, 0, len(ranked))
	for i, creator := range ranked {
		rankings = append(rankings, map[string]interface{}{
			"rank":           i + 1,
			"name":           creator.Name,
			"profile_url":    creator.ProfileURL,
			"item_count":     creator.ItemCount,
			"total_ratings":  creator.TotalRatings,
			"avg_rating":     creator.AvgRating,
			"bayesian_score": creator.BayesianScore,
		})
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"rankings": rankings,
		"total":    len(rankings),
	})
}

// APIRunStage enqueues one pipeline stage out of band of the scheduler tick.
func (h *Handler) APIRunStage(c *gin.Context, p *pipeline.Pipeline) {
	var task tasks.TaskInterface

	switch c.Param("stage") {
	case "discover":
		task = tasks.NewDiscoverTask(p)
	case "backfill":
		task = tasks.NewBackfillTask(p)
	case "enrich":
		task = tasks.NewEnrichTask(p)
	case "rescore":
		task = tasks.NewRescoreTask(p)
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown pipeline stage"})
		return
	}

	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing task", "type", string(task.GetType()), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"task": gin.H{
			"id":   task.GetID(),
			"type": task.GetType(),
		},
	})
}
