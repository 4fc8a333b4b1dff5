package tasks

import (
	"context"
	"log/slog"

	"creatorank/app/pipeline"
)

type BackfillTask struct {
	Task
	pipeline *pipeline.Pipeline
}

func NewBackfillTask(p *pipeline.Pipeline) *BackfillTask {
	return &BackfillTask{
		Task:     NewTask(TaskTypeBackfill),
		pipeline: p,
	}
}

func (t *BackfillTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	report := t.pipeline.Backfill(ctx)

	// Aborted walks stay retryable in the store, so a partial run is not a
	// task failure; the next tick picks the stragglers up again.
	slog.Info("Task completed",
		"type", "Backfill",
		"duration", t.GetDuration(),
		"creators", report.Processed,
		"succeeded", report.Succeeded,
		"failed", report.Failed)

	return nil
}
