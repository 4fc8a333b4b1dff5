package tasks

import (
	"context"
	"log/slog"

	"creatorank/app/pipeline"
)

type EnrichTask struct {
	Task
	pipeline *pipeline.Pipeline
}

func NewEnrichTask(p *pipeline.Pipeline) *EnrichTask {
	return &EnrichTask{
		Task:     NewTask(TaskTypeEnrich),
		pipeline: p,
	}
}

func (t *EnrichTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	report := t.pipeline.Enrich(ctx)

	// Failed items advance no state and stay selectable, so they roll over
	// into the next budget window rather than retrying here.
	slog.Info("Task completed",
		"type", "Enrich",
		"duration", t.GetDuration(),
		"items", report.Processed,
		"succeeded", report.Succeeded,
		"failed", report.Failed)

	return nil
}
