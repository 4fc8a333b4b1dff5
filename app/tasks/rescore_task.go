package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"creatorank/app/pipeline"
)

type RescoreTask struct {
	Task
	pipeline *pipeline.Pipeline
}

func NewRescoreTask(p *pipeline.Pipeline) *RescoreTask {
	return &RescoreTask{
		Task:     NewTask(TaskTypeRescore),
		pipeline: p,
	}
}

func (t *RescoreTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	report := t.pipeline.Rescore(ctx)

	slog.Info("Task completed",
		"type", "Rescore",
		"duration", t.GetDuration(),
		"creators", report.Processed,
		"succeeded", report.Succeeded,
		"failed", report.Failed)

	if report.Failed > 0 {
		return fmt.Errorf("failed to store %d creator scores: %s", report.Failed, report.Failures[0].Reason)
	}

	return nil
}
