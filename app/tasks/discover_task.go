package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"creatorank/app/pipeline"
)

type DiscoverTask struct {
	Task
	pipeline *pipeline.Pipeline
}

func NewDiscoverTask(p *pipeline.Pipeline) *DiscoverTask {
	return &DiscoverTask{
		Task:     NewTask(TaskTypeDiscover),
		pipeline: p,
	}
}

func (t *DiscoverTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	report := t.pipeline.Discover(ctx)

	slog.Info("Task completed",
		"type", "Discover",
		"duration", t.GetDuration(),
		"sources", report.Processed,
		"succeeded", report.Succeeded,
		"failed", report.Failed)

	if report.Processed > 0 && report.Succeeded == 0 {
		return fmt.Errorf("every discovery source failed: %s", report.Failures[0].Reason)
	}

	return nil
}
