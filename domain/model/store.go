package model

import "context"

// RunStore persists pipeline runs.
type RunStore interface {
	// Save inserts or replaces a run and its step statuses.
	Save(ctx context.Context, run Run) error
	// List returns runs newest first. An empty model lists every model;
	// limit <= 0 means no limit.
	List(ctx context.Context, model string, limit int) ([]Run, error)
	// Last returns the most recent run for model.
	Last(ctx context.Context, model string) (Run, error)
}
