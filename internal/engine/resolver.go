package engine

import (
	"context"
	"fmt"

	"github.com/mizukilab/kaiseki-backend/internal/dataset"
)

// Resolver turns a step's data source reference into a concrete
// dataset. It is read-only: it never mutates the step list and loads
// stored datasets through the storage collaborator. Returned tables
// must be treated as read-only by callers.
type Resolver struct {
	store        DatasetStore
	originalPath string
}

func NewResolver(store DatasetStore, originalPath string) *Resolver {
	return &Resolver{store: store, originalPath: originalPath}
}

// Resolve returns the dataset behind ref. Reference failures (unknown
// or deleted target, inactive step, summary step, missing
// materialized result) surface as *ReferenceError; storage failures
// pass through wrapped.
func (r *Resolver) Resolve(ctx context.Context, steps []*Step, ref SourceRef) (*dataset.Table, error) {
	switch ref.Kind {
	case SourceOriginal:
		if r.originalPath == "" {
			return nil, referencef(string(SourceOriginal), "session has no original dataset")
		}
		t, err := r.store.Load(ctx, r.originalPath)
		if err != nil {
			return nil, fmt.Errorf("load original dataset: %w", err)
		}
		return t, nil

	case SourceStep:
		display := FormatSourceRef(ref, steps)
		target := findByID(steps, ref.StepID)
		if target == nil {
			return nil, referencef(display, "referenced step no longer exists")
		}
		if !target.Active {
			return nil, referencef(display, "referenced step is inactive")
		}
		if target.Type == StepSummary {
			return nil, referencef(display, "summary steps produce no dataset")
		}
		if !target.Result.HasDataset() {
			return nil, referencef(display, "referenced step has no materialized result")
		}
		if target.Result.Table != nil {
			return target.Result.Table, nil
		}
		t, err := r.store.Load(ctx, target.Result.DatasetPath)
		if err != nil {
			return nil, fmt.Errorf("load result of %s: %w", display, err)
		}
		return t, nil

	default:
		return nil, referencef(string(ref.Kind), "unknown data source kind")
	}
}
