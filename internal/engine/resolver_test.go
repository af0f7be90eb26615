package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestResolver_OriginalRequiresAPath(t *testing.T) {
	r := NewResolver(newMemStore(), "")
	_, err := r.Resolve(context.Background(), nil, OriginalRef())
	if err == nil || !IsReference(err) {
		t.Fatalf("expected ReferenceError, got %v", err)
	}
}

func TestResolver_StorageFailurePassesThrough(t *testing.T) {
	store := newMemStore()
	store.loadErr = fmt.Errorf("bucket unreachable")
	r := NewResolver(store, "files/original.json")
	_, err := r.Resolve(context.Background(), nil, OriginalRef())
	if err == nil {
		t.Fatalf("expected error")
	}
	if IsReference(err) {
		t.Fatalf("storage failures are not reference errors: %v", err)
	}
}

func TestResolver_PrefersInMemoryResult(t *testing.T) {
	tbl := salesTable(t)
	step := &Step{
		ID: uuid.New(), Order: 1, Type: StepFilter, Active: true,
		Status: StatusMaterialized,
		Result: &Result{Table: tbl, DatasetPath: "results/unreadable.json"},
	}
	store := newMemStore()
	store.loadErr = fmt.Errorf("should not be called")
	r := NewResolver(store, "files/original.json")

	got, err := r.Resolve(context.Background(), []*Step{step}, StepRef(step.ID))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != tbl {
		t.Fatalf("expected the in-memory table")
	}
}

func TestResolver_LoadsPersistedResultByPath(t *testing.T) {
	store := newMemStore()
	store.Put(t, "results/step_1.json", salesTable(t))
	step := &Step{
		ID: uuid.New(), Order: 1, Type: StepFilter, Active: true,
		Status: StatusMaterialized,
		Result: &Result{DatasetPath: "results/step_1.json"},
	}
	r := NewResolver(store, "files/original.json")

	got, err := r.Resolve(context.Background(), []*Step{step}, StepRef(step.ID))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.RowCount() != 2 {
		t.Fatalf("rows: %d", got.RowCount())
	}
}
