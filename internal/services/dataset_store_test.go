package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/mizukilab/kaiseki-backend/internal/dataset"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
	"github.com/mizukilab/kaiseki-backend/internal/platform/storage"
)

func localDatasetStore(t *testing.T) DatasetStoreService {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	store, err := storage.NewObjectStoreWithConfig(log, storage.Config{
		Mode:     storage.ModeLocal,
		LocalDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("object store: %v", err)
	}
	return NewDatasetStoreService(log, store)
}

func TestDatasetStoreRoundTrip(t *testing.T) {
	svc := localDatasetStore(t)
	ctx := context.Background()

	tbl, err := dataset.New([]dataset.Column{
		{Name: "科目", Type: dataset.TypeText},
		{Name: "値", Type: dataset.TypeNumber},
	}, "科目", "値")
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	if err := tbl.AppendRow(dataset.Text("売上"), dataset.Number(100)); err != nil {
		t.Fatalf("append: %v", err)
	}

	sessionID := uuid.New()
	path, err := svc.Save(ctx, sessionID, "step 1/result", tbl, "results")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(path, "sessions/"+sessionID.String()+"/results/") {
		t.Fatalf("unexpected key %q", path)
	}
	if strings.Contains(strings.TrimPrefix(path, "sessions/"+sessionID.String()+"/results/"), "/") {
		t.Fatalf("step name leaked a path separator into %q", path)
	}

	back, err := svc.Load(ctx, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if back.RowCount() != 1 || back.SubjectColumn != "科目" {
		t.Fatalf("round trip mismatch: rows=%d subject=%q", back.RowCount(), back.SubjectColumn)
	}

	if err := svc.DeleteSession(ctx, sessionID); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := svc.Load(ctx, path); err == nil {
		t.Fatalf("expected load to fail after delete")
	}
}
