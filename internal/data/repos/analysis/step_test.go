package analysis

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/mizukilab/kaiseki-backend/internal/data/repos/testutil"
	types "github.com/mizukilab/kaiseki-backend/internal/domain"
	"github.com/mizukilab/kaiseki-backend/internal/platform/dbctx"
)

func seedSessionTree(t *testing.T, dbc dbctx.Context) *types.AnalysisSession {
	t.Helper()
	owner := testutil.SeedUser(t, dbc.Ctx, dbc.Tx, uuid.NewString()+"@example.com")
	proj := testutil.SeedProject(t, dbc.Ctx, dbc.Tx, owner.ID)
	file := testutil.SeedDataFile(t, dbc.Ctx, dbc.Tx, proj.ID, owner.ID)
	return testutil.SeedSession(t, dbc.Ctx, dbc.Tx, proj.ID, file.ID, owner.ID)
}

func TestAnalysisStepRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	repo := NewAnalysisStepRepo(db, testutil.Logger(t))
	dbc := dbctx.WithTx(context.Background(), tx)
	sess := seedSessionTree(t, dbc)

	maxOrder, err := repo.MaxOrder(dbc, sess.ID)
	if err != nil {
		t.Fatalf("MaxOrder (empty): %v", err)
	}
	if maxOrder != -1 {
		t.Fatalf("MaxOrder (empty): expected -1, got %d", maxOrder)
	}

	mk := func(order int, stepType string) *types.AnalysisStep {
		return &types.AnalysisStep{
			ID:         uuid.New(),
			SessionID:  sess.ID,
			Order:      order,
			Name:       stepType,
			Type:       stepType,
			SourceKind: "original",
			Config:     datatypes.JSON([]byte(`{}`)),
			Active:     true,
			Status:     "created",
		}
	}

	created, err := repo.Create(dbc, []*types.AnalysisStep{mk(0, "filter"), mk(1, "aggregate")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("Create: expected 2 steps, got %d", len(created))
	}

	// (session_id, step_order) is unique.
	if _, err := repo.Create(dbc, []*types.AnalysisStep{mk(1, "transform")}); err == nil {
		t.Fatalf("Create (duplicate order): expected unique violation")
	}
	// A failed insert poisons the surrounding test transaction on
	// postgres, so run the remaining assertions in a fresh one.
	tx = testutil.Tx(t, db)
	dbc = dbctx.WithTx(context.Background(), tx)
	sess = seedSessionTree(t, dbc)
	if _, err = repo.Create(dbc, []*types.AnalysisStep{mk(0, "filter"), mk(1, "aggregate")}); err != nil {
		t.Fatalf("Create (fresh tx): %v", err)
	}

	listed, err := repo.ListBySession(dbc, sess.ID)
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(listed) != 2 || listed[0].Order != 0 || listed[1].Order != 1 {
		t.Fatalf("ListBySession: expected orders [0 1], got %+v", listed)
	}

	maxOrder, err = repo.MaxOrder(dbc, sess.ID)
	if err != nil {
		t.Fatalf("MaxOrder: %v", err)
	}
	if maxOrder != 1 {
		t.Fatalf("MaxOrder: expected 1, got %d", maxOrder)
	}

	if err := repo.UpdateFields(dbc, listed[0].ID, map[string]interface{}{
		"status": "executed",
		"result": datatypes.JSON([]byte(`{"row_count":1}`)),
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, err := repo.GetByIDs(dbc, []uuid.UUID{listed[0].ID})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(got) != 1 || got[0].Status != "executed" {
		t.Fatalf("GetByIDs: status not updated: %+v", got)
	}

	// Deletes are physical, so a deleted order can be filled again.
	if err := repo.Delete(dbc, listed[1].ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	listed, err = repo.ListBySession(dbc, sess.ID)
	if err != nil {
		t.Fatalf("ListBySession (after delete): %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("ListBySession (after delete): expected 1 step, got %d", len(listed))
	}
	if _, err := repo.Create(dbc, []*types.AnalysisStep{mk(1, "transform")}); err != nil {
		t.Fatalf("Create (refill deleted order): %v", err)
	}

	if err := repo.DeleteBySession(dbc, sess.ID); err != nil {
		t.Fatalf("DeleteBySession: %v", err)
	}
	listed, err = repo.ListBySession(dbc, sess.ID)
	if err != nil {
		t.Fatalf("ListBySession (after wipe): %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("ListBySession (after wipe): expected 0 steps, got %d", len(listed))
	}
}
