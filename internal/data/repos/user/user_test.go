package user

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/mizukilab/kaiseki-backend/internal/data/repos/testutil"
	types "github.com/mizukilab/kaiseki-backend/internal/domain"
	"github.com/mizukilab/kaiseki-backend/internal/platform/dbctx"
)

func TestUserRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	repo := NewUserRepo(db, testutil.Logger(t))
	dbc := dbctx.WithTx(context.Background(), tx)

	created, err := repo.Create(dbc, []*types.User{
		{
			ID:        uuid.New(),
			Email:     "userrepo@example.com",
			Password:  "pw",
			FirstName: "A",
			LastName:  "B",
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("Create: expected 1 user, got %d", len(created))
	}

	gotByIDs, err := repo.GetByIDs(dbc, []uuid.UUID{created[0].ID})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(gotByIDs) != 1 || gotByIDs[0].ID != created[0].ID {
		t.Fatalf("GetByIDs: unexpected result: %+v", gotByIDs)
	}

	byEmail, err := repo.GetByEmail(dbc, created[0].Email)
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if byEmail == nil || byEmail.ID != created[0].ID {
		t.Fatalf("GetByEmail: unexpected result: %+v", byEmail)
	}

	missing, err := repo.GetByEmail(dbc, "does-not-exist@example.com")
	if err != nil {
		t.Fatalf("GetByEmail (missing): %v", err)
	}
	if missing != nil {
		t.Fatalf("GetByEmail (missing): expected nil, got %+v", missing)
	}

	exists, err := repo.EmailExists(dbc, created[0].Email)
	if err != nil {
		t.Fatalf("EmailExists: %v", err)
	}
	if !exists {
		t.Fatalf("EmailExists: expected true")
	}

	if err := repo.UpdateName(dbc, created[0].ID, "New", "Name"); err != nil {
		t.Fatalf("UpdateName: %v", err)
	}
	if err := repo.UpdatePassword(dbc, created[0].ID, "rehashed"); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}

	after, err := repo.GetByIDs(dbc, []uuid.UUID{created[0].ID})
	if err != nil {
		t.Fatalf("GetByIDs (after update): %v", err)
	}
	if len(after) != 1 || after[0].FirstName != "New" || after[0].LastName != "Name" {
		t.Fatalf("GetByIDs (after update): name not updated: %+v", after[0])
	}
	if after[0].Password != "rehashed" {
		t.Fatalf("GetByIDs (after update): password not updated")
	}
}
