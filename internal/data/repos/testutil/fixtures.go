package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	types "github.com/mizukilab/kaiseki-backend/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.User {
	tb.Helper()
	u := &types.User{
		ID:        uuid.New(),
		Email:     email,
		Password:  "pw",
		FirstName: "A",
		LastName:  "B",
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedProject(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) *types.Project {
	tb.Helper()
	p := &types.Project{
		ID:          uuid.New(),
		OwnerUserID: ownerID,
		Name:        "project",
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed project: %v", err)
	}
	m := &types.ProjectMember{
		ID:        uuid.New(),
		ProjectID: p.ID,
		UserID:    ownerID,
		Role:      types.RoleOwner,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed project owner membership: %v", err)
	}
	return p
}

func SeedDataFile(tb testing.TB, ctx context.Context, tx *gorm.DB, projectID, uploadedBy uuid.UUID) *types.DataFile {
	tb.Helper()
	f := &types.DataFile{
		ID:           uuid.New(),
		ProjectID:    projectID,
		UploadedBy:   uploadedBy,
		OriginalName: "data.csv",
		DatasetPath:  "files/" + uuid.NewString() + ".json",
		Status:       types.FileStatusReady,
		Columns:      datatypes.JSON([]byte(`[]`)),
	}
	if err := tx.WithContext(ctx).Create(f).Error; err != nil {
		tb.Fatalf("seed data file: %v", err)
	}
	return f
}

func SeedSession(tb testing.TB, ctx context.Context, tx *gorm.DB, projectID, fileID, createdBy uuid.UUID) *types.AnalysisSession {
	tb.Helper()
	s := &types.AnalysisSession{
		ID:         uuid.New(),
		ProjectID:  projectID,
		DataFileID: fileID,
		CreatedBy:  createdBy,
		Name:       "session",
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed session: %v", err)
	}
	return s
}

func SeedStep(tb testing.TB, ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, order int, stepType string) *types.AnalysisStep {
	tb.Helper()
	st := &types.AnalysisStep{
		ID:         uuid.New(),
		SessionID:  sessionID,
		Order:      order,
		Name:       stepType,
		Type:       stepType,
		SourceKind: "original",
		Config:     datatypes.JSON([]byte(`{}`)),
		Active:     true,
		Status:     "created",
	}
	if err := tx.WithContext(ctx).Create(st).Error; err != nil {
		tb.Fatalf("seed step: %v", err)
	}
	return st
}
