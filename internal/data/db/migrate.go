package db

import (
	types "github.com/mizukilab/kaiseki-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// =========================
		// Identity + auth
		// =========================
		&types.User{},
		&types.UserToken{},

		// =========================
		// Projects + membership
		// =========================
		&types.Project{},
		&types.ProjectMember{},

		// =========================
		// Data files (uploads + ingest)
		// =========================
		&types.DataFile{},
		&types.IngestJob{},

		// =========================
		// Analysis (sessions, steps, history, chat)
		// =========================
		&types.AnalysisSession{},
		&types.AnalysisStep{},
		&types.SessionSnapshot{},
		&types.ChatMessage{},
	)
}
