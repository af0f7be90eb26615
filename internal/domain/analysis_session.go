package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AnalysisSession owns an ordered step pipeline over one ingested
// dataset, plus the session's snapshot history and chat log.
type AnalysisSession struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	Project    *Project       `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProjectID;references:ID" json:"project,omitempty"`
	DataFileID uuid.UUID      `gorm:"type:uuid;not null;index" json:"data_file_id"`
	DataFile   *DataFile      `gorm:"constraint:OnDelete:CASCADE;foreignKey:DataFileID;references:ID" json:"data_file,omitempty"`
	CreatedBy  uuid.UUID      `gorm:"type:uuid;not null;index" json:"created_by"`
	Name       string         `gorm:"not null;column:name" json:"name"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (AnalysisSession) TableName() string { return "analysis_session" }
