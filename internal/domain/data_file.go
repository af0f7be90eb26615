package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DataFile ingest lifecycle.
const (
	FileStatusPending = "pending"
	FileStatusReady   = "ready"
	FileStatusFailed  = "failed"
)

// DataFile is one ingested tabular upload. DatasetPath points at the
// canonical dataset JSON in object storage; Columns mirrors the
// inferred schema for listing without a storage round trip.
type DataFile struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	Project       *Project       `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProjectID;references:ID" json:"project,omitempty"`
	UploadedBy    uuid.UUID      `gorm:"type:uuid;not null;index" json:"uploaded_by"`
	OriginalName  string         `gorm:"not null;column:original_name" json:"original_name"`
	DatasetPath   string         `gorm:"column:dataset_path" json:"dataset_path,omitempty"`
	SubjectColumn string         `gorm:"column:subject_column" json:"subject_column,omitempty"`
	ValueColumn   string         `gorm:"column:value_column" json:"value_column,omitempty"`
	RowCount      int            `gorm:"column:row_count;not null;default:0" json:"row_count"`
	ColumnCount   int            `gorm:"column:column_count;not null;default:0" json:"column_count"`
	Columns       datatypes.JSON `gorm:"column:columns;type:jsonb" json:"columns,omitempty"`
	Status        string         `gorm:"not null;default:'pending';index" json:"status"`
	Error         string         `gorm:"column:error" json:"error,omitempty"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (DataFile) TableName() string { return "data_file" }
