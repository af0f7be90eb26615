package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AnalysisStep is the persisted form of one pipeline step. Deletion is
// physical: a deleted step leaves a gap in the order sequence and any
// reference to it dangles. SourceKind is "original" or "step";
// SourceStepID carries the stable target id for the step form.
type AnalysisStep struct {
	ID           uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID    uuid.UUID        `gorm:"type:uuid;not null;index;index:idx_analysis_step_session_order,unique,priority:1" json:"session_id"`
	Session      *AnalysisSession `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`
	Order        int              `gorm:"column:step_order;not null;index:idx_analysis_step_session_order,unique,priority:2" json:"order"`
	Name         string           `gorm:"not null;column:name" json:"name"`
	Type         string           `gorm:"not null;column:type;index" json:"type"`
	SourceKind   string           `gorm:"not null;column:source_kind" json:"source_kind"`
	SourceStepID *uuid.UUID       `gorm:"type:uuid;column:source_step_id" json:"source_step_id,omitempty"`
	Config       datatypes.JSON   `gorm:"column:config;type:jsonb;not null;default:'{}'" json:"config"`
	Result       datatypes.JSON   `gorm:"column:result;type:jsonb" json:"result,omitempty"`
	Active       bool             `gorm:"not null;default:true;index" json:"active"`
	Status       string           `gorm:"not null;default:'created'" json:"status"`
	CreatedAt    time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time        `gorm:"not null" json:"updated_at"`
}

func (AnalysisStep) TableName() string { return "analysis_step" }
