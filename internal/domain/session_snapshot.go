package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SessionSnapshot is one entry of a session's snapshot history. Index
// is the 0-based position in that history; revert truncates the
// history physically to [0..index], so indexes stay dense per session.
// Steps holds the ordered frozen step tuples as JSON.
type SessionSnapshot struct {
	ID        uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID        `gorm:"type:uuid;not null;index;index:idx_session_snapshot_session_index,unique,priority:1" json:"session_id"`
	Session   *AnalysisSession `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`
	Index     int              `gorm:"column:snapshot_index;not null;index:idx_session_snapshot_session_index,unique,priority:2" json:"index"`
	Steps     datatypes.JSON   `gorm:"column:steps;type:jsonb;not null;default:'[]'" json:"steps"`
	CreatedAt time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time        `gorm:"not null" json:"updated_at"`
}

func (SessionSnapshot) TableName() string { return "session_snapshot" }
