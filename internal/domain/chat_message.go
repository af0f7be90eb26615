package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one entry of a session's conversation log. The engine
// treats content as opaque; SnapshotIndex optionally tags the message
// with the snapshot history position it belongs to, which is what
// revert-time pruning keys on. Untagged messages survive every revert.
type ChatMessage struct {
	ID        uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID        `gorm:"type:uuid;not null;index;index:idx_chat_message_session_seq,unique,priority:1" json:"session_id"`
	Session   *AnalysisSession `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`
	UserID    uuid.UUID        `gorm:"type:uuid;not null;index" json:"user_id"`

	Seq int64 `gorm:"column:seq;not null;index:idx_chat_message_session_seq,unique,priority:2" json:"seq"`

	Role          string         `gorm:"column:role;not null;index" json:"role"`
	Content       string         `gorm:"column:content;type:text;not null;default:''" json:"content"`
	SnapshotIndex *int           `gorm:"column:snapshot_index;index" json:"snapshot_index,omitempty"`
	Metadata      datatypes.JSON `gorm:"column:metadata;type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ChatMessage) TableName() string { return "chat_message" }
