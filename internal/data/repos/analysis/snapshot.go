package analysis

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/mizukilab/kaiseki-backend/internal/domain"
	"github.com/mizukilab/kaiseki-backend/internal/platform/dbctx"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
)

// SessionSnapshotRepo persists the saved-state history of a session.
// Indexes are dense and zero based. Truncation is physical so a later
// save can reuse a truncated index.
type SessionSnapshotRepo interface {
	Create(dbc dbctx.Context, snapshots []*types.SessionSnapshot) ([]*types.SessionSnapshot, error)
	GetBySessionAndIndex(dbc dbctx.Context, sessionID uuid.UUID, index int) (*types.SessionSnapshot, error)
	ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.SessionSnapshot, error)
	MaxIndex(dbc dbctx.Context, sessionID uuid.UUID) (int, error)
	UpdateStepsAt(dbc dbctx.Context, sessionID uuid.UUID, index int, steps datatypes.JSON) error
	DeleteAboveIndex(dbc dbctx.Context, sessionID uuid.UUID, index int) error
	DeleteBySession(dbc dbctx.Context, sessionID uuid.UUID) error
}

type sessionSnapshotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) SessionSnapshotRepo {
	return &sessionSnapshotRepo{db: db, log: baseLog.With("repo", "SessionSnapshotRepo")}
}

func (r *sessionSnapshotRepo) Create(dbc dbctx.Context, snapshots []*types.SessionSnapshot) ([]*types.SessionSnapshot, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(snapshots) == 0 {
		return []*types.SessionSnapshot{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&snapshots).Error; err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (r *sessionSnapshotRepo) GetBySessionAndIndex(dbc dbctx.Context, sessionID uuid.UUID, index int) (*types.SessionSnapshot, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var s types.SessionSnapshot
	err := transaction.WithContext(dbc.Ctx).
		Where("session_id = ? AND snapshot_index = ?", sessionID, index).
		Limit(1).
		Find(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		return nil, nil
	}
	return &s, nil
}

func (r *sessionSnapshotRepo) ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.SessionSnapshot, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.SessionSnapshot
	if err := transaction.WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Order("snapshot_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// MaxIndex returns the highest snapshot index, or -1 when the session has
// no snapshots yet.
func (r *sessionSnapshotRepo) MaxIndex(dbc dbctx.Context, sessionID uuid.UUID) (int, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var maxIndex int
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.SessionSnapshot{}).
		Select("COALESCE(MAX(snapshot_index), -1)").
		Where("session_id = ?", sessionID).
		Scan(&maxIndex).Error; err != nil {
		return 0, err
	}
	return maxIndex, nil
}

func (r *sessionSnapshotRepo) UpdateStepsAt(dbc dbctx.Context, sessionID uuid.UUID, index int, steps datatypes.JSON) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.SessionSnapshot{}).
		Where("session_id = ? AND snapshot_index = ?", sessionID, index).
		Update("steps", steps).Error
}

func (r *sessionSnapshotRepo) DeleteAboveIndex(dbc dbctx.Context, sessionID uuid.UUID, index int) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Where("session_id = ? AND snapshot_index > ?", sessionID, index).
		Delete(&types.SessionSnapshot{}).Error
}

func (r *sessionSnapshotRepo) DeleteBySession(dbc dbctx.Context, sessionID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Delete(&types.SessionSnapshot{}).Error
}
