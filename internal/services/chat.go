package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mizukilab/kaiseki-backend/internal/data/repos"
	types "github.com/mizukilab/kaiseki-backend/internal/domain"
	"github.com/mizukilab/kaiseki-backend/internal/platform/apierr"
	"github.com/mizukilab/kaiseki-backend/internal/platform/ctxutil"
	"github.com/mizukilab/kaiseki-backend/internal/platform/dbctx"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
	pkgerr "github.com/mizukilab/kaiseki-backend/internal/pkg/errors"
	"github.com/mizukilab/kaiseki-backend/internal/realtime"
)

// ChatService appends to and reads a session's conversation log.
// Messages posted while the session sits at a snapshot index are
// tagged with it, which is what revert-time pruning keys on; messages
// posted before the first snapshot stay untagged and survive reverts.
type ChatService interface {
	PostMessage(ctx context.Context, sessionID uuid.UUID, role, content string, metadata []byte) (*types.ChatMessage, error)
	History(ctx context.Context, sessionID uuid.UUID, limit int) ([]*types.ChatMessage, error)
	Recent(ctx context.Context, sessionID uuid.UUID, limit int) ([]*types.ChatMessage, error)
}

type chatService struct {
	db         *gorm.DB
	log        *logger.Logger
	chatRepo   repos.ChatMessageRepo
	snapRepo   repos.SessionSnapshotRepo
	sessionSvc SessionService
	bus        realtime.Bus
}

func NewChatService(db *gorm.DB, log *logger.Logger, chatRepo repos.ChatMessageRepo, snapRepo repos.SessionSnapshotRepo, sessionSvc SessionService, bus realtime.Bus) ChatService {
	return &chatService{
		db:         db,
		log:        log.With("service", "ChatService"),
		chatRepo:   chatRepo,
		snapRepo:   snapRepo,
		sessionSvc: sessionSvc,
		bus:        bus,
	}
}

func (cs *chatService) PostMessage(ctx context.Context, sessionID uuid.UUID, role, content string, metadata []byte) (*types.ChatMessage, error) {
	if _, err := cs.sessionSvc.AuthorizeSession(ctx, sessionID, types.RoleEditor); err != nil {
		return nil, err
	}
	if role != types.ChatRoleUser && role != types.ChatRoleAssistant {
		return nil, apierr.New(http.StatusBadRequest, "invalid_role", fmt.Errorf("unknown chat role %q: %w", role, pkgerr.ErrInvalidArgument))
	}
	if strings.TrimSpace(content) == "" {
		return nil, apierr.New(http.StatusBadRequest, "empty_content", fmt.Errorf("message content required: %w", pkgerr.ErrInvalidArgument))
	}
	if len(metadata) == 0 {
		metadata = []byte(`{}`)
	}

	msg := &types.ChatMessage{
		ID:        uuid.New(),
		SessionID: sessionID,
		UserID:    ctxutil.UserID(ctx),
		Role:      role,
		Content:   content,
		Metadata:  datatypes.JSON(metadata),
	}
	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		maxSeq, sErr := cs.chatRepo.GetMaxSeq(dbc, sessionID)
		if sErr != nil {
			return fmt.Errorf("get max seq: %w", sErr)
		}
		msg.Seq = maxSeq + 1

		snapIdx, iErr := cs.snapRepo.MaxIndex(dbc, sessionID)
		if iErr != nil {
			return fmt.Errorf("get snapshot index: %w", iErr)
		}
		if snapIdx >= 0 {
			msg.SnapshotIndex = &snapIdx
		}

		_, cErr := cs.chatRepo.Create(dbc, []*types.ChatMessage{msg})
		return cErr
	})
	if err != nil {
		return nil, err
	}

	if pErr := cs.bus.Publish(ctx, realtime.NewEvent(sessionID, realtime.EventChatMessage, msg)); pErr != nil {
		cs.log.Warn("failed to publish chat event", "session_id", sessionID, "error", pErr)
	}
	return msg, nil
}

func (cs *chatService) History(ctx context.Context, sessionID uuid.UUID, limit int) ([]*types.ChatMessage, error) {
	if _, err := cs.sessionSvc.AuthorizeSession(ctx, sessionID, types.RoleViewer); err != nil {
		return nil, err
	}
	return cs.chatRepo.ListBySession(dbctx.New(ctx), sessionID, limit)
}

func (cs *chatService) Recent(ctx context.Context, sessionID uuid.UUID, limit int) ([]*types.ChatMessage, error) {
	if _, err := cs.sessionSvc.AuthorizeSession(ctx, sessionID, types.RoleViewer); err != nil {
		return nil, err
	}
	return cs.chatRepo.ListRecent(dbctx.New(ctx), sessionID, limit)
}
