package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mizukilab/kaiseki-backend/internal/data/repos"
	types "github.com/mizukilab/kaiseki-backend/internal/domain"
	"github.com/mizukilab/kaiseki-backend/internal/engine"
	"github.com/mizukilab/kaiseki-backend/internal/platform/apierr"
	"github.com/mizukilab/kaiseki-backend/internal/platform/dbctx"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
	pkgerr "github.com/mizukilab/kaiseki-backend/internal/pkg/errors"
	"github.com/mizukilab/kaiseki-backend/internal/realtime"
)

// AnalysisService drives a session's step pipeline: building steps,
// validating and executing them, and managing the snapshot history.
// Steps are addressed publicly by order ("step_N" / N); identity in
// storage is the stable step ID.
type AnalysisService interface {
	ListSteps(ctx context.Context, sessionID uuid.UUID) ([]*engine.Step, error)
	AddStep(ctx context.Context, sessionID uuid.UUID, name, stepType, dataSource string) (*engine.Step, error)
	SetStepConfig(ctx context.Context, sessionID uuid.UUID, order int, rawConfig []byte) ([]*engine.Step, string, error)
	ExecuteStep(ctx context.Context, sessionID uuid.UUID, order int, includeFollowing bool) ([]*engine.Step, error)
	DeleteStep(ctx context.Context, sessionID uuid.UUID, order int) error

	GetDataOverview(ctx context.Context, sessionID uuid.UUID) (string, error)
	GetStepOverview(ctx context.Context, sessionID uuid.UUID, order int) (string, error)

	SaveSnapshot(ctx context.Context, sessionID uuid.UUID, overwrite bool) (*types.SessionSnapshot, error)
	ListSnapshots(ctx context.Context, sessionID uuid.UUID) ([]*types.SessionSnapshot, error)
	RevertToSnapshot(ctx context.Context, sessionID uuid.UUID, index int) ([]*engine.Step, error)
}

type analysisService struct {
	db           *gorm.DB
	log          *logger.Logger
	stepRepo     repos.AnalysisStepRepo
	snapRepo     repos.SessionSnapshotRepo
	chatRepo     repos.ChatMessageRepo
	fileRepo     repos.DataFileRepo
	sessionSvc   SessionService
	datasetStore DatasetStoreService
	executor     *engine.Executor
	bus          realtime.Bus
}

func NewAnalysisService(
	db *gorm.DB,
	log *logger.Logger,
	stepRepo repos.AnalysisStepRepo,
	snapRepo repos.SessionSnapshotRepo,
	chatRepo repos.ChatMessageRepo,
	fileRepo repos.DataFileRepo,
	sessionSvc SessionService,
	datasetStore DatasetStoreService,
	executor *engine.Executor,
	bus realtime.Bus,
) AnalysisService {
	return &analysisService{
		db:           db,
		log:          log.With("service", "AnalysisService"),
		stepRepo:     stepRepo,
		snapRepo:     snapRepo,
		chatRepo:     chatRepo,
		fileRepo:     fileRepo,
		sessionSvc:   sessionSvc,
		datasetStore: datasetStore,
		executor:     executor,
		bus:          bus,
	}
}

// pipeline is one loaded session: engine identity plus the rehydrated
// steps in ascending order.
type pipeline struct {
	sess  engine.Session
	steps []*engine.Step
}

func (s *analysisService) loadPipeline(ctx context.Context, sessionID uuid.UUID, minRole string) (*pipeline, error) {
	session, err := s.sessionSvc.AuthorizeSession(ctx, sessionID, minRole)
	if err != nil {
		return nil, err
	}
	files, err := s.fileRepo.GetByIDs(dbctx.New(ctx), []uuid.UUID{session.DataFileID})
	if err != nil {
		return nil, fmt.Errorf("get session data file: %w", err)
	}
	if len(files) == 0 || files[0].DatasetPath == "" {
		return nil, apierr.New(http.StatusConflict, "dataset_missing",
			fmt.Errorf("session has no ingested dataset: %w", pkgerr.ErrConflict))
	}
	rows, err := s.stepRepo.ListBySession(dbctx.New(ctx), sessionID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	steps, err := rowsToSteps(rows)
	if err != nil {
		return nil, err
	}
	return &pipeline{
		sess:  engine.Session{ID: sessionID, OriginalPath: files[0].DatasetPath},
		steps: steps,
	}, nil
}

func (s *analysisService) findByOrder(p *pipeline, order int) (*engine.Step, error) {
	for _, st := range p.steps {
		if st.Order == order {
			return st, nil
		}
	}
	return nil, apierr.New(http.StatusNotFound, "step_not_found",
		fmt.Errorf("no step with order %d: %w", order, pkgerr.ErrNotFound))
}

func (s *analysisService) ListSteps(ctx context.Context, sessionID uuid.UUID) ([]*engine.Step, error) {
	p, err := s.loadPipeline(ctx, sessionID, types.RoleViewer)
	if err != nil {
		return nil, err
	}
	return p.steps, nil
}

func (s *analysisService) AddStep(ctx context.Context, sessionID uuid.UUID, name, stepType, dataSource string) (*engine.Step, error) {
	p, err := s.loadPipeline(ctx, sessionID, types.RoleEditor)
	if err != nil {
		return nil, err
	}
	st, err := engine.ParseStepType(stepType)
	if err != nil {
		return nil, err
	}
	step, err := s.executor.SeedStep(ctx, p.sess, p.steps, name, st, dataSource)
	if err != nil {
		return nil, err
	}
	row, err := stepToRow(sessionID, step)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, cErr := s.stepRepo.Create(dbctx.WithTx(ctx, tx), []*types.AnalysisStep{row})
		return cErr
	})
	if err != nil {
		return nil, fmt.Errorf("persist step: %w", err)
	}
	s.publish(ctx, sessionID, realtime.EventStepAdded, stepPayload(step, append(p.steps, step)))
	return step, nil
}

// SetStepConfig validates and persists the config, then immediately
// materializes the step and cascades over every later active step.
// Each cascade result lands in its own transaction, so a mid-cascade
// failure keeps the config and the earlier materializations; the
// overview string describes the configured step after execution.
func (s *analysisService) SetStepConfig(ctx context.Context, sessionID uuid.UUID, order int, rawConfig []byte) ([]*engine.Step, string, error) {
	p, err := s.loadPipeline(ctx, sessionID, types.RoleEditor)
	if err != nil {
		return nil, "", err
	}
	step, err := s.findByOrder(p, order)
	if err != nil {
		return nil, "", err
	}
	var cfg engine.Config
	if uErr := json.Unmarshal(rawConfig, &cfg); uErr != nil {
		return nil, "", apierr.New(http.StatusBadRequest, "malformed_config",
			fmt.Errorf("malformed step config: %w", uErr))
	}
	if vErr := s.executor.ValidateStepConfig(ctx, p.sess, p.steps, step, cfg); vErr != nil {
		return nil, "", vErr
	}

	step.Config = cfg
	step.Status = engine.StatusConfigured
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, "", fmt.Errorf("marshal config: %w", err)
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.stepRepo.UpdateFields(dbctx.WithTx(ctx, tx), step.ID, map[string]interface{}{
			"config": datatypes.JSON(cfgJSON),
			"status": string(engine.StatusConfigured),
		})
	})
	if err != nil {
		return nil, "", fmt.Errorf("persist config: %w", err)
	}

	execErr := s.executor.ExecuteStep(ctx, p.sess, p.steps, step.ID, true, &stepResultPersister{repo: s.stepRepo})
	s.publish(ctx, sessionID, realtime.EventStepExecuted, map[string]any{
		"step":              stepPayload(step, p.steps),
		"include_following": true,
		"failed":            execErr != nil,
	})
	if execErr != nil {
		return p.steps, "", execErr
	}
	return p.steps, engine.StepOverview(step, p.steps), nil
}

// ExecuteStep materializes the addressed step and optionally cascades
// over every later active step. Each result is persisted the moment it
// lands, so a mid-cascade failure keeps the earlier successes; the
// error still reports which step broke the chain.
func (s *analysisService) ExecuteStep(ctx context.Context, sessionID uuid.UUID, order int, includeFollowing bool) ([]*engine.Step, error) {
	p, err := s.loadPipeline(ctx, sessionID, types.RoleEditor)
	if err != nil {
		return nil, err
	}
	step, err := s.findByOrder(p, order)
	if err != nil {
		return nil, err
	}

	execErr := s.executor.ExecuteStep(ctx, p.sess, p.steps, step.ID, includeFollowing, &stepResultPersister{repo: s.stepRepo})
	s.publish(ctx, sessionID, realtime.EventStepExecuted, map[string]any{
		"step":              stepPayload(step, p.steps),
		"include_following": includeFollowing,
		"failed":            execErr != nil,
	})
	if execErr != nil {
		return p.steps, execErr
	}
	return p.steps, nil
}

// DeleteStep removes the step physically. Its order is never reused
// and references that pointed at it dangle until their owner is
// repointed; nothing here repairs them.
func (s *analysisService) DeleteStep(ctx context.Context, sessionID uuid.UUID, order int) error {
	p, err := s.loadPipeline(ctx, sessionID, types.RoleEditor)
	if err != nil {
		return err
	}
	step, err := s.findByOrder(p, order)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.stepRepo.Delete(dbctx.WithTx(ctx, tx), step.ID)
	})
	if err != nil {
		return fmt.Errorf("delete step: %w", err)
	}
	s.publish(ctx, sessionID, realtime.EventStepDeleted, map[string]any{
		"step_id": step.ID,
		"order":   step.Order,
	})
	return nil
}

func (s *analysisService) GetDataOverview(ctx context.Context, sessionID uuid.UUID) (string, error) {
	p, err := s.loadPipeline(ctx, sessionID, types.RoleViewer)
	if err != nil {
		return "", err
	}
	t, err := s.datasetStore.Load(ctx, p.sess.OriginalPath)
	if err != nil {
		return "", err
	}
	return engine.DataOverview(t), nil
}

func (s *analysisService) GetStepOverview(ctx context.Context, sessionID uuid.UUID, order int) (string, error) {
	p, err := s.loadPipeline(ctx, sessionID, types.RoleViewer)
	if err != nil {
		return "", err
	}
	step, err := s.findByOrder(p, order)
	if err != nil {
		return "", err
	}
	return engine.StepOverview(step, p.steps), nil
}

// SaveSnapshot freezes the active pipeline at the next history index.
// With overwrite set, the latest snapshot is refreshed in place
// instead; saving an unchanged pipeline is a no-op either way.
func (s *analysisService) SaveSnapshot(ctx context.Context, sessionID uuid.UUID, overwrite bool) (*types.SessionSnapshot, error) {
	p, err := s.loadPipeline(ctx, sessionID, types.RoleEditor)
	if err != nil {
		return nil, err
	}
	frozen, err := json.Marshal(engine.CaptureSnapshot(p.steps))
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	var snap *types.SessionSnapshot
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		maxIdx, iErr := s.snapRepo.MaxIndex(dbc, sessionID)
		if iErr != nil {
			return fmt.Errorf("get max snapshot index: %w", iErr)
		}
		if maxIdx >= 0 {
			latest, gErr := s.snapRepo.GetBySessionAndIndex(dbc, sessionID, maxIdx)
			if gErr != nil {
				return fmt.Errorf("get latest snapshot: %w", gErr)
			}
			if bytes.Equal(normalizeJSON(latest.Steps), normalizeJSON(frozen)) {
				snap = latest
				return nil
			}
			if overwrite {
				if uErr := s.snapRepo.UpdateStepsAt(dbc, sessionID, maxIdx, datatypes.JSON(frozen)); uErr != nil {
					return fmt.Errorf("refresh snapshot %d: %w", maxIdx, uErr)
				}
				latest.Steps = datatypes.JSON(frozen)
				snap = latest
				return nil
			}
		}
		snap = &types.SessionSnapshot{
			ID:        uuid.New(),
			SessionID: sessionID,
			Index:     maxIdx + 1,
			Steps:     datatypes.JSON(frozen),
		}
		_, cErr := s.snapRepo.Create(dbc, []*types.SessionSnapshot{snap})
		return cErr
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, sessionID, realtime.EventSnapshotSaved, map[string]any{"index": snap.Index})
	return snap, nil
}

func (s *analysisService) ListSnapshots(ctx context.Context, sessionID uuid.UUID) ([]*types.SessionSnapshot, error) {
	if _, err := s.sessionSvc.AuthorizeSession(ctx, sessionID, types.RoleViewer); err != nil {
		return nil, err
	}
	return s.snapRepo.ListBySession(dbctx.New(ctx), sessionID)
}

// RevertToSnapshot replaces the live pipeline with the frozen one at
// index: recreated steps get fresh IDs and cleared results, every
// later snapshot is dropped, and chat messages tagged above the index
// are pruned. Steps must be re-executed to regain live data.
func (s *analysisService) RevertToSnapshot(ctx context.Context, sessionID uuid.UUID, index int) ([]*engine.Step, error) {
	if _, err := s.sessionSvc.AuthorizeSession(ctx, sessionID, types.RoleEditor); err != nil {
		return nil, err
	}

	var restored []*engine.Step
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		snapRow, gErr := s.snapRepo.GetBySessionAndIndex(dbc, sessionID, index)
		if gErr != nil {
			return apierr.New(http.StatusNotFound, "snapshot_not_found",
				fmt.Errorf("no snapshot at index %d: %w", index, pkgerr.ErrNotFound))
		}
		var frozen []engine.SnapshotStep
		if uErr := json.Unmarshal(snapRow.Steps, &frozen); uErr != nil {
			return fmt.Errorf("unmarshal snapshot %d: %w", index, uErr)
		}
		steps, rErr := engine.RestoreSteps(frozen)
		if rErr != nil {
			return rErr
		}

		if dErr := s.stepRepo.DeleteBySession(dbc, sessionID); dErr != nil {
			return fmt.Errorf("clear steps: %w", dErr)
		}
		rows := make([]*types.AnalysisStep, 0, len(steps))
		for _, st := range steps {
			row, mErr := stepToRow(sessionID, st)
			if mErr != nil {
				return mErr
			}
			rows = append(rows, row)
		}
		if _, cErr := s.stepRepo.Create(dbc, rows); cErr != nil {
			return fmt.Errorf("recreate steps: %w", cErr)
		}

		if dErr := s.snapRepo.DeleteAboveIndex(dbc, sessionID, index); dErr != nil {
			return fmt.Errorf("truncate snapshot history: %w", dErr)
		}
		pruned, pErr := s.chatRepo.PruneAboveSnapshot(dbc, sessionID, index)
		if pErr != nil {
			return fmt.Errorf("prune chat: %w", pErr)
		}
		s.log.Info("session reverted", "session_id", sessionID, "index", index,
			"steps", len(steps), "pruned_messages", pruned)
		restored = steps
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, sessionID, realtime.EventSessionReverted, map[string]any{
		"index": index,
		"steps": len(restored),
	})
	return restored, nil
}

func (s *analysisService) publish(ctx context.Context, sessionID uuid.UUID, typ realtime.EventType, payload any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, realtime.NewEvent(sessionID, typ, payload)); err != nil {
		s.log.Warn("failed to publish event", "session_id", sessionID, "type", typ, "error", err)
	}
}

// stepPayload is the event-facing view of a step.
func stepPayload(step *engine.Step, steps []*engine.Step) map[string]any {
	return map[string]any{
		"step_id":     step.ID,
		"order":       step.Order,
		"name":        step.Name,
		"type":        step.Type,
		"data_source": engine.FormatSourceRef(step.Source, steps),
		"status":      step.Status,
	}
}

// stepResultPersister writes each freshly materialized result in its
// own short transaction, which is what keeps cascade partial success
// durable.
type stepResultPersister struct {
	repo repos.AnalysisStepRepo
}

func (p *stepResultPersister) PersistResult(ctx context.Context, step *engine.Step) error {
	updates := map[string]interface{}{
		"status": string(step.Status),
	}
	cfgJSON, err := json.Marshal(step.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	// execution may reconcile category filters against a changed source
	updates["config"] = datatypes.JSON(cfgJSON)
	if step.Result != nil {
		resJSON, err := json.Marshal(step.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		updates["result"] = datatypes.JSON(resJSON)
	}
	return p.repo.UpdateFields(dbctx.New(ctx), step.ID, updates)
}

// normalizeJSON reduces a JSON document to a canonical byte form so
// snapshot equality ignores whitespace differences.
func normalizeJSON(raw []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
