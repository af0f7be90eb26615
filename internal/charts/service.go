package charts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mizukilab/kaiseki-backend/internal/dataset"
	"github.com/mizukilab/kaiseki-backend/internal/engine"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
	"github.com/mizukilab/kaiseki-backend/internal/platform/storage"
)

// Service is the charting collaborator: it validates chart configs
// against concrete datasets and renders PNG artifacts into object
// storage. It satisfies engine.ChartRenderer.
type Service interface {
	Validate(ctx context.Context, t *dataset.Table, cfg json.RawMessage) error
	Render(ctx context.Context, sessionID uuid.UUID, t *dataset.Table, cfg json.RawMessage) (*engine.ChartArtifact, error)
}

type service struct {
	log   *logger.Logger
	store storage.ObjectStore
	theme *Theme
}

func NewService(log *logger.Logger, store storage.ObjectStore) (Service, error) {
	theme, err := LoadTheme(log)
	if err != nil {
		return nil, fmt.Errorf("load chart theme: %w", err)
	}
	return &service{
		log:   log.With("service", "ChartService"),
		store: store,
		theme: theme,
	}, nil
}

func (s *service) Validate(ctx context.Context, t *dataset.Table, raw json.RawMessage) error {
	cfg, err := ParseConfig(raw)
	if err != nil {
		return err
	}
	return cfg.Validate(t)
}

func (s *service) Render(ctx context.Context, sessionID uuid.UUID, t *dataset.Table, raw json.RawMessage) (*engine.ChartArtifact, error) {
	cfg, err := ParseConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(t); err != nil {
		return nil, err
	}
	png, err := renderPNG(s.theme, t, cfg)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("sessions/%s/charts/%s_%d.png", sessionID, cfg.GraphType, time.Now().UnixNano())
	if err := s.store.Upload(ctx, key, bytes.NewReader(png)); err != nil {
		return nil, fmt.Errorf("upload chart: %w", err)
	}
	s.log.Debug("chart rendered", "session_id", sessionID, "graph_type", cfg.GraphType, "key", key, "bytes", len(png))

	return &engine.ChartArtifact{
		Path:   key,
		Format: "png",
		Width:  s.theme.Width,
		Height: s.theme.Height,
	}, nil
}
