package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mizukilab/kaiseki-backend/internal/dataset"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
	"github.com/mizukilab/kaiseki-backend/internal/platform/storage"
)

// DatasetStoreService moves datasets between the pipeline and object
// storage as canonical JSON documents addressed by opaque keys. It
// satisfies engine.DatasetStore.
type DatasetStoreService interface {
	Load(ctx context.Context, path string) (*dataset.Table, error)
	Save(ctx context.Context, sessionID uuid.UUID, name string, t *dataset.Table, prefix string) (string, error)
	SaveRaw(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, path string) error
	DeleteSession(ctx context.Context, sessionID uuid.UUID) error
}

type datasetStoreService struct {
	log   *logger.Logger
	store storage.ObjectStore
}

func NewDatasetStoreService(log *logger.Logger, store storage.ObjectStore) DatasetStoreService {
	return &datasetStoreService{
		log:   log.With("service", "DatasetStoreService"),
		store: store,
	}
}

func (s *datasetStoreService) Load(ctx context.Context, path string) (*dataset.Table, error) {
	rc, err := s.store.Download(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("download dataset %s: %w", path, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	t, err := dataset.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode dataset %s: %w", path, err)
	}
	return t, nil
}

func (s *datasetStoreService) Save(ctx context.Context, sessionID uuid.UUID, name string, t *dataset.Table, prefix string) (string, error) {
	data, err := dataset.Encode(t)
	if err != nil {
		return "", fmt.Errorf("encode dataset: %w", err)
	}
	key := fmt.Sprintf("sessions/%s/%s/%s_%d.json", sessionID, prefix, sanitizeName(name), time.Now().UnixNano())
	if err := s.store.Upload(ctx, key, strings.NewReader(string(data))); err != nil {
		return "", fmt.Errorf("upload dataset: %w", err)
	}
	s.log.Debug("dataset saved", "session_id", sessionID, "key", key, "rows", t.RowCount())
	return key, nil
}

func (s *datasetStoreService) SaveRaw(ctx context.Context, key string, data []byte) error {
	if err := s.store.Upload(ctx, key, strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("upload object %s: %w", key, err)
	}
	return nil
}

func (s *datasetStoreService) Delete(ctx context.Context, path string) error {
	return s.store.Delete(ctx, path)
}

// DeleteSession removes every stored artifact under the session's
// prefix: results, passthrough tables, and rendered charts.
func (s *datasetStoreService) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	return s.store.DeletePrefix(ctx, fmt.Sprintf("sessions/%s/", sessionID))
}

// sanitizeName keeps storage keys flat: path separators and blanks in
// user-chosen step names collapse to underscores.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "dataset"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', '\t', '\n':
			return '_'
		}
		return r
	}, name)
}
