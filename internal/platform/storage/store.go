package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
)

// ObjectStore moves opaque objects in and out of the configured
// backend by key. Keys are slash-separated paths; callers own the
// layout.
type ObjectStore interface {
	Upload(ctx context.Context, key string, r io.Reader) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	DeletePrefix(ctx context.Context, prefix string) error
	PublicURL(key string) string
}

// NewObjectStore resolves the mode from the environment and builds the
// matching backend.
func NewObjectStore(log *logger.Logger) (ObjectStore, error) {
	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("resolve object storage config: %w", err)
	}
	return NewObjectStoreWithConfig(log, cfg)
}

func NewObjectStoreWithConfig(log *logger.Logger, cfg Config) (ObjectStore, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	serviceLog := log.With("service", "ObjectStore")
	serviceLog.Info("Object storage initialized",
		"mode", cfg.Mode,
		"mode_source", cfg.ModeSource(),
		"bucket", cfg.BucketName,
		"emulator_host", cfg.EmulatorHost,
		"local_dir", cfg.LocalDir,
	)
	switch cfg.Mode {
	case ModeGCS, ModeGCSEmulator:
		return newBucketStore(serviceLog, cfg)
	case ModeLocal:
		return newLocalStore(serviceLog, cfg.LocalDir)
	default:
		return nil, &ConfigError{Code: ConfigErrorInvalidMode, Mode: string(cfg.Mode)}
	}
}
