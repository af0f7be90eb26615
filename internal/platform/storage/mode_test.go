package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
)

func clearStorageEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("DATA_BUCKET_NAME", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "")
	t.Setenv("OBJECT_STORAGE_LOCAL_DIR", "")
}

func TestResolveConfigDefaultsToLocal(t *testing.T) {
	clearStorageEnv(t)
	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Mode != ModeLocal {
		t.Fatalf("expected local mode, got %q", cfg.Mode)
	}
	if !cfg.CompatibilityFallback {
		t.Fatalf("expected compatibility fallback to be flagged")
	}
}

func TestResolveConfigPrefersEmulatorWhenHostSet(t *testing.T) {
	clearStorageEnv(t)
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443")
	t.Setenv("DATA_BUCKET_NAME", "kaiseki-data")
	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Mode != ModeGCSEmulator {
		t.Fatalf("expected emulator mode, got %q", cfg.Mode)
	}
}

func TestResolveConfigRejectsUnknownMode(t *testing.T) {
	clearStorageEnv(t)
	t.Setenv("OBJECT_STORAGE_MODE", "s3")
	_, err := ResolveConfigFromEnv()
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Code != ConfigErrorInvalidMode {
		t.Fatalf("expected invalid_mode config error, got %v", err)
	}
}

func TestResolveConfigEmulatorRequiresHost(t *testing.T) {
	clearStorageEnv(t)
	t.Setenv("OBJECT_STORAGE_MODE", "gcs_emulator")
	t.Setenv("DATA_BUCKET_NAME", "kaiseki-data")
	_, err := ResolveConfigFromEnv()
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Code != ConfigErrorMissingEmulatorHost {
		t.Fatalf("expected missing_emulator_host config error, got %v", err)
	}
}

func TestLocalStoreRoundTrip(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	store, err := NewObjectStoreWithConfig(log, Config{Mode: ModeLocal, LocalDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if err := store.Upload(ctx, "sessions/a/results/one.json", bytes.NewReader([]byte(`{"ok":true}`))); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := store.Upload(ctx, "sessions/a/charts/two.png", bytes.NewReader([]byte{1, 2, 3})); err != nil {
		t.Fatalf("upload: %v", err)
	}

	r, err := store.Download(ctx, "sessions/a/results/one.json")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil || string(data) != `{"ok":true}` {
		t.Fatalf("unexpected content %q (err %v)", data, err)
	}

	keys, err := store.ListKeys(ctx, "sessions/a/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}

	if err := store.DeletePrefix(ctx, "sessions/a/"); err != nil {
		t.Fatalf("delete prefix: %v", err)
	}
	if keys, _ := store.ListKeys(ctx, "sessions/a/"); len(keys) != 0 {
		t.Fatalf("expected empty prefix after delete, got %v", keys)
	}
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	log, _ := logger.New("test")
	store, err := NewObjectStoreWithConfig(log, Config{Mode: ModeLocal, LocalDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Upload(context.Background(), "../outside.json", bytes.NewReader([]byte("x"))); err == nil {
		t.Fatalf("expected escaping key to be rejected")
	}
}
