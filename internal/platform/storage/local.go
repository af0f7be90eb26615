package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
)

// localStore keeps objects under a root directory, one file per key.
// It exists for development and tests; keys map to relative paths, so
// anything escaping the root is rejected.
type localStore struct {
	log  *logger.Logger
	root string
}

func newLocalStore(log *logger.Logger, root string) (*localStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("local object storage requires a root directory")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create local storage root %q: %w", root, err)
	}
	return &localStore{log: log, root: root}, nil
}

func (ls *localStore) pathFor(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", fmt.Errorf("empty object key")
	}
	p := filepath.Join(ls.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(ls.root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("object key %q escapes storage root", key)
	}
	return p, nil
}

func (ls *localStore) Upload(ctx context.Context, key string, r io.Reader) error {
	p, err := ls.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("create object %q: %w", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("write object %q: %w", key, err)
	}
	return f.Close()
}

func (ls *localStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := ls.pathFor(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open object %q: %w", key, err)
	}
	return f, nil
}

func (ls *localStore) Delete(ctx context.Context, key string) error {
	p, err := ls.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	return nil
}

func (ls *localStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	out := []string{}
	err := filepath.WalkDir(ls.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(ls.root, p)
		if relErr != nil {
			return relErr
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (ls *localStore) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := ls.ListKeys(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := ls.Delete(ctx, k); err != nil {
			ls.log.Warn("delete under prefix failed (continuing)", "key", k, "error", err)
		}
	}
	return nil
}

func (ls *localStore) PublicURL(key string) string {
	return "file://" + filepath.ToSlash(filepath.Join(ls.root, filepath.FromSlash(key)))
}
