package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/agenthands/powermatch/internal/logging"
)

const fileExt = ".json"

// FileStore keeps one file per key below a root directory. Writes go to a temp file that is then
// hard-linked into place, so a key is never overwritten and readers never see partial content.
// Concurrent Puts of the same key inside the process collapse into one write.
type FileStore struct {
	root   string
	group  singleflight.Group
	logger *zap.Logger
}

var _ Store = (*FileStore)(nil)

func NewFileStore(root string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &FileStore{root: root, logger: logging.OrNop(logger).Named("cache")}, nil
}

func (s *FileStore) path(key string) string {
	segs := strings.Split(key, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return filepath.Join(s.root, filepath.Join(segs...)) + fileExt
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	return data, nil
}

func (s *FileStore) Put(ctx context.Context, key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	_, err, _ := s.group.Do(key, func() (interface{}, error) {
		return nil, s.write(key, value)
	})
	return err
}

func (s *FileStore) write(key string, value []byte) error {
	final := s.path(key)
	if _, err := os.Stat(final); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(final), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}

	if err := os.Link(tmp.Name(), final); err != nil {
		if errors.Is(err, fs.ErrExist) {
			s.logger.Debug("cache entry written concurrently", zap.String("key", key))
			return nil
		}
		return fmt.Errorf("failed to publish cache entry %s: %w", key, err)
	}
	s.logger.Debug("cache entry written", zap.String("key", key), zap.Int("bytes", len(value)))
	return nil
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Invalidate(ctx context.Context, prefix string) (int, error) {
	keys, err := s.Keys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			return 0, err
		}
	}
	s.logger.Info("cache invalidated", zap.String("prefix", prefix), zap.Int("entries", len(keys)))
	return len(keys), nil
}

func (s *FileStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), fileExt) || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		segs := strings.Split(filepath.ToSlash(strings.TrimSuffix(rel, fileExt)), "/")
		for i, seg := range segs {
			if segs[i], err = url.PathUnescape(seg); err != nil {
				return err
			}
		}
		if key := strings.Join(segs, "/"); hasPrefix(key, prefix) {
			out = append(out, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cache: %w", err)
	}
	sort.Strings(out)
	return out, nil
}
