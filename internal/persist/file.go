package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/corkline/corkboard/internal/domain"
)

// FileStore keeps each key in its own JSON file under a directory.
// Writes go through a temp file and rename so a crash mid-write never
// leaves a truncated snapshot.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persist.NewFileStore: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persist.FileStore.Get: %w", err)
	}
	return data, nil
}

func (f *FileStore) Set(_ context.Context, key string, data []byte) error {
	dst := f.path(key)
	tmp, err := os.CreateTemp(f.dir, ".corkboard-*.tmp")
	if err != nil {
		return fmt.Errorf("persist.FileStore.Set: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("persist.FileStore.Set: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("persist.FileStore.Set: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("persist.FileStore.Set: %w", err)
	}
	return nil
}

func (f *FileStore) Close() error { return nil }

func (f *FileStore) path(key string) string {
	name := strings.ReplaceAll(key, "/", "--") + ".json"
	return filepath.Join(f.dir, name)
}
