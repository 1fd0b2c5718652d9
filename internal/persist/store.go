// Package persist owns durable local storage of the board: a small
// key/blob store abstraction (one serialized BoardState under a primary
// key), plus the debounced saver that batches writes.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/corkline/corkboard/internal/domain"
)

// PrimaryKey is where the current board snapshot lives.
const PrimaryKey = "corkboard/state"

// legacyKeys are probed read-only on first load so upgrades pick up a
// board written by earlier releases. They are never written.
var legacyKeys = []string{"corkboard/board-v2", "kanban-state"}

// BlobStore stores opaque blobs under string keys. Implementations:
// FileStore (single-user default) and RedisStore (shared daemon).
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte) error
	Close() error
}

// LoadState reads the persisted board, probing legacy keys when the
// primary key is absent. A missing board on every key returns
// domain.ErrNotFound. The loaded state is normalized before use.
func LoadState(ctx context.Context, store BlobStore) (*domain.BoardState, error) {
	keys := append([]string{PrimaryKey}, legacyKeys...)
	for _, key := range keys {
		data, err := store.Get(ctx, key)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("persist.LoadState: %w", err)
		}

		var s domain.BoardState
		if err := json.Unmarshal(data, &s); err != nil {
			log.Warn().Str("key", key).Err(err).Msg("discarding unreadable board snapshot")
			continue
		}
		s.Normalize()
		if key != PrimaryKey {
			log.Info().Str("key", key).Msg("migrated board from legacy storage key")
		}
		return &s, nil
	}
	return nil, domain.ErrNotFound
}

// SaveState writes the board under the primary key.
func SaveState(ctx context.Context, store BlobStore, s *domain.BoardState) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("persist.SaveState: marshal: %w", err)
	}
	if err := store.Set(ctx, PrimaryKey, data); err != nil {
		return fmt.Errorf("persist.SaveState: %w", err)
	}
	return nil
}
