// FilePath: internal/state/state.go
package state

import (
	"context"
	"sync"

	"github.com/itsatony/emhub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

// SnapshotStore mirrors the current reading outside the process.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, r models.Reading) error
	LoadSnapshot(ctx context.Context) (*models.Reading, error)
}

// Cache holds the single current Reading.
type Cache struct {
	mu      sync.RWMutex
	current models.Reading
	store   SnapshotStore
}

// New returns a Cache with zero-valued defaults. store may be nil.
func New(store SnapshotStore) *Cache {
	return &Cache{store: store}
}

// Snapshot returns a copy of the current reading.
func (c *Cache) Snapshot() models.Reading {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Apply merges u into the current reading and returns the result.
// Fields absent from u keep their previous value.
func (c *Cache) Apply(ctx context.Context, u models.ReadingUpdate) models.Reading {
	c.mu.Lock()
	c.current = c.current.Merge(u)
	next := c.current
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveSnapshot(ctx, next); err != nil {
			nuts.L.Warnf("[State] Failed to mirror snapshot: %v", err)
		}
	}
	return next
}

// Restore loads the mirrored reading, if any.
func (c *Cache) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	r, err := c.store.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	if r == nil {
		return nil
	}
	c.mu.Lock()
	c.current = *r
	c.mu.Unlock()
	nuts.L.Infof("[State] Restored snapshot from %s", r.Time)
	return nil
}
