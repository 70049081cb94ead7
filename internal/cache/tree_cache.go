// Package cache keeps rooted Tree views in Redis.
package cache

import (
	"context"
	"time"

	"github.com/Marga-Ghale/grove-backend/internal/service"
	"github.com/rs/zerolog"
)

// Store is the slice of the Redis client the tree cache needs.
type Store interface {
	SetCache(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetCache(ctx context.Context, key string, dest interface{}) (bool, error)
	DeleteCache(ctx context.Context, keys ...string) error
}

// TreeCache stores one view per queried Person. Cache errors degrade to a
// miss; the repositories stay the source of truth.
type TreeCache struct {
	store Store
	ttl   time.Duration
	log   zerolog.Logger
}

func NewTreeCache(store Store, ttl time.Duration, log zerolog.Logger) *TreeCache {
	return &TreeCache{store: store, ttl: ttl, log: log}
}

func treeKey(personID string) string {
	return "tree:" + personID
}

func (c *TreeCache) GetTree(ctx context.Context, personID string) (*service.TreeView, bool) {
	var view service.TreeView
	found, err := c.store.GetCache(ctx, treeKey(personID), &view)
	if err != nil {
		c.log.Warn().Err(err).Str("person", personID).Msg("tree cache read failed")
		return nil, false
	}
	if !found {
		return nil, false
	}
	return &view, true
}

func (c *TreeCache) SetTree(ctx context.Context, view *service.TreeView) {
	if err := c.store.SetCache(ctx, treeKey(view.PersonID), view, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("person", view.PersonID).Msg("tree cache write failed")
	}
}

// Invalidate drops the views queried from any of the given Persons.
func (c *TreeCache) Invalidate(ctx context.Context, personIDs ...string) {
	if len(personIDs) == 0 {
		return
	}
	keys := make([]string, len(personIDs))
	for i, id := range personIDs {
		keys[i] = treeKey(id)
	}
	if err := c.store.DeleteCache(context.WithoutCancel(ctx), keys...); err != nil {
		c.log.Warn().Err(err).Strs("persons", personIDs).Msg("tree cache invalidation failed")
	}
}
