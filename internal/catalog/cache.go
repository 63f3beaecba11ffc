package catalog

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Source fetches the three catalogs. The HTTP gateway implements it.
type Source interface {
	Workers(ctx context.Context) ([]Worker, error)
	Segments(ctx context.Context) ([]Segment, error)
	Activities(ctx context.Context) ([]Activity, error)
}

// Cache is a read-only snapshot of the catalogs for the current session.
// Readers get copies; only Refresh and Reset replace the contents.
type Cache struct {
	mu         sync.RWMutex
	workers    []Worker
	segments   []Segment
	activities []Activity
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Refresh loads all three catalogs concurrently. The cache is replaced only
// when every fetch succeeds, so a partial failure keeps the previous data.
func (c *Cache) Refresh(ctx context.Context, src Source) error {
	var (
		workers    []Worker
		segments   []Segment
		activities []Activity
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if workers, err = src.Workers(ctx); err != nil {
			return fmt.Errorf("load workers: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if segments, err = src.Segments(ctx); err != nil {
			return fmt.Errorf("load tramos: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if activities, err = src.Activities(ctx); err != nil {
			return fmt.Errorf("load activities: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	c.Load(workers, segments, activities)
	return nil
}

// Load replaces the cache contents directly.
func (c *Cache) Load(workers []Worker, segments []Segment, activities []Activity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.workers = slices.Clone(workers)
	c.segments = slices.Clone(segments)
	c.activities = slices.Clone(activities)
}

// Reset empties the cache (logout).
func (c *Cache) Reset() {
	c.Load(nil, nil, nil)
}

func (c *Cache) Workers() []Worker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.workers)
}

func (c *Cache) Segments() []Segment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.segments)
}

func (c *Cache) Activities() []Activity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.activities)
}

// Worker finds a worker by id.
func (c *Cache) Worker(id ID) (Worker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, w := range c.workers {
		if w.ID == id {
			return w, true
		}
	}
	return Worker{}, false
}

// Segment finds a tramo by id.
func (c *Cache) Segment(id ID) (Segment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.segments {
		if s.ID == id {
			return s, true
		}
	}
	return Segment{}, false
}

// Activity finds an activity by id.
func (c *Cache) Activity(id ID) (Activity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.activities {
		if a.ID == id {
			return a, true
		}
	}
	return Activity{}, false
}
