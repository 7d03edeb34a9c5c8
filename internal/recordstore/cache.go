package recordstore

import (
	"context"
	"slices"
	"sync"

	"github.com/perch/daybook/internal/models"
)

// Cache is a read-through wrapper around a Store. The diary form, the
// reminder scheduler, and the MCP server all read through the same instance,
// so every access takes the lock and every result is a copy.
type Cache struct {
	src Store

	mu        sync.RWMutex
	summaries []models.DailySummary
	records   map[string]*models.DailyRecord
}

// NewCache wraps src.
func NewCache(src Store) *Cache {
	return &Cache{src: src, records: make(map[string]*models.DailyRecord)}
}

// ListSummaries returns the cached summaries, fetching on first use or after
// invalidation.
func (c *Cache) ListSummaries(ctx context.Context) ([]models.DailySummary, error) {
	c.mu.RLock()
	cached := c.summaries
	c.mu.RUnlock()
	if cached != nil {
		return slices.Clone(cached), nil
	}

	list, err := c.src.ListSummaries(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.summaries = slices.Clone(list)
	c.mu.Unlock()
	return list, nil
}

// InvalidateSummaries drops the cached summary list. The diary form calls
// this after a successful save so the date picker refreshes.
func (c *Cache) InvalidateSummaries() {
	c.mu.Lock()
	c.summaries = nil
	c.mu.Unlock()
}

// GetByDate returns the cached record for a date, fetching on miss.
func (c *Cache) GetByDate(ctx context.Context, date string) (*models.DailyRecord, error) {
	c.mu.RLock()
	rec := c.records[date]
	c.mu.RUnlock()
	if rec != nil {
		return rec.Clone(), nil
	}

	rec, err := c.src.GetByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.records[date] = rec.Clone()
	c.mu.Unlock()
	return rec, nil
}

// InvalidateRecord drops one date's cached record so the next GetByDate hits
// the source. Long-lived readers call this when another process may have
// written the date in the meantime.
func (c *Cache) InvalidateRecord(date string) {
	c.mu.Lock()
	delete(c.records, date)
	c.mu.Unlock()
}

// UpdateByDate writes through to the source, caches the updated record, and
// drops the summary cache since submission flags likely changed.
func (c *Cache) UpdateByDate(ctx context.Context, date string, update models.DiaryUpdate) (*models.DailyRecord, error) {
	rec, err := c.src.UpdateByDate(ctx, date, update)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.records[date] = rec.Clone()
	c.summaries = nil
	c.mu.Unlock()
	return rec, nil
}

var _ Store = (*Cache)(nil)
