package services

import (
	"time"

	"kakeibo/internal/cache"
	"kakeibo/internal/core"
)

// monthSnapshot is everything the dashboard needs for one user and month.
type monthSnapshot struct {
	Categories []core.Category
	Expenses   []core.Expense
	Budgets    []core.Budget
}

// MonthCache keeps month snapshots per user. Any write by a user drops all of
// that user's entries.
type MonthCache struct {
	lru *cache.LRUCache[monthSnapshot]
}

func NewMonthCache(size int, ttl time.Duration) *MonthCache {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MonthCache{lru: cache.NewLRUCache[monthSnapshot](size, ttl)}
}

func monthKey(userID string, ym core.YearMonth) string {
	return userID + "|" + ym.String()
}

func (c *MonthCache) get(userID string, ym core.YearMonth) (monthSnapshot, bool) {
	if c == nil {
		return monthSnapshot{}, false
	}
	return c.lru.Get(monthKey(userID, ym))
}

func (c *MonthCache) set(userID string, ym core.YearMonth, s monthSnapshot) {
	if c == nil {
		return
	}
	c.lru.Set(monthKey(userID, ym), s)
}

// InvalidateUser drops every cached month of userID.
func (c *MonthCache) InvalidateUser(userID string) int {
	if c == nil {
		return 0
	}
	return c.lru.DeletePrefix(userID + "|")
}

func (c *MonthCache) CleanExpired() int {
	if c == nil {
		return 0
	}
	return c.lru.CleanExpired()
}

func (c *MonthCache) Stats() cache.Stats {
	if c == nil {
		return cache.Stats{}
	}
	return c.lru.Stats()
}
