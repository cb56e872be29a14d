// Package sqltrace carries a per-request collector of executed SQL
// statements through context.Context.
package sqltrace

import (
	"context"
	"sync"
	"time"

	"github.com/Miguel-Alzate/modr/internal/model"
)

// DefaultLimit bounds how many statements one request records.
const DefaultLimit = 200

type collectorKey struct{}

type Collector struct {
	mu      sync.Mutex
	limit   int
	dropped int
	queries []model.QueryInput
}

func NewCollector(limit int) *Collector {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Collector{limit: limit}
}

func (c *Collector) Record(sql string, elapsed time.Duration, at time.Time) {
	if c == nil || sql == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queries) >= c.limit {
		c.dropped++
		return
	}
	c.queries = append(c.queries, model.QueryInput{
		SQL:        sql,
		DurationMs: float64(elapsed.Microseconds()) / 1000,
		ExecutedAt: at,
	})
}

// Queries returns a copy of what was recorded so far.
func (c *Collector) Queries() []model.QueryInput {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.QueryInput, len(c.queries))
	copy(out, c.queries)
	return out
}

func (c *Collector) Dropped() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, collectorKey{}, c)
}

// FromContext returns the collector attached to ctx, or nil.
func FromContext(ctx context.Context) *Collector {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(collectorKey{}).(*Collector)
	return c
}
