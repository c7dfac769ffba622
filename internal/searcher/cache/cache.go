// Package cache keeps search results in Redis, namespaced per index root, and
// collapses concurrent identical queries into a single evaluation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/textindex/pkg/redis"
)

const keyPrefix = "search:"

// Backend is the subset of the Redis client the cache needs.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	backend   Backend
	ttl       time.Duration
	namespace string
	group     singleflight.Group
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(backend Backend, indexRoot string, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	if m == nil {
		m = metrics.New()
	}
	return &QueryCache{
		backend:   backend,
		ttl:       ttl,
		namespace: Namespace(indexRoot),
		metrics:   m,
		logger:    slog.Default().With("component", "query-cache"),
	}
}

// Namespace is the key prefix shared by every cached result of one index
// root. Relative and absolute spellings of the same root share a namespace.
func Namespace(indexRoot string) string {
	if abs, err := filepath.Abs(indexRoot); err == nil {
		indexRoot = abs
	}
	sum := sha256.Sum256([]byte(filepath.Clean(indexRoot)))
	return keyPrefix + hex.EncodeToString(sum[:8]) + ":"
}

func (c *QueryCache) Get(ctx context.Context, plan *parser.QueryPlan) (*executor.SearchResult, bool) {
	key := c.key(plan)
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	c.metrics.CacheHitsTotal.Inc()
	c.logger.Debug("cache hit", "query", plan.RawQuery, "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, plan *parser.QueryPlan, result *executor.SearchResult) {
	key := c.key(plan)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for plan or evaluates it with
// compute. Errors from compute are returned and never cached. The boolean
// reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	plan *parser.QueryPlan,
	compute func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, plan); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(c.key(plan), func() (interface{}, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, plan, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// BuildFinished invalidates the namespace of the index that was just built.
// Failed builds invalidate too since they may have appended postings.
func (c *QueryCache) BuildFinished(ctx context.Context, result *indexer.BuildResult, _ error) error {
	if result == nil {
		return nil
	}
	return c.invalidate(ctx, Namespace(result.IndexDir))
}

func (c *QueryCache) invalidate(ctx context.Context, namespace string) error {
	deleted, err := c.backend.FlushByPattern(ctx, namespace+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "namespace", namespace, "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) key(plan *parser.QueryPlan) string {
	sum := sha256.Sum256([]byte(plan.Normalized()))
	return c.namespace + hex.EncodeToString(sum[:16])
}
