package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/notify"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/runs"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/textindex/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/resilience"
)

const (
	shutdownTimeout = 5 * time.Second
	publishTimeout  = 10 * time.Second
)

// app holds the per-invocation wiring shared by the subcommands.
type app struct {
	cfg     *config.Config
	metrics *metrics.Metrics

	outMu sync.Mutex
	out   io.Writer

	closers []func() error
}

func newApp(cfg *config.Config, out io.Writer) *app {
	a := &app{
		cfg:     cfg,
		metrics: metrics.New(),
		out:     out,
	}
	if cfg.Metrics.Enabled {
		shutdown := a.metrics.StartServer(cfg.Metrics.Port)
		a.closers = append(a.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return shutdown(ctx)
		})
	}
	return a
}

// println writes one line of command output. Progress lines come from
// several workers at once.
func (a *app) println(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format+"\n", args...)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("shutdown step failed", "error", err)
		}
	}
}

// redis returns a connected client or nil when caching is disabled or
// Redis cannot be reached. Searches and builds never fail on the cache.
func (a *app) redis(ctx context.Context) *pkgredis.Client {
	if !a.cfg.Redis.Enabled {
		return nil
	}
	client, err := pkgredis.NewClient(ctx, a.cfg.Redis)
	if err != nil {
		slog.Warn("query cache disabled", "error", err)
		return nil
	}
	a.closers = append(a.closers, client.Close)
	return client
}

func (a *app) postgres(ctx context.Context) (*runs.Store, error) {
	db, err := postgres.New(ctx, a.cfg.Postgres)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	store := runs.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// buildObservers wires the optional services that react to finished
// builds. A service that cannot be reached is logged and left out.
func (a *app) buildObservers(ctx context.Context, indexRoot string) []indexer.BuildObserver {
	var observers []indexer.BuildObserver
	if client := a.redis(ctx); client != nil {
		observers = append(observers, cache.New(client, indexRoot, a.cfg.Redis.CacheTTL, a.metrics))
	}
	if a.cfg.Kafka.Enabled {
		producer := kafka.NewProducer(a.cfg.Kafka, a.cfg.Kafka.Topics.IndexComplete)
		a.closers = append(a.closers, producer.Close)
		retry := resilience.DefaultRetryConfig()
		retry.AttemptTimeout = publishTimeout
		observers = append(observers, notify.New(producer, retry))
	}
	if a.cfg.Postgres.Enabled {
		store, err := a.postgres(ctx)
		if err != nil {
			slog.Warn("run history disabled", "error", err)
		} else {
			observers = append(observers, store)
		}
	}
	return observers
}
