package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/posting"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/walker"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/metrics"
)

// ProgressFunc receives the discovery sequence number of every item whose
// number is a multiple of the configured interval. Workers call it
// concurrently.
type ProgressFunc func(seq int)

// BuildObserver is notified once a build has finished, successfully or not.
type BuildObserver interface {
	BuildFinished(ctx context.Context, result *BuildResult, buildErr error) error
}

// BuildResult summarises one index build.
type BuildResult struct {
	RunID         string        `json:"run_id"`
	IndexDir      string        `json:"index_dir"`
	Sources       []string      `json:"sources"`
	Discovered    int           `json:"discovered"`
	Indexed       int64         `json:"indexed"`
	Skipped       int           `json:"skipped"`
	Ignored       int           `json:"ignored"`
	ReadFailures  int64         `json:"read_failures"`
	Postings      int64         `json:"postings"`
	WriteFailures int64         `json:"write_failures"`
	Keys          int           `json:"keys"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
}

// Engine drives a build: one producer walking the sources, a fixed pool of
// workers draining a bounded queue, and the posting store they write to.
type Engine struct {
	store     *posting.Store
	cfg       config.IndexerConfig
	metrics   *metrics.Metrics
	progress  ProgressFunc
	observers []BuildObserver
	logger    *slog.Logger
}

// job is one queue slot. A job with stop set is the sentinel that ends
// exactly one worker.
type job struct {
	walker.Item
	stop bool
}

type buildCounters struct {
	indexed       atomic.Int64
	readFailures  atomic.Int64
	postings      atomic.Int64
	writeFailures atomic.Int64
}

func NewEngine(cfg config.IndexerConfig, store *posting.Store, m *metrics.Metrics) *Engine {
	if m == nil {
		m = metrics.New()
	}
	return &Engine{
		store:   store,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "indexer"),
	}
}

// OnProgress installs the progress reporter.
func (e *Engine) OnProgress(fn ProgressFunc) {
	e.progress = fn
}

// Observe registers observers run after every build.
func (e *Engine) Observe(observers ...BuildObserver) {
	e.observers = append(e.observers, observers...)
}

// Build indexes every regular file below sources. It returns only after the
// producer has finished, one sentinel per worker has been queued and every
// worker has exited. A fatal worker error cancels the remaining work and is
// returned together with the partial result.
func (e *Engine) Build(ctx context.Context, sources []string) (*BuildResult, error) {
	result := &BuildResult{
		RunID:     uuid.NewString(),
		IndexDir:  e.store.Root(),
		Sources:   sources,
		StartedAt: time.Now(),
	}
	ctx = logger.WithRunID(ctx, result.RunID)
	log := logger.FromContext(ctx).With("component", "indexer")
	log.Info("index build starting",
		"index_dir", result.IndexDir,
		"sources", sources,
		"workers", e.cfg.Workers,
		"queue_size", e.cfg.QueueSize,
		"read_error_policy", e.cfg.ReadErrorPolicy,
	)

	queue := make(chan job, e.cfg.QueueSize)
	var counters buildCounters
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < e.cfg.Workers; i++ {
		workerID := i
		g.Go(func() error {
			return e.work(gctx, workerID, queue, &counters, log)
		})
	}

	stats, walkErr := walker.Walk(gctx, sources, walker.Options{
		IgnoreFile: e.cfg.IgnoreFile,
		OnSkip: func(err error) {
			e.metrics.FilesSkippedTotal.WithLabelValues("traversal").Inc()
			log.Debug("traversal entry skipped", "error", err)
		},
	}, func(it walker.Item) error {
		e.metrics.FilesDiscoveredTotal.Inc()
		return e.send(gctx, queue, job{Item: it})
	})
	if walkErr == nil {
		for i := 0; i < e.cfg.Workers; i++ {
			if err := e.send(gctx, queue, job{stop: true}); err != nil {
				walkErr = err
				break
			}
		}
	}
	err := g.Wait()
	if err == nil && walkErr != nil {
		if walker.IsCancelled(walkErr) {
			err = fmt.Errorf("index build interrupted: %w", walkErr)
		} else {
			err = fmt.Errorf("walking sources: %w", walkErr)
		}
	}

	result.Discovered = stats.Discovered
	result.Skipped = stats.Skipped
	result.Ignored = stats.Ignored
	result.Indexed = counters.indexed.Load()
	result.ReadFailures = counters.readFailures.Load()
	result.Postings = counters.postings.Load()
	result.WriteFailures = counters.writeFailures.Load()
	e.metrics.FilesSkippedTotal.WithLabelValues("ignored").Add(float64(stats.Ignored))

	if err == nil {
		keys, keysErr := e.store.Keys()
		if keysErr != nil {
			err = fmt.Errorf("counting keys: %w", keysErr)
		}
		result.Keys = keys
		e.metrics.IndexKeys.Set(float64(keys))
	}
	result.Duration = time.Since(result.StartedAt)
	e.metrics.BuildDuration.Observe(result.Duration.Seconds())

	if err != nil {
		log.Error("index build failed",
			"error", err,
			"discovered", result.Discovered,
			"indexed", result.Indexed,
		)
	} else {
		log.Info("index build complete",
			"discovered", result.Discovered,
			"indexed", result.Indexed,
			"postings", result.Postings,
			"write_failures", result.WriteFailures,
			"keys", result.Keys,
			"duration", result.Duration,
		)
	}
	e.notify(context.WithoutCancel(ctx), result, err, log)
	return result, err
}

func (e *Engine) send(ctx context.Context, queue chan<- job, j job) error {
	select {
	case queue <- j:
		e.metrics.QueueDepth.Set(float64(len(queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) work(ctx context.Context, workerID int, queue <-chan job, c *buildCounters, log *slog.Logger) error {
	e.metrics.WorkersActive.Inc()
	defer e.metrics.WorkersActive.Dec()
	log = log.With("worker", workerID)
	for {
		select {
		case <-ctx.Done():
			log.Debug("worker cancelled")
			return nil
		case j := <-queue:
			e.metrics.QueueDepth.Set(float64(len(queue)))
			if j.stop {
				log.Debug("worker received sentinel")
				return nil
			}
			if err := e.visit(j.Item, c, log); err != nil {
				return err
			}
		}
	}
}

// visit tokenizes one document and appends a posting for every distinct
// token. Posting write failures are warnings; read failures follow the
// configured policy.
func (e *Engine) visit(it walker.Item, c *buildCounters, log *slog.Logger) error {
	if e.cfg.ProgressEvery > 0 && it.Seq%e.cfg.ProgressEvery == 0 {
		log.Info("progress", "seq", it.Seq)
		if e.progress != nil {
			e.progress(it.Seq)
		}
	}

	text, err := readDocument(it.Path)
	if err != nil {
		c.readFailures.Add(1)
		e.metrics.DocumentReadFailures.Inc()
		if e.cfg.ReadErrorPolicy == config.ReadErrorSkip {
			e.metrics.FilesSkippedTotal.WithLabelValues("read_error").Inc()
			log.Warn("skipping unreadable document", "path", it.Path, "error", err)
			return nil
		}
		return err
	}

	for token := range tokenizer.Tokenize(text) {
		if err := e.store.Add(token, it.Path); err != nil {
			c.writeFailures.Add(1)
			e.metrics.PostingWriteFailures.Inc()
			log.Warn("could not append posting", "token", token, "path", it.Path, "error", err)
			continue
		}
		c.postings.Add(1)
		e.metrics.PostingsAppendedTotal.Inc()
	}
	c.indexed.Add(1)
	e.metrics.FilesIndexedTotal.Inc()
	return nil
}

func (e *Engine) notify(ctx context.Context, result *BuildResult, buildErr error, log *slog.Logger) {
	for _, obs := range e.observers {
		if err := obs.BuildFinished(ctx, result, buildErr); err != nil {
			log.Warn("build observer failed", "observer", fmt.Sprintf("%T", obs), "error", err)
		}
	}
}

func readDocument(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperrors.New(apperrors.KindDocumentRead, "read document", path, err)
	}
	if !utf8.Valid(data) {
		return "", apperrors.New(apperrors.KindDocumentRead, "read document", path, apperrors.ErrNotText)
	}
	return string(data), nil
}
