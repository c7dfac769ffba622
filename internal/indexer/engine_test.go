package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/posting"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/metrics"
)

func testConfig(dataDir string) config.IndexerConfig {
	cfg := config.Default().Indexer
	cfg.DataDir = dataDir
	return cfg
}

func newTestEngine(t *testing.T, cfg config.IndexerConfig) (*Engine, *posting.Store, *metrics.Metrics) {
	t.Helper()
	store, err := posting.Open(cfg.DataDir)
	require.NoError(t, err)
	m := metrics.New()
	return NewEngine(cfg, store, m), store, m
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func keysOf(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type recordingObserver struct {
	mu      sync.Mutex
	results []*BuildResult
	errs    []error
}

func (r *recordingObserver) BuildFinished(_ context.Context, result *BuildResult, buildErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	r.errs = append(r.errs, buildErr)
	return nil
}

func TestBuildIndexesEveryToken(t *testing.T) {
	src := t.TempDir()
	a := filepath.Join(src, "a.txt")
	b := filepath.Join(src, "b.txt")
	writeFile(t, a, "apple banana")
	writeFile(t, b, "apple cherry")

	engine, store, m := newTestEngine(t, testConfig(t.TempDir()))
	result, err := engine.Build(context.Background(), []string{src})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Discovered)
	assert.EqualValues(t, 2, result.Indexed)
	assert.EqualValues(t, 4, result.Postings)
	assert.Equal(t, 3, result.Keys)
	assert.NotEmpty(t, result.RunID)

	apple, err := store.Get("apple")
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, keysOf(apple))

	cherry, err := store.Get("cherry")
	require.NoError(t, err)
	assert.Equal(t, []string{b}, keysOf(cherry))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FilesIndexedTotal))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.PostingsAppendedTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.IndexKeys))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.WorkersActive), "all workers exited")
}

func TestBuildEmptySourceReportsZeroKeys(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig(t.TempDir()))
	result, err := engine.Build(context.Background(), []string{t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Keys)
	assert.Zero(t, result.Discovered)
}

func TestBuildFoldsCaseIntoOneKey(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "upper.txt"), "Apple")
	writeFile(t, filepath.Join(src, "lower.txt"), "apple")

	engine, store, _ := newTestEngine(t, testConfig(t.TempDir()))
	result, err := engine.Build(context.Background(), []string{src})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Keys)

	got, err := store.Get("apple")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRebuildIsReadIdempotent(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "apple banana apple")

	engine, store, _ := newTestEngine(t, testConfig(t.TempDir()))
	_, err := engine.Build(context.Background(), []string{src})
	require.NoError(t, err)
	first, err := store.Get("apple")
	require.NoError(t, err)

	_, err = engine.Build(context.Background(), []string{src})
	require.NoError(t, err)
	second, err := store.Get("apple")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	raw, err := os.ReadFile(filepath.Join(store.Root(), "apple"))
	require.NoError(t, err)
	assert.Len(t, raw, 2*len(filepath.Join(src, "a.txt")+"\n"), "postings grow across builds")
}

func TestBuildManyFilesSmallQueue(t *testing.T) {
	src := t.TempDir()
	const files = 250
	for i := 0; i < files; i++ {
		writeFile(t, filepath.Join(src, fmt.Sprintf("d%02d", i%7), fmt.Sprintf("f%03d.txt", i)),
			fmt.Sprintf("common unique%d", i))
	}
	cfg := testConfig(t.TempDir())
	cfg.QueueSize = 1
	cfg.Workers = 4

	engine, store, _ := newTestEngine(t, cfg)
	result, err := engine.Build(context.Background(), []string{src})
	require.NoError(t, err)
	assert.EqualValues(t, files, result.Indexed)
	assert.Equal(t, files+1, result.Keys)

	common, err := store.Get("common")
	require.NoError(t, err)
	assert.Len(t, common, files)
}

func TestBuildReportsProgressOnDiscoveryMultiples(t *testing.T) {
	src := t.TempDir()
	for i := 0; i < 7; i++ {
		writeFile(t, filepath.Join(src, fmt.Sprintf("%d.txt", i)), "x")
	}
	cfg := testConfig(t.TempDir())
	cfg.ProgressEvery = 3

	engine, _, _ := newTestEngine(t, cfg)
	var mu sync.Mutex
	var seen []int
	engine.OnProgress(func(seq int) {
		mu.Lock()
		seen = append(seen, seq)
		mu.Unlock()
	})
	_, err := engine.Build(context.Background(), []string{src})
	require.NoError(t, err)
	sort.Ints(seen)
	assert.Equal(t, []int{3, 6}, seen)
}

func TestBuildFailsFastOnUnreadableDocument(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "good.txt"), "apple")
	writeFile(t, filepath.Join(src, "binary.bin"), "\xff\xfe\x00junk")

	cfg := testConfig(t.TempDir())
	engine, _, m := newTestEngine(t, cfg)
	obs := &recordingObserver{}
	engine.Observe(obs)

	result, err := engine.Build(context.Background(), []string{src})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindDocumentRead, apperrors.KindOf(err))
	assert.ErrorIs(t, err, apperrors.ErrNotText)
	assert.True(t, apperrors.IsFatal(err))
	assert.EqualValues(t, 1, result.ReadFailures)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocumentReadFailures))

	require.Len(t, obs.errs, 1)
	assert.Error(t, obs.errs[0], "observers see the failed build")
}

func TestBuildSkipPolicyContinues(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "good.txt"), "apple")
	writeFile(t, filepath.Join(src, "binary.bin"), "\xff\xfe\x00junk")

	cfg := testConfig(t.TempDir())
	cfg.ReadErrorPolicy = config.ReadErrorSkip
	engine, store, _ := newTestEngine(t, cfg)

	result, err := engine.Build(context.Background(), []string{src})
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.Indexed)
	assert.EqualValues(t, 1, result.ReadFailures)
	assert.Equal(t, 1, result.Keys)

	got, err := store.Get("apple")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestBuildContinuesPastPostingWriteFailure(t *testing.T) {
	src := t.TempDir()
	doc := filepath.Join(src, "a.txt")
	writeFile(t, doc, "apple banana")

	cfg := testConfig(t.TempDir())
	engine, store, m := newTestEngine(t, cfg)
	require.NoError(t, os.Mkdir(filepath.Join(cfg.DataDir, "apple"), 0o755))

	result, err := engine.Build(context.Background(), []string{src})
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.WriteFailures)
	assert.EqualValues(t, 1, result.Postings)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PostingWriteFailures))

	banana, err := store.Get("banana")
	require.NoError(t, err)
	assert.Equal(t, []string{doc}, keysOf(banana))
}

func TestBuildStopsWhenContextCancelled(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "apple")

	engine, _, _ := newTestEngine(t, testConfig(t.TempDir()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Build(ctx, []string{src})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildNotifiesObservers(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "apple")

	engine, _, _ := newTestEngine(t, testConfig(t.TempDir()))
	obs := &recordingObserver{}
	engine.Observe(obs)

	result, err := engine.Build(context.Background(), []string{src})
	require.NoError(t, err)
	require.Len(t, obs.results, 1)
	assert.Same(t, result, obs.results[0])
	assert.NoError(t, obs.errs[0])
}

func BenchmarkBuild(b *testing.B) {
	src := b.TempDir()
	for i := 0; i < 200; i++ {
		path := filepath.Join(src, fmt.Sprintf("doc-%d.txt", i))
		require.NoError(b, os.WriteFile(path, []byte("distributed search engine with inverted index and posting files"), 0o644))
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store, err := posting.Open(filepath.Join(b.TempDir(), "idx"))
		require.NoError(b, err)
		cfg := config.Default().Indexer
		cfg.DataDir = store.Root()
		if _, err := NewEngine(cfg, store, metrics.New()).Build(context.Background(), []string{src}); err != nil {
			b.Fatal(err)
		}
	}
}
