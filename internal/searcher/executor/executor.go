package executor

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/posting"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/metrics"
)

// PostingReader is the read side of the posting store.
type PostingReader interface {
	Get(token string) (map[string]struct{}, error)
}

type SearchResult struct {
	Query     string         `json:"query"`
	TotalHits int            `json:"total_hits"`
	Documents []string       `json:"documents"`
	TermStats map[string]int `json:"term_stats"`
}

type Executor struct {
	store       PostingReader
	concurrency int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

type termPostings struct {
	key  string
	docs map[string]struct{}
}

func New(store PostingReader, concurrency int, m *metrics.Metrics) *Executor {
	if concurrency <= 0 {
		concurrency = 1
	}
	if m == nil {
		m = metrics.New()
	}
	return &Executor{
		store:       store,
		concurrency: concurrency,
		metrics:     m,
		logger:      slog.Default().With("component", "query-executor"),
	}
}

// Execute resolves plan to the documents containing every inclusion term and
// none of the exclusion terms. Documents are returned sorted.
func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan) (*SearchResult, error) {
	start := time.Now()
	if plan.Empty() {
		e.metrics.SearchQueriesTotal.WithLabelValues("empty").Inc()
		return &SearchResult{
			Query:     plan.RawQuery,
			Documents: []string{},
			TermStats: map[string]int{},
		}, nil
	}
	if !plan.HasInclusion() {
		e.metrics.SearchQueriesTotal.WithLabelValues("invalid").Inc()
		return nil, apperrors.New(apperrors.KindInvalidQuery, "evaluate query", plan.RawQuery, apperrors.ErrNoInclusionTerm)
	}

	postings, err := e.fetch(ctx, plan)
	if err != nil {
		e.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	matched := evaluate(plan.Terms, postings)
	docs := make([]string, 0, len(matched))
	for doc := range matched {
		docs = append(docs, doc)
	}
	sort.Strings(docs)

	termStats := make(map[string]int, len(postings))
	for key, set := range postings {
		termStats[key] = len(set)
	}

	resultType := "hit"
	if len(docs) == 0 {
		resultType = "zero_result"
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	e.metrics.SearchLatency.Observe(time.Since(start).Seconds())
	e.metrics.SearchResultsCount.Observe(float64(len(docs)))
	e.logger.Info("query executed",
		"query", plan.RawQuery,
		"terms", len(plan.Terms),
		"results", len(docs),
		"duration", time.Since(start),
	)
	return &SearchResult{
		Query:     plan.RawQuery,
		TotalHits: len(docs),
		Documents: docs,
		TermStats: termStats,
	}, nil
}

// fetch reads the posting set of every distinct folded key concurrently.
// The first read error cancels the outstanding reads.
func (e *Executor) fetch(ctx context.Context, plan *parser.QueryPlan) (map[string]map[string]struct{}, error) {
	seen := make(map[string]struct{}, len(plan.Terms))
	p := pool.NewWithResults[termPostings]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(e.concurrency)
	for _, term := range plan.Terms {
		key := posting.FoldKey(term.Token)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		p.Go(func(ctx context.Context) (termPostings, error) {
			if err := ctx.Err(); err != nil {
				return termPostings{}, err
			}
			docs, err := e.store.Get(key)
			if err != nil {
				return termPostings{}, err
			}
			return termPostings{key: key, docs: docs}, nil
		})
	}
	results, err := p.Wait()
	if err != nil {
		return nil, err
	}
	postings := make(map[string]map[string]struct{}, len(results))
	for _, r := range results {
		postings[r.key] = r.docs
	}
	return postings, nil
}

// evaluate folds the terms left to right. The first inclusion term seeds the
// accumulator, later inclusion terms intersect with it and exclusion terms
// subtract from it. Exclusions seen before the seed are applied as soon as
// the seed exists, so the result is always the intersection of the
// inclusion sets minus the union of the exclusion sets.
func evaluate(terms []parser.Term, postings map[string]map[string]struct{}) map[string]struct{} {
	var acc map[string]struct{}
	var pending []map[string]struct{}
	for _, term := range terms {
		docs := postings[posting.FoldKey(term.Token)]
		switch {
		case term.Exclude && acc == nil:
			pending = append(pending, docs)
		case term.Exclude:
			subtract(acc, docs)
		case acc == nil:
			acc = make(map[string]struct{}, len(docs))
			for doc := range docs {
				acc[doc] = struct{}{}
			}
			for _, excluded := range pending {
				subtract(acc, excluded)
			}
			pending = nil
		default:
			intersect(acc, docs)
		}
	}
	if acc == nil {
		return map[string]struct{}{}
	}
	return acc
}

func intersect(acc, docs map[string]struct{}) {
	for doc := range acc {
		if _, ok := docs[doc]; !ok {
			delete(acc, doc)
		}
	}
}

func subtract(acc, docs map[string]struct{}) {
	for doc := range docs {
		delete(acc, doc)
	}
}
