package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/posting"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

const defaultRunsLimit = 20

// index builds or extends the index at args[0] from the directories that
// follow it.
func (a *app) index(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("index needs an index directory and at least one source: %w", apperrors.ErrUsage)
	}
	store, err := posting.Open(args[0])
	if err != nil {
		return err
	}
	engine := indexer.NewEngine(a.cfg.Indexer, store, a.metrics)
	engine.OnProgress(func(seq int) {
		a.println("progress = %d", seq)
	})
	engine.Observe(a.buildObservers(ctx, store.Root())...)

	result, err := engine.Build(ctx, args[1:])
	if err != nil {
		return err
	}
	a.println("keys: %d", result.Keys)
	return nil
}

func (a *app) search(ctx context.Context, args []string) error {
	plan := parser.Parse(args)
	if plan.Empty() {
		return nil
	}
	store := posting.New(a.cfg.Indexer.DataDir)
	ex := executor.New(store, a.cfg.Search.Concurrency, a.metrics)
	compute := func() (*executor.SearchResult, error) {
		return ex.Execute(ctx, plan)
	}

	var result *executor.SearchResult
	var err error
	if client := a.redis(ctx); client != nil {
		qc := cache.New(client, store.Root(), a.cfg.Redis.CacheTTL, a.metrics)
		result, _, err = qc.GetOrCompute(ctx, plan, compute)
	} else {
		result, err = compute()
	}
	if err != nil {
		return err
	}
	for _, doc := range result.Documents {
		a.println("%s", doc)
	}
	return nil
}

// keys lists the decoded token catalog of the index.
func (a *app) keys(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("keys takes no arguments: %w", apperrors.ErrUsage)
	}
	tokens, err := posting.New(a.cfg.Indexer.DataDir).Tokens()
	if err != nil {
		return err
	}
	for _, token := range tokens {
		a.println("%s", token)
	}
	return nil
}

func (a *app) runs(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	limit := fs.Int("limit", defaultRunsLimit, "number of runs to list")
	if err := fs.Parse(args); err != nil || fs.NArg() != 0 || *limit <= 0 {
		return fmt.Errorf("runs [-limit n]: %w", apperrors.ErrUsage)
	}
	if !a.cfg.Postgres.Enabled {
		return fmt.Errorf("run history needs postgres.enabled: %w", apperrors.ErrServiceDisabled)
	}
	store, err := a.postgres(ctx)
	if err != nil {
		return err
	}
	recent, err := store.Recent(ctx, *limit)
	if err != nil {
		return err
	}

	a.outMu.Lock()
	defer a.outMu.Unlock()
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN_ID\tSTATUS\tSTARTED\tDURATION\tINDEXED\tKEYS\tINDEX_DIR")
	for _, r := range recent {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.RunID, r.Status, r.StartedAt.Format(time.RFC3339), r.Duration.Round(time.Millisecond),
			r.Indexed, r.Keys, r.IndexDir)
	}
	return tw.Flush()
}
