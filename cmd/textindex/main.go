package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/logger"
)

const usage = `usage:
  textindex [-config file] index <index_directory> <source_directory>...
  textindex [-config file] [-index dir] search <term>...
  textindex [-config file] [-index dir] keys
  textindex [-config file] runs [-limit n]
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("textindex", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "path to config file")
	indexDir := fs.String("index", "", "index directory for search and keys (overrides indexer.dataDir)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "textindex: %v\n", err)
		return apperrors.ExitCode(err)
	}
	logger.SetupWriter(stderr, cfg.Logging.Level, cfg.Logging.Format)
	if *indexDir != "" {
		cfg.Indexer.DataDir = *indexDir
	}

	a := newApp(cfg, stdout)
	defer a.close()

	var cmdErr error
	switch cmd, cmdArgs := rest[0], rest[1:]; cmd {
	case "index":
		cmdErr = a.index(ctx, cmdArgs)
	case "search":
		cmdErr = a.search(ctx, cmdArgs)
	case "keys":
		cmdErr = a.keys(cmdArgs)
	case "runs":
		cmdErr = a.runs(ctx, cmdArgs, stderr)
	default:
		cmdErr = fmt.Errorf("unknown command %q: %w", cmd, apperrors.ErrUsage)
	}
	if cmdErr != nil {
		if errors.Is(cmdErr, apperrors.ErrUsage) {
			fmt.Fprint(stderr, usage)
		}
		fmt.Fprintf(stderr, "textindex: %v\n", cmdErr)
		return apperrors.ExitCode(cmdErr)
	}
	return 0
}
