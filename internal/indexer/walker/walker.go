// Package walker is the traversal producer of the build pipeline. It walks
// source directories in order and hands every regular file to an emit
// callback together with a discovery sequence number. Unreadable entries
// are skipped; a walk only stops early when emit fails.
package walker

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	ignore "github.com/sabhiram/go-gitignore"

	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// Item is one discovered document. Seq counts discovered files from 1
// across all source directories and is used for progress reporting only.
type Item struct {
	Seq  int
	Path string
}

// Options tune a walk.
type Options struct {
	// IgnoreFile names a gitignore-style file looked up at the root of each
	// source directory. Empty disables ignore handling.
	IgnoreFile string
	// OnSkip, when set, receives a KindTraversal error for every entry the
	// walk had to skip. The walk continues either way.
	OnSkip func(error)
}

// Stats summarises a finished walk.
type Stats struct {
	Discovered int
	Skipped    int
	Ignored    int
}

type walkState struct {
	ctx     context.Context
	root    string
	ignorer *ignore.GitIgnore
	emit    func(Item) error
	onSkip  func(error)
	stats   *Stats
	logger  *slog.Logger
}

// Walk enumerates dirs in order and calls emit for each regular file. It
// returns the first error from emit or from ctx.
func Walk(ctx context.Context, dirs []string, opts Options, emit func(Item) error) (Stats, error) {
	var stats Stats
	logger := slog.Default().With("component", "walker")
	for _, dir := range dirs {
		ws := &walkState{
			ctx:     ctx,
			root:    dir,
			ignorer: loadIgnore(dir, opts.IgnoreFile, logger),
			emit:    emit,
			onSkip:  opts.OnSkip,
			stats:   &stats,
			logger:  logger,
		}
		if err := filepath.WalkDir(dir, ws.visit); err != nil {
			return stats, err
		}
		logger.Debug("source directory walked", "dir", dir, "discovered", stats.Discovered)
	}
	return stats, nil
}

func loadIgnore(dir, name string, logger *slog.Logger) *ignore.GitIgnore {
	if name == "" {
		return nil
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	ig, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		logger.Warn("ignore file unreadable, indexing everything", "path", path, "error", err)
		return nil
	}
	return ig
}

func (ws *walkState) skip(op, path string, err error) {
	ws.stats.Skipped++
	skipErr := apperrors.New(apperrors.KindTraversal, op, path, err)
	ws.logger.Debug("skipping entry", "error", skipErr)
	if ws.onSkip != nil {
		ws.onSkip(skipErr)
	}
}

func (ws *walkState) visit(path string, d fs.DirEntry, err error) error {
	if ctxErr := ws.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		ws.skip("read entry", path, err)
		return nil
	}
	if d.IsDir() {
		if path != ws.root && ws.ignored(path, true) {
			ws.stats.Ignored++
			return filepath.SkipDir
		}
		return nil
	}
	if d.Type()&fs.ModeSymlink != 0 {
		return nil
	}
	info, err := d.Info()
	if err != nil {
		ws.skip("stat entry", path, err)
		return nil
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	if ws.ignored(path, false) {
		ws.stats.Ignored++
		return nil
	}
	ws.stats.Discovered++
	if err := ws.emit(Item{Seq: ws.stats.Discovered, Path: path}); err != nil {
		return err
	}
	return nil
}

func (ws *walkState) ignored(path string, isDir bool) bool {
	if ws.ignorer == nil {
		return false
	}
	rel, err := filepath.Rel(ws.root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if isDir && ws.ignorer.MatchesPath(rel+"/") {
		return true
	}
	return ws.ignorer.MatchesPath(rel)
}

// IsCancelled reports whether err ended a walk because its context was done.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
