// Package posting implements the persistent multimap behind the index: one
// append-only file per case-folded token under an index root, each line a
// document path. A missing file means the token has no postings.
package posting

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/cespare/xxhash/v2"

	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

const lockStripes = 64

// maxLineSize bounds a single document path read back from a posting file.
const maxLineSize = 1 << 20

var errNewlineInPath = errors.New("document path contains a newline")

// Store is a handle on one index root. It holds no per-caller state and is
// shared by every build worker.
type Store struct {
	root   string
	locks  [lockStripes]sync.Mutex
	logger *slog.Logger
}

// Open returns a Store for root, creating the directory if it is absent.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperrors.New(apperrors.KindConfig, "create index root", root, err)
	}
	return New(root), nil
}

// New returns a Store for root without touching the filesystem. Reads from a
// root that does not exist yet see no postings.
func New(root string) *Store {
	return &Store{
		root:   root,
		logger: slog.Default().With("component", "posting-store", "root", root),
	}
}

// Root returns the index root directory.
func (s *Store) Root() string {
	return s.root
}

// KeyPath resolves a token to the path of its posting file.
func (s *Store) KeyPath(token string) (string, error) {
	key := FoldKey(token)
	if key == "" {
		return "", apperrors.New(apperrors.KindInvalidQuery, "resolve key", token, apperrors.ErrInvalidKey)
	}
	return filepath.Join(s.root, EscapeKey(key)), nil
}

// Get returns the set of document paths recorded for token. Duplicate lines
// left by repeated builds collapse into one entry.
func (s *Store) Get(token string) (map[string]struct{}, error) {
	values := make(map[string]struct{})
	path, err := s.KeyPath(token)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		// A key too long for a file name can never have been written.
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENAMETOOLONG) {
			return values, nil
		}
		return nil, apperrors.New(apperrors.KindPostingRead, "open posting file", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		values[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.New(apperrors.KindPostingRead, "read posting file", path, err)
	}
	return values, nil
}

// Add appends docPath to the posting file of token, creating the file on
// first use. The line goes out in a single write on an O_APPEND descriptor,
// and appends to the same key are serialised through a striped lock.
func (s *Store) Add(token, docPath string) error {
	path, err := s.KeyPath(token)
	if err != nil {
		return apperrors.New(apperrors.KindPostingWrite, "resolve key", token, err)
	}
	if strings.ContainsRune(docPath, '\n') {
		return apperrors.New(apperrors.KindPostingWrite, "append posting", path, errNewlineInPath)
	}

	mu := &s.locks[xxhash.Sum64String(path)%lockStripes]
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return apperrors.New(apperrors.KindPostingWrite, "open posting file", path, err)
	}
	if _, err := f.WriteString(docPath + "\n"); err != nil {
		f.Close()
		return apperrors.New(apperrors.KindPostingWrite, "append posting", path, err)
	}
	if err := f.Close(); err != nil {
		return apperrors.New(apperrors.KindPostingWrite, "close posting file", path, err)
	}
	return nil
}

// Keys returns the number of posting files in the index root.
func (s *Store) Keys() (int, error) {
	entries, err := s.readRoot()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			n++
		}
	}
	return n, nil
}

// Tokens returns the decoded storage keys of every posting file, sorted.
// File names that do not decode are reported and skipped.
func (s *Store) Tokens() ([]string, error) {
	entries, err := s.readRoot()
	if err != nil {
		return nil, err
	}
	tokens := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		key, err := UnescapeKey(entry.Name())
		if err != nil {
			s.logger.Warn("skipping undecodable posting file", "name", entry.Name(), "error", err)
			continue
		}
		tokens = append(tokens, key)
	}
	sort.Strings(tokens)
	return tokens, nil
}

func (s *Store) readRoot() ([]fs.DirEntry, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, apperrors.New(apperrors.KindPostingRead, "read index root", s.root, fmt.Errorf("listing keys: %w", err))
	}
	return entries, nil
}
