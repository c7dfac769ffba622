// Package errors defines the error taxonomy shared by the indexer and the
// searcher. Every fallible boundary operation reports a Kind, and the Kind
// decides whether the failure is recoverable or aborts the command.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidKey      = errors.New("invalid posting key")
	ErrNotText         = errors.New("document is not valid UTF-8 text")
	ErrNoInclusionTerm = errors.New("query has no inclusion term")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrUsage           = errors.New("usage error")
	ErrServiceDisabled = errors.New("service disabled by configuration")
)

// Kind classifies where a failure happened.
type Kind int

const (
	KindUnknown Kind = iota
	KindTraversal
	KindPostingWrite
	KindDocumentRead
	KindPostingRead
	KindInvalidQuery
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindTraversal:
		return "traversal"
	case KindPostingWrite:
		return "posting_write"
	case KindDocumentRead:
		return "document_read"
	case KindPostingRead:
		return "posting_read"
	case KindInvalidQuery:
		return "invalid_query"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Error carries the Kind of a failure together with the operation and the
// path or key it concerned.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, op, path string, err error) *Error {
	return &Error{
		Kind: kind,
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsFatal reports whether err must stop the running command. Traversal and
// posting-write failures are recoverable; everything else is fatal.
// Document read failures are fatal here and downgraded by the engine when
// it runs with the skip policy.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindTraversal, KindPostingWrite:
		return false
	default:
		return true
	}
}

// ExitCode maps an error to the process exit status used by the CLI.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch {
	case errors.Is(err, ErrUsage), errors.Is(err, ErrNoInclusionTerm):
		return 2
	case KindOf(err) == KindInvalidQuery:
		return 2
	default:
		return 1
	}
}
