// Package apperr defines the error taxonomy shared by every layer of the
// pipeline: pool, registry, loader, chain engine, script host and scheduler
// all wrap their underlying error in one of these kinds so callers can branch
// on failure class instead of string-matching messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a coarse error class. It is not a type per value — many different
// Go error values can carry the same Kind.
type Kind string

const (
	KindNotInitialized   Kind = "not_initialized"
	KindAlreadyInitialized Kind = "already_initialized"
	KindInitFailed       Kind = "init_failed"
	KindNoData           Kind = "no_data"
	KindNoSupport        Kind = "no_support"
	KindParsingFail      Kind = "parsing_fail"
	KindInvalidApiCall   Kind = "invalid_api_call"
	KindOverflowMemory   Kind = "overflow_memory"
	KindNotMatchArgs     Kind = "not_match_args"
	KindConnectionLost   Kind = "connection_lost"
	KindCommandRun       Kind = "command_run"
	KindResponseScan     Kind = "response_scan"
	KindSystemCallFail   Kind = "system_call_fail"
	KindThirdLibCallFail Kind = "third_lib_call_fail"
	KindExecuteFail      Kind = "execute_fail"
	KindCritical         Kind = "critical"
	KindMaxSize          Kind = "max_size"
	KindGenFailed        Kind = "gen_failed"
)

// Error wraps a source error with a Kind and the operation that produced it,
// matching spec's "each layer wraps its source error with a context string"
// propagation rule. The chain stays walkable via Unwrap.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a new Error with no wrapped cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Wrap attaches kind and op context to an existing error, preserving it in
// the Unwrap chain. Returns nil if err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or anything in its chain) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Kind == kind {
			return true
		}
		if e.Err == nil {
			return false
		}
		err = e.Err
	}
	return false
}

// KindOf returns the first Kind found in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
