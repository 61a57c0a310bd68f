package feed

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the feed core.
type ErrorKind int

const (
	// KindRemoteFetch covers transport, status and decoding failures of the
	// remote source. Recovered locally by falling back to the store.
	KindRemoteFetch ErrorKind = iota + 1

	// KindPersistence covers store read/write failures. Fatal to the
	// operation, never to the process.
	KindPersistence

	// KindNotFound is an unknown post id. Flag operations treat it as a no-op.
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindRemoteFetch:
		return "remote_fetch"
	case KindPersistence:
		return "persistence"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching on kind.
var (
	ErrRemoteFetch = &Error{Kind: KindRemoteFetch}
	ErrPersistence = &Error{Kind: KindPersistence}
	ErrNotFound    = &Error{Kind: KindNotFound}
)

// Error is a feed failure tagged with its kind and the operation that failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so errors.Is(err, ErrPersistence) works for any
// wrapped persistence failure.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// RemoteFetchError wraps err as a remote fetch failure.
func RemoteFetchError(op string, err error) error {
	return &Error{Kind: KindRemoteFetch, Op: op, Err: err}
}

// PersistenceError wraps err as a store failure. Already-classified errors
// are returned unchanged.
func PersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: KindPersistence, Op: op, Err: err}
}

// KindOf returns the kind of err, or 0 when err is not a feed error.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}
