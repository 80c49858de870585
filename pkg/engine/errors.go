package engine

import (
	"errors"
	"fmt"

	"github.com/deepskilling/deepgraph/pkg/lock"
	"github.com/deepskilling/deepgraph/pkg/txn"
)

// Kind classifies an engine error by what went wrong, not by which
// operation raised it (spec.md §7: "Error taxonomy (kind, not name)").
// Callers branch on Kind via Is, never on an error's formatted message.
type Kind int

const (
	// KindNotFound: a modification targeted an unknown id. Reads never use
	// this — a lookup miss is surfaced as ordinary absence (ok=false), not
	// an error.
	KindNotFound Kind = iota
	// KindConflict: a lock-would-deadlock or optimistic validation failure;
	// the victim transaction has already been aborted.
	KindConflict
	// KindInvalidArgument: unparseable Cypher, an empty/whitespace query, a
	// malformed property value, a duplicate index name at creation, or an
	// unknown index name at drop.
	KindInvalidArgument
	// KindInvalidState: commit/abort on an already-terminal or unknown
	// transaction, a double index-drop race, or an operation issued after
	// clear() mid-flight.
	KindInvalidState
	// KindDurability: a WAL read/write/CRC error, a corrupt segment
	// header, or page-store I/O failure.
	KindDurability
	// KindInternal: an invariant violation. Should never be reached; if it
	// is, the engine fails closed rather than returning a partial result.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindInvalidState:
		return "InvalidState"
	case KindDurability:
		return "Durability"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is the engine's single error type, tagging every failure with a
// Kind alongside the operation name and underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("engine: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is an *Error of the given kind, unwrapping
// through any wrapper errors along the way.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// classifyTxnErr maps an error surfaced by pkg/lock or pkg/txn to the
// engine's Kind taxonomy, since those packages raise sentinel errors of
// their own rather than engine.Kind values.
func classifyTxnErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, lock.ErrDeadlock) {
		return newError(KindConflict, op, err)
	}
	if errors.Is(err, txn.ErrNoTransaction) || errors.Is(err, txn.ErrTransactionClosed) {
		return newError(KindInvalidState, op, err)
	}
	if errors.Is(err, txn.ErrMetadataTooLarge) {
		return newError(KindInvalidArgument, op, err)
	}
	return newError(KindInternal, op, err)
}
