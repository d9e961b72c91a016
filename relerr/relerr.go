// Package relerr declares the configuration-error taxonomy for the
// relational feature engineering engine (spec.md §7). Every kind here is
// raised at construction time — never on the fit/transform hot path — and
// is meant to surface as a user-facing validation failure in whatever
// pipeline embeds this engine.
package relerr

import (
	"fmt"

	"gopkg.in/src-d/go-errors.v1"
)

var (
	// ErrUnknownAggregationKind is raised when a caller names an
	// aggregation kind outside the set enumerated in spec.md §6.
	ErrUnknownAggregationKind = errors.NewKind("unknown aggregation kind: %s")

	// ErrIncompatibleDataSource is raised when a value provider is bound
	// to an aggregation kind that cannot consume its values (e.g. a text
	// column handed to AVG).
	ErrIncompatibleDataSource = errors.NewKind("aggregation %s cannot consume data source %s")

	// ErrColumnNotFound is raised when a configured column name does not
	// exist on the table it is supposed to belong to.
	ErrColumnNotFound = errors.NewKind("column %q not found on table %q")

	// ErrUnknownDataSourceTag is raised while deserializing a persisted
	// tree whose data_used_ tag is not one of the documented values.
	ErrUnknownDataSourceTag = errors.NewKind("unknown data_used_ tag: %d")

	// ErrMalformedTree is raised when a persisted tree's JSON is
	// structurally invalid (missing child, inconsistent leaf/split state).
	ErrMalformedTree = errors.NewKind("malformed persisted tree: %s")

	// ErrSameUnitMismatch is raised when a same-unit declaration pairs
	// columns whose kinds are incompatible (e.g. numerical vs categorical).
	ErrSameUnitMismatch = errors.NewKind("same-unit columns %q and %q have incompatible kinds")
)

// Invariant panics with a formatted message if cond is false. It is the
// single call site used to flag programmer-invariant violations (spec.md
// §7): double activation, deactivating a match with a zero count, or a
// match-pointer scan crossing an ix_population boundary. These are never
// recoverable and are never wrapped in an error return.
func Invariant(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(newInvariantViolation(format, args...))
	}
}

// InvariantViolation is the panic value raised by Invariant.
type InvariantViolation struct {
	msg string
}

func (e *InvariantViolation) Error() string { return e.msg }

func newInvariantViolation(format string, args ...interface{}) *InvariantViolation {
	return &InvariantViolation{msg: fmt.Sprintf(format, args...)}
}
