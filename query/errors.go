package query

import (
	"errors"
	"fmt"

	"github.com/graphbound/neogm/graph"
)

// ErrQueryFailed indicates that a query failed, either at the protocol level
// or through the Gremlin error-marker heuristic. Match it with errors.Is();
// the concrete *Error carries the offending query and parameters.
var ErrQueryFailed = errors.New("query: execution failed")

// Error is a query failure with diagnostic context.
type Error struct {
	// Dialect is the query dialect that was executed.
	Dialect graph.Dialect

	// Text is the offending query text.
	Text string

	// Params contains the bound parameters of the offending query.
	Params map[string]any

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Params) > 0 {
		return fmt.Sprintf("%s query failed: %v (query: %s, params: %v)",
			e.Dialect, e.Err, e.Text, e.Params)
	}
	return fmt.Sprintf("%s query failed: %v (query: %s)", e.Dialect, e.Err, e.Text)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports true for ErrQueryFailed, so callers can match the failure kind
// without knowing the concrete type.
func (e *Error) Is(target error) bool { return target == ErrQueryFailed }
