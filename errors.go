package neogm

import "errors"

// Sentinel errors for common mapper error conditions.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrConfiguration indicates invalid construction arguments, such as a
	// Manager built without a store client.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrMapping indicates that an entity type lacks required metadata, that
	// an entity value is not a pointer, or that a configured repository
	// constructor does not satisfy the repository contract.
	ErrMapping = errors.New("mapping error")

	// ErrNotFound indicates that Find or FindAny matched no node, or that the
	// matched node belongs to a different class than the one requested.
	ErrNotFound = errors.New("entity not found")
)
