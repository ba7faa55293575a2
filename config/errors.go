package config

import "errors"

var (
	// ErrInvalidConfig indicates the configuration failed validation.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrNoEndpoint indicates no configured endpoint answered a
	// connectivity probe.
	ErrNoEndpoint = errors.New("config: no reachable endpoint")
)
