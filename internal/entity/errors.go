package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers bad identifiers, out-of-bounds tiles and formats
	// unsupported by the addressed endpoint.
	ErrNotFound = errors.New("resource not found")

	// ErrUpstreamIO means a source or configured cache is unreachable.
	// Terminal for the request, never retried here.
	ErrUpstreamIO = errors.New("upstream I/O failure")

	// ErrCacheMiss is returned by cache reads when no entry exists.
	ErrCacheMiss = errors.New("cache entry not found")
)

// AccessDeniedError carries an HTTP-style status and, for challenge flows,
// a challenge value and optional redirect location.
type AccessDeniedError struct {
	Status    int
	Challenge string
	Location  string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied (status %d)", e.Status)
}
