package rag

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch reports a vector whose dimensionality does not
	// match the index, or an Add where vector and chunk counts differ.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrIndexNotReady reports a search against an index that has not been
	// built, or whose corpus changed since the last build.
	ErrIndexNotReady = errors.New("index not ready")
)

func dimensionError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDimensionMismatch, fmt.Sprintf(format, args...))
}
