// Package domain contains the core domain models for the newsclean engine.
package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a rule or article does not exist.
var ErrNotFound = errors.New("entity not found")

// ErrEmptyTag is returned when a rule mutation omits the tag.
var ErrEmptyTag = errors.New("rule tag is required")

// ErrEmptyText is returned when an article is submitted without text.
var ErrEmptyText = errors.New("article raw_text is required")

// ErrInconsistentAggregate is returned by Aggregator.Verify when the
// incremental counters diverge from a full recompute. Recoverable via
// Recompute.
var ErrInconsistentAggregate = errors.New("aggregate state diverges from recompute")

// InvalidPatternError is returned when a rule pattern fails to compile.
// The pattern is rejected at mutation time and never stored.
type InvalidPatternError struct {
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid rule pattern %q: %v", e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error {
	return e.Err
}

// IsInvalidPattern reports whether err is an InvalidPatternError.
func IsInvalidPattern(err error) bool {
	var ipe *InvalidPatternError
	return errors.As(err, &ipe)
}
