package graphview

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below report errors.Is against these so
// callers can branch on the error kind without a type switch.
var (
	// ErrMalformedEncoding is the kind of every MalformedEncodingError.
	ErrMalformedEncoding = errors.New("graphview: malformed encoding")

	// ErrSchemaMismatch is the kind of every SchemaMismatchError.
	ErrSchemaMismatch = errors.New("graphview: schema mismatch")
)

// Causes attached to MalformedEncodingError.
var (
	errNotArray    = errors.New("not a JSON array")
	errNotObject   = errors.New("not a JSON object")
	errMissingSink = errors.New("missing " + SinkField + " field")
	errMissingID   = errors.New("no entity id")
)

// MalformedEncodingError is returned when an adjacency list, path column or
// raw item payload cannot be parsed into the structured form it must have.
type MalformedEncodingError struct {
	What  string // what was being decoded, e.g. "adjacency list"
	Input string // offending input, truncated for logging
	Err   error  // underlying cause, may be nil
}

func malformed(what, input string, cause error) *MalformedEncodingError {
	return &MalformedEncodingError{What: what, Input: truncate(input, 120), Err: cause}
}

func (e *MalformedEncodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("graphview: malformed %s %q: %v", e.What, e.Input, e.Err)
	}
	return fmt.Sprintf("graphview: malformed %s %q", e.What, e.Input)
}

func (e *MalformedEncodingError) Unwrap() error { return e.Err }

func (e *MalformedEncodingError) Is(target error) bool { return target == ErrMalformedEncoding }

// SchemaMismatchError is returned when a referenced column is absent from the
// active header, a position falls outside it, or a record's width disagrees
// with the header width it is checked against.
type SchemaMismatchError struct {
	Column   string // column name, empty when the problem is positional
	Position int    // offending position, -1 when not applicable
	Want     int    // expected width, when the mismatch is a width mismatch
	Got      int
	Reason   string
}

func (e *SchemaMismatchError) Error() string {
	switch {
	case e.Column != "":
		return fmt.Sprintf("graphview: schema mismatch: column %q %s", e.Column, e.Reason)
	case e.Want != e.Got:
		return fmt.Sprintf("graphview: schema mismatch: %s (want %d, got %d)", e.Reason, e.Want, e.Got)
	default:
		return fmt.Sprintf("graphview: schema mismatch: position %d %s", e.Position, e.Reason)
	}
}

func (e *SchemaMismatchError) Is(target error) bool { return target == ErrSchemaMismatch }

func positionError(pos int, reason string) *SchemaMismatchError {
	return &SchemaMismatchError{Position: pos, Reason: reason}
}

func widthError(want, got int, reason string) *SchemaMismatchError {
	return &SchemaMismatchError{Position: -1, Want: want, Got: got, Reason: reason}
}

// UpstreamOperatorError is available to StepOperator implementations that
// want to tag their failures with the operator name. The engine itself never
// wraps step-operator errors: whatever the cursor reports is returned as is.
type UpstreamOperatorError struct {
	Operator string
	Err      error
}

func (e *UpstreamOperatorError) Error() string {
	return fmt.Sprintf("graphview: step operator %s: %v", e.Operator, e.Err)
}

func (e *UpstreamOperatorError) Unwrap() error { return e.Err }

// truncate shortens s to maxLen bytes for error messages and logs.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
