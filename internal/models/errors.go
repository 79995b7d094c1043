package models

import "errors"

// Sentinel error kinds shared by the mutation, editing, and codec
// layers. Callers classify failures with errors.Is; messages carry
// the specifics.
var (
	// ErrInvalidGeometry is returned when a geometry payload violates
	// its kind invariants (vertex count, negative radius, kind
	// mismatch).
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrMalformedInput is returned when input data cannot be
	// interpreted: undecodable files, bad coordinate arrays, colors
	// that are not #RRGGBB.
	ErrMalformedInput = errors.New("malformed input")

	// ErrUnsupportedKind is returned when an operation is applied to
	// an annotation kind that does not support it, such as vertex
	// insertion on a circle.
	ErrUnsupportedKind = errors.New("unsupported kind")
)
