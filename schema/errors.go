package schema

import "errors"

// Sentinel errors for schema and value validation. All errors returned by
// this package (and by packages validating values against these schemas)
// wrap one of them, so callers can branch with errors.Is while the message
// carries the type/property/value context.
var (
	// ErrInvalidSchema reports an internally inconsistent schema, such as
	// a default violating its own bounds or a duplicate name within a type.
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrTypeMismatch reports a value whose kind does not match the schema.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrOutOfBounds reports a numeric value outside the schema's
	// inclusive [min, max] range.
	ErrOutOfBounds = errors.New("value out of bounds")
)
