package registry

import "errors"

var (
	// ErrDuplicateType reports an attempt to register a type name that is
	// already registered.
	ErrDuplicateType = errors.New("duplicate type")

	// ErrUnknownType reports a lookup for a type name or id that is not
	// registered, including a descriptor naming an unregistered parent.
	ErrUnknownType = errors.New("unknown type")

	// ErrSchemaCycle reports a parent chain that revisits a type.
	ErrSchemaCycle = errors.New("type parent chain contains a cycle")
)
