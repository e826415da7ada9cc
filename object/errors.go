package object

import "errors"

var (
	// ErrUnknownProperty reports an access to a property the instance's
	// type (including its ancestors) does not declare.
	ErrUnknownProperty = errors.New("unknown property")

	// ErrUnknownEvent reports a subscription or emission for an event the
	// instance's type does not declare.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrImmutableProperty reports a write to a property whose schema
	// marks it non-mutable.
	ErrImmutableProperty = errors.New("immutable property")

	// ErrDisposed reports an operation on an instance after Dispose.
	ErrDisposed = errors.New("object disposed")
)
