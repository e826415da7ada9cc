// Package registry provides the process-wide catalog of object types.
//
// A Registry stores type descriptors registered once during an
// initialization phase and read many times thereafter. Registration is
// atomic and strict: a descriptor with an unknown parent, a duplicate type
// name, or an internally inconsistent schema is rejected wholesale, so a
// failed registration is never partially visible to later lookups.
//
// At registration time the registry also resolves inheritance: each
// registered type carries flattened, ancestor-first property and event
// tables with O(1) name lookup, so instances never re-walk the parent chain
// per call.
package registry
