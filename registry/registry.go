package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/objectkit/ctxlog"
	"github.com/vk/objectkit/schema"
)

// TypeID is a stable identifier for a registered type. IDs are assigned
// sequentially starting at 1 and remain valid for the registry's lifetime.
type TypeID int

// Type is a handle to a registered type. It carries the frozen descriptor
// plus the resolved property and event tables with inherited schemas
// flattened in, ancestor declarations first.
type Type struct {
	id     TypeID
	parent TypeID // 0 when the type has no parent
	desc   *schema.TypeDescriptor

	props     []schema.PropertySchema
	propIndex map[string]int
	events    []schema.EventSchema
	evIndex   map[string]int
}

// ID returns the type's registry-assigned identifier.
func (t *Type) ID() TypeID { return t.id }

// Name returns the type's registered name.
func (t *Type) Name() string { return t.desc.Name }

// Descriptor returns a deep copy of the descriptor as it was registered,
// without inherited schemas flattened in.
func (t *Type) Descriptor() *schema.TypeDescriptor { return t.desc.Clone() }

// NumProperties returns the number of resolved properties, inherited ones
// included.
func (t *Type) NumProperties() int { return len(t.props) }

// PropertyIndex returns the resolved table index for a property name. The
// index is stable and identifies the property's slot in an instance's value
// table.
func (t *Type) PropertyIndex(name string) (int, bool) {
	i, ok := t.propIndex[name]
	return i, ok
}

// PropertyAt returns the resolved property schema at the given index.
func (t *Type) PropertyAt(i int) *schema.PropertySchema { return &t.props[i] }

// Property returns the resolved schema for a property name.
func (t *Type) Property(name string) (*schema.PropertySchema, bool) {
	if i, ok := t.propIndex[name]; ok {
		return &t.props[i], true
	}
	return nil, false
}

// Properties returns a copy of the resolved property table in resolution
// order (ancestor declarations first).
func (t *Type) Properties() []schema.PropertySchema {
	out := make([]schema.PropertySchema, len(t.props))
	copy(out, t.props)
	return out
}

// Event returns the resolved schema for an event name.
func (t *Type) Event(name string) (*schema.EventSchema, bool) {
	if i, ok := t.evIndex[name]; ok {
		return &t.events[i], true
	}
	return nil, false
}

// Events returns a copy of the resolved event table in resolution order.
func (t *Type) Events() []schema.EventSchema {
	out := make([]schema.EventSchema, len(t.events))
	for i, e := range t.events {
		fields := make([]schema.EventField, len(e.Fields))
		copy(fields, e.Fields)
		out[i] = schema.EventSchema{Name: e.Name, Fields: fields, Description: e.Description}
	}
	return out
}

// Registry is the catalog of registered types for one runtime instance.
// It is an explicit dependency: callers construct one with New and pass it
// to whatever needs type information, which keeps test registries isolated.
//
// Writes are expected during an initialization phase; reads dominate after
// that. An RWMutex serializes the two.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Type
	byID   []*Type // index is TypeID - 1
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byName: make(map[string]*Type),
	}
}

// Register validates the descriptor, resolves its parent, and adds it to
// the catalog, returning the assigned TypeID. Registration is atomic: on
// any error the registry is unchanged and the type is not visible.
//
// The parent named by the descriptor, if any, must already be registered.
func (r *Registry) Register(ctx context.Context, desc *schema.TypeDescriptor) (TypeID, error) {
	if err := desc.Validate(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[desc.Name]; exists {
		return 0, fmt.Errorf("%w: %q is already registered", ErrDuplicateType, desc.Name)
	}

	var parent *Type
	if desc.Parent != "" {
		p, ok := r.byName[desc.Parent]
		if !ok {
			return 0, fmt.Errorf("type %q: parent: %w: %q is not registered",
				desc.Name, ErrUnknownType, desc.Parent)
		}
		parent = p
	}

	t := &Type{
		desc:      desc.Clone(),
		propIndex: make(map[string]int),
		evIndex:   make(map[string]int),
	}
	if parent != nil {
		t.parent = parent.id
		t.props = append(t.props, parent.props...)
		for name, i := range parent.propIndex {
			t.propIndex[name] = i
		}
		t.events = append(t.events, parent.events...)
		for name, i := range parent.evIndex {
			t.evIndex[name] = i
		}
	}
	for _, p := range t.desc.Properties {
		if _, shadowed := t.propIndex[p.Name]; shadowed {
			return 0, fmt.Errorf("%w: type %q: property %q shadows an inherited property",
				schema.ErrInvalidSchema, desc.Name, p.Name)
		}
		t.propIndex[p.Name] = len(t.props)
		t.props = append(t.props, p)
	}
	for _, e := range t.desc.Events {
		if _, shadowed := t.evIndex[e.Name]; shadowed {
			return 0, fmt.Errorf("%w: type %q: event %q shadows an inherited event",
				schema.ErrInvalidSchema, desc.Name, e.Name)
		}
		t.evIndex[e.Name] = len(t.events)
		t.events = append(t.events, e)
	}

	t.id = TypeID(len(r.byID) + 1)
	r.byName[desc.Name] = t
	r.byID = append(r.byID, t)

	ctxlog.FromContext(ctx).Debug("Registered type.",
		"type", desc.Name, "id", int(t.id),
		"properties", len(t.props), "events", len(t.events))
	return t.id, nil
}

// Lookup returns the handle for a registered type name.
func (r *Registry) Lookup(name string) (*Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return t, nil
}

// LookupID returns the handle for a registered TypeID.
func (r *Registry) LookupID(id TypeID) (*Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupIDLocked(id)
}

func (r *Registry) lookupIDLocked(id TypeID) (*Type, error) {
	if id < 1 || int(id) > len(r.byID) {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownType, int(id))
	}
	return r.byID[id-1], nil
}

// IsSubtype reports whether candidate equals ancestor or reaches it by
// following parent links. The traversal is bounded: a parent chain that
// revisits a type fails with ErrSchemaCycle instead of looping.
func (r *Registry) IsSubtype(candidate, ancestor TypeID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, err := r.lookupIDLocked(ancestor); err != nil {
		return false, err
	}
	cur, err := r.lookupIDLocked(candidate)
	if err != nil {
		return false, err
	}

	visited := make(map[TypeID]struct{})
	for {
		if cur.id == ancestor {
			return true, nil
		}
		if cur.parent == 0 {
			return false, nil
		}
		if _, seen := visited[cur.id]; seen {
			return false, fmt.Errorf("%w: revisited type %q", ErrSchemaCycle, cur.Name())
		}
		visited[cur.id] = struct{}{}
		cur, err = r.lookupIDLocked(cur.parent)
		if err != nil {
			return false, err
		}
	}
}

// ListTypes returns deep copies of all registered descriptors in
// registration order, for introspection by binding layers.
func (r *Registry) ListTypes() []*schema.TypeDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*schema.TypeDescriptor, len(r.byID))
	for i, t := range r.byID {
		out[i] = t.desc.Clone()
	}
	return out
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
