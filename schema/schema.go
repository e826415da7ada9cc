// Package schema defines the immutable shape descriptions for object types:
// typed properties, typed events, and the type descriptors that group them.
//
// A descriptor is plain data until it is handed to a registry; validation
// helpers here check internal consistency (defaults conform to their own
// kind and bounds, names are unique within a type), while cross-type rules
// such as duplicate type names or parent resolution belong to the registry.
package schema

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// Kinds supported for property values and event payload fields. These are
// aliases for the corresponding cty primitive types; values are cty.Value.
var (
	Integer = cty.Number
	Text    = cty.String
	Boolean = cty.Bool
)

// PropertySchema describes a single typed property of an object type.
type PropertySchema struct {
	// Name is the property name, unique within its type (including
	// inherited properties).
	Name string

	// Type is the value kind this property holds.
	Type cty.Type

	// Mutable reports whether the property may be written after
	// construction. Immutable properties can still be set via
	// construction overrides.
	Mutable bool

	// Default is the value an instance starts with when no override is
	// supplied. It must conform to Type and Bounds.
	Default cty.Value

	// Min and Max are optional inclusive bounds, valid only for numeric
	// properties. A nil pointer means unbounded on that side.
	Min *cty.Value
	Max *cty.Value

	// Description is an optional human-readable summary, surfaced through
	// introspection.
	Description string
}

// EventField describes one typed field of an event payload.
type EventField struct {
	Name string
	Type cty.Type
}

// EventSchema describes a single event of an object type and the ordered
// fields its payload must carry.
type EventSchema struct {
	Name        string
	Fields      []EventField
	Description string
}

// Field returns the payload field with the given name.
func (e *EventSchema) Field(name string) (*EventField, bool) {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i], true
		}
	}
	return nil, false
}

// TypeDescriptor is the registerable shape of an object type. Once a
// descriptor is accepted by a registry it is frozen; the registry hands out
// deep copies so callers cannot mutate registered state.
type TypeDescriptor struct {
	// Name uniquely identifies the type within a registry.
	Name string

	// Parent optionally names an already-registered type whose properties
	// and events this type inherits.
	Parent string

	// Properties and Events declared by this type itself, in declaration
	// order. Inherited schemas are not repeated here.
	Properties []PropertySchema
	Events     []EventSchema

	Description string
}

// FieldNewValue is the conventional payload field carrying the new value in
// a property change event.
const FieldNewValue = "new-value"

// FieldOldValue is the optional payload field carrying the previous value.
// Change events carry it only when their schema declares the field.
const FieldOldValue = "old-value"

// ChangeEventName returns the conventional change event name for a
// property: a property named "value" notifies through "value-changed".
func ChangeEventName(property string) string {
	return property + "-changed"
}

// Validate checks that the property schema is internally consistent: the
// name is set, bounds appear only on numeric properties in the right order,
// and the default conforms to the declared kind and bounds.
func (p *PropertySchema) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: property with empty name", ErrInvalidSchema)
	}
	if p.Type == cty.NilType {
		return fmt.Errorf("%w: property %q has no type", ErrInvalidSchema, p.Name)
	}
	if (p.Min != nil || p.Max != nil) && !p.Type.Equals(cty.Number) {
		return fmt.Errorf("%w: property %q: bounds are only valid for %s properties, not %s",
			ErrInvalidSchema, p.Name, cty.Number.FriendlyName(), p.Type.FriendlyName())
	}
	if p.Min != nil && (p.Min.IsNull() || !p.Min.Type().Equals(cty.Number)) {
		return fmt.Errorf("%w: property %q: min bound is not a number", ErrInvalidSchema, p.Name)
	}
	if p.Max != nil && (p.Max.IsNull() || !p.Max.Type().Equals(cty.Number)) {
		return fmt.Errorf("%w: property %q: max bound is not a number", ErrInvalidSchema, p.Name)
	}
	if p.Min != nil && p.Max != nil && p.Max.LessThan(*p.Min).True() {
		return fmt.Errorf("%w: property %q: min bound %v exceeds max bound %v",
			ErrInvalidSchema, p.Name, p.Min.AsBigFloat(), p.Max.AsBigFloat())
	}
	if err := p.Check(p.Default); err != nil {
		return fmt.Errorf("%w: property %q: default value: %v", ErrInvalidSchema, p.Name, err)
	}
	return nil
}

// Check validates a candidate value against the property's kind and bounds.
// It performs no mutation; callers are expected to check fully before they
// commit anything.
func (p *PropertySchema) Check(v cty.Value) error {
	if v.IsNull() {
		return fmt.Errorf("property %q: %w: null value, expected %s",
			p.Name, ErrTypeMismatch, p.Type.FriendlyName())
	}
	if !v.Type().Equals(p.Type) {
		return fmt.Errorf("property %q: %w: expected %s, got %s",
			p.Name, ErrTypeMismatch, p.Type.FriendlyName(), v.Type().FriendlyName())
	}
	if p.Min != nil && v.LessThan(*p.Min).True() {
		return fmt.Errorf("property %q: %w: %v is below minimum %v",
			p.Name, ErrOutOfBounds, v.AsBigFloat(), p.Min.AsBigFloat())
	}
	if p.Max != nil && v.GreaterThan(*p.Max).True() {
		return fmt.Errorf("property %q: %w: %v is above maximum %v",
			p.Name, ErrOutOfBounds, v.AsBigFloat(), p.Max.AsBigFloat())
	}
	return nil
}

// Validate checks that the event schema has a name and that its payload
// field names are unique and typed.
func (e *EventSchema) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("%w: event with empty name", ErrInvalidSchema)
	}
	seen := make(map[string]struct{}, len(e.Fields))
	for _, f := range e.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: event %q: payload field with empty name", ErrInvalidSchema, e.Name)
		}
		if f.Type == cty.NilType {
			return fmt.Errorf("%w: event %q: payload field %q has no type", ErrInvalidSchema, e.Name, f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: event %q: duplicate payload field %q", ErrInvalidSchema, e.Name, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// Validate checks the descriptor's own declarations: a non-empty type name,
// valid property and event schemas, and no duplicate names among them.
// Parent resolution and shadowing of inherited names are registry concerns.
func (d *TypeDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: type with empty name", ErrInvalidSchema)
	}
	props := make(map[string]struct{}, len(d.Properties))
	for i := range d.Properties {
		p := &d.Properties[i]
		if err := p.Validate(); err != nil {
			return fmt.Errorf("type %q: %w", d.Name, err)
		}
		if _, dup := props[p.Name]; dup {
			return fmt.Errorf("%w: type %q: duplicate property %q", ErrInvalidSchema, d.Name, p.Name)
		}
		props[p.Name] = struct{}{}
	}
	events := make(map[string]struct{}, len(d.Events))
	for i := range d.Events {
		e := &d.Events[i]
		if err := e.Validate(); err != nil {
			return fmt.Errorf("type %q: %w", d.Name, err)
		}
		if _, dup := events[e.Name]; dup {
			return fmt.Errorf("%w: type %q: duplicate event %q", ErrInvalidSchema, d.Name, e.Name)
		}
		events[e.Name] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy of the descriptor. cty values are immutable, so
// copying the slices is sufficient.
func (d *TypeDescriptor) Clone() *TypeDescriptor {
	out := &TypeDescriptor{
		Name:        d.Name,
		Parent:      d.Parent,
		Description: d.Description,
	}
	if d.Properties != nil {
		out.Properties = make([]PropertySchema, len(d.Properties))
		copy(out.Properties, d.Properties)
	}
	if d.Events != nil {
		out.Events = make([]EventSchema, len(d.Events))
		for i, e := range d.Events {
			fields := make([]EventField, len(e.Fields))
			copy(fields, e.Fields)
			out.Events[i] = EventSchema{Name: e.Name, Fields: fields, Description: e.Description}
		}
	}
	return out
}
