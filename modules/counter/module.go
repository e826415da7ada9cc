// Package counter defines the Counter example type: a bounded integer
// `value` property, a free-form `name` property, and a `value-changed`
// event carrying the new value. It doubles as the reference for how a
// package bundles type definitions behind registry.Module.
package counter

import (
	"context"
	"fmt"
	"math"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/vk/objectkit/object"
	"github.com/vk/objectkit/registry"
	"github.com/vk/objectkit/schema"
)

// TypeName is the Counter type's registered name.
const TypeName = "Counter"

// Property and event names declared by the Counter type.
const (
	PropValue         = "value"
	PropName          = "name"
	EventValueChanged = "value-changed"
)

var (
	minValue = cty.NumberIntVal(math.MinInt32)
	maxValue = cty.NumberIntVal(math.MaxInt32)
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the Counter type with the registry.
func (m *Module) Register(ctx context.Context, r *registry.Registry) error {
	_, err := r.Register(ctx, Descriptor())
	return err
}

// Descriptor returns the Counter type descriptor. The `value` bounds mirror
// a signed 32-bit integer range.
func Descriptor() *schema.TypeDescriptor {
	return &schema.TypeDescriptor{
		Name:        TypeName,
		Description: "A bounded integer counter with a display name.",
		Properties: []schema.PropertySchema{
			{
				Name:        PropValue,
				Type:        schema.Integer,
				Mutable:     true,
				Default:     cty.NumberIntVal(0),
				Min:         &minValue,
				Max:         &maxValue,
				Description: "The integer value stored in the counter.",
			},
			{
				Name:        PropName,
				Type:        schema.Text,
				Mutable:     true,
				Default:     cty.StringVal(""),
				Description: "The name of the counter.",
			},
		},
		Events: []schema.EventSchema{
			{
				Name:        EventValueChanged,
				Description: "Emitted when the value property changes.",
				Fields: []schema.EventField{
					{Name: schema.FieldNewValue, Type: schema.Integer},
				},
			},
		},
	}
}

// New creates a Counter instance with default property values.
func New(ctx context.Context, reg *registry.Registry) (*object.Instance, error) {
	return object.NewNamed(ctx, reg, TypeName, nil)
}

// NewWithValue creates a Counter instance starting at the given value.
func NewWithValue(ctx context.Context, reg *registry.Registry, initial int64) (*object.Instance, error) {
	return object.NewNamed(ctx, reg, TypeName, map[string]cty.Value{
		PropValue: cty.NumberIntVal(initial),
	})
}

// Value returns the counter's current value as an int64.
func Value(inst *object.Instance) (int64, error) {
	v, err := inst.Get(PropValue)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := gocty.FromCtyValue(v, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// Increment adds one to the counter's value, notifying subscribers.
func Increment(ctx context.Context, inst *object.Instance) error {
	return add(ctx, inst, 1)
}

// Decrement subtracts one from the counter's value, notifying subscribers.
func Decrement(ctx context.Context, inst *object.Instance) error {
	return add(ctx, inst, -1)
}

func add(ctx context.Context, inst *object.Instance, delta int64) error {
	n, err := Value(inst)
	if err != nil {
		return err
	}
	return inst.Set(ctx, PropValue, cty.NumberIntVal(n+delta))
}

// Describe renders the counter's state as a human-readable string.
func Describe(inst *object.Instance) (string, error) {
	n, err := Value(inst)
	if err != nil {
		return "", err
	}
	nameVal, err := inst.Get(PropName)
	if err != nil {
		return "", err
	}
	name := nameVal.AsString()
	if name == "" {
		name = "(unnamed)"
	}
	return fmt.Sprintf("Counter[name=%s, value=%d]", name, n), nil
}
