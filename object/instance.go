package object

import (
	"context"
	"fmt"
	"sync"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/objectkit/ctxlog"
	"github.com/vk/objectkit/event"
	"github.com/vk/objectkit/registry"
	"github.com/vk/objectkit/schema"
)

type lifecycleState int

const (
	stateConstructing lifecycleState = iota
	stateLive
	stateDisposed
)

// Instance is a single allocated object conforming to a registered type.
// It holds a non-owning reference to its type handle; the value table is
// indexed by the type's resolved property indices.
type Instance struct {
	typ *registry.Type

	mu      sync.Mutex
	state   lifecycleState
	values  []cty.Value
	subs    map[string][]event.Subscription
	nextSub event.SubscriptionID
}

// New constructs an instance of the given type. Every resolved property
// (inherited ones included) starts at its declared default; overrides
// replace defaults after full validation. Overrides may target immutable
// properties, since mutability restricts post-construction writes only.
//
// No notification is dispatched during construction; the instance becomes
// live only when New returns successfully.
func New(ctx context.Context, t *registry.Type, overrides map[string]cty.Value) (*Instance, error) {
	inst := &Instance{
		typ:    t,
		state:  stateConstructing,
		values: make([]cty.Value, t.NumProperties()),
		subs:   make(map[string][]event.Subscription),
	}

	for i := 0; i < t.NumProperties(); i++ {
		inst.values[i] = t.PropertyAt(i).Default
	}

	for name, v := range overrides {
		idx, ok := t.PropertyIndex(name)
		if !ok {
			return nil, fmt.Errorf("type %q: %w: %q", t.Name(), ErrUnknownProperty, name)
		}
		if err := t.PropertyAt(idx).Check(v); err != nil {
			return nil, fmt.Errorf("type %q: %w", t.Name(), err)
		}
		inst.values[idx] = v
	}

	inst.state = stateLive
	ctxlog.FromContext(ctx).Debug("Constructed instance.",
		"type", t.Name(), "overrides", len(overrides))
	return inst, nil
}

// NewNamed is a convenience factory that looks the type up by name first.
func NewNamed(ctx context.Context, reg *registry.Registry, typeName string, overrides map[string]cty.Value) (*Instance, error) {
	t, err := reg.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	return New(ctx, t, overrides)
}

// Type returns the instance's type handle.
func (inst *Instance) Type() *registry.Type { return inst.typ }

// TypeName implements event.Source.
func (inst *Instance) TypeName() string { return inst.typ.Name() }

// Get returns the current value of a property.
func (inst *Instance) Get(name string) (cty.Value, error) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.state == stateDisposed {
		return cty.NilVal, fmt.Errorf("type %q: get %q: %w", inst.typ.Name(), name, ErrDisposed)
	}
	idx, ok := inst.typ.PropertyIndex(name)
	if !ok {
		return cty.NilVal, fmt.Errorf("type %q: %w: %q", inst.typ.Name(), ErrUnknownProperty, name)
	}
	return inst.values[idx], nil
}

// Set validates the new value fully, commits it, and then synchronously
// dispatches the property's change event (the "<name>-changed" convention)
// if the type declares one. Setting a value equal to the current value is a
// no-op and dispatches nothing; equality is exact per kind.
//
// Validation precedes mutation, so a rejected write never changes state.
// A handler failure during dispatch is returned to the caller but does not
// roll back the committed value.
func (inst *Instance) Set(ctx context.Context, name string, v cty.Value) error {
	inst.mu.Lock()

	if inst.state == stateDisposed {
		inst.mu.Unlock()
		return fmt.Errorf("type %q: set %q: %w", inst.typ.Name(), name, ErrDisposed)
	}
	idx, ok := inst.typ.PropertyIndex(name)
	if !ok {
		inst.mu.Unlock()
		return fmt.Errorf("type %q: %w: %q", inst.typ.Name(), ErrUnknownProperty, name)
	}
	prop := inst.typ.PropertyAt(idx)
	if !prop.Mutable {
		inst.mu.Unlock()
		return fmt.Errorf("type %q: %w: %q", inst.typ.Name(), ErrImmutableProperty, name)
	}
	if err := prop.Check(v); err != nil {
		inst.mu.Unlock()
		return fmt.Errorf("type %q: %w", inst.typ.Name(), err)
	}

	prev := inst.values[idx]
	if prev.RawEquals(v) {
		inst.mu.Unlock()
		return nil
	}
	inst.values[idx] = v

	es, declared := inst.typ.Event(schema.ChangeEventName(name))
	if !declared {
		inst.mu.Unlock()
		return nil
	}

	// Snapshot under the lock, dispatch outside it.
	snapshot := inst.snapshotLocked(es.Name)
	inst.mu.Unlock()

	payload := event.Payload{}
	for _, f := range es.Fields {
		switch f.Name {
		case schema.FieldNewValue:
			payload[f.Name] = v
		case schema.FieldOldValue:
			payload[f.Name] = prev
		}
	}
	return event.Dispatch(ctx, inst, es, snapshot, payload)
}

// Subscribe appends a handler to the ordered subscriber list for an event.
// Insertion order is dispatch order. Subscribing during a dispatch of the
// same event is allowed; the new handler joins the next pass.
func (inst *Instance) Subscribe(eventName string, h event.Handler) (event.SubscriptionID, error) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.state == stateDisposed {
		return 0, fmt.Errorf("type %q: subscribe %q: %w", inst.typ.Name(), eventName, ErrDisposed)
	}
	if _, ok := inst.typ.Event(eventName); !ok {
		return 0, fmt.Errorf("type %q: %w: %q", inst.typ.Name(), ErrUnknownEvent, eventName)
	}

	inst.nextSub++
	id := inst.nextSub
	inst.subs[eventName] = append(inst.subs[eventName], event.Subscription{ID: id, Handler: h})
	return id, nil
}

// Unsubscribe removes a subscription. It is idempotent: removing an unknown
// or already-removed id, or calling it after disposal, is a no-op.
func (inst *Instance) Unsubscribe(id event.SubscriptionID) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.state == stateDisposed {
		return
	}
	for name, subs := range inst.subs {
		for i, sub := range subs {
			if sub.ID == id {
				inst.subs[name] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// EmitEvent dispatches an event programmatically, for events not tied to a
// property change. The payload must match the event schema exactly.
func (inst *Instance) EmitEvent(ctx context.Context, eventName string, payload event.Payload) error {
	inst.mu.Lock()

	if inst.state == stateDisposed {
		inst.mu.Unlock()
		return fmt.Errorf("type %q: emit %q: %w", inst.typ.Name(), eventName, ErrDisposed)
	}
	es, ok := inst.typ.Event(eventName)
	if !ok {
		inst.mu.Unlock()
		return fmt.Errorf("type %q: %w: %q", inst.typ.Name(), ErrUnknownEvent, eventName)
	}

	snapshot := inst.snapshotLocked(eventName)
	inst.mu.Unlock()

	return event.Dispatch(ctx, inst, es, snapshot, payload)
}

// Dispose releases the instance's property values and subscriber table and
// marks it terminal. It is idempotent; only the first call has any effect.
func (inst *Instance) Dispose(ctx context.Context) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.state == stateDisposed {
		return
	}
	inst.state = stateDisposed
	inst.values = nil
	inst.subs = nil
	ctxlog.FromContext(ctx).Debug("Disposed instance.", "type", inst.typ.Name())
}

// snapshotLocked copies the subscriber list for one event. Callers must
// hold inst.mu; dispatch then iterates the copy without the lock.
func (inst *Instance) snapshotLocked(eventName string) []event.Subscription {
	subs := inst.subs[eventName]
	if len(subs) == 0 {
		return nil
	}
	snapshot := make([]event.Subscription, len(subs))
	copy(snapshot, subs)
	return snapshot
}
