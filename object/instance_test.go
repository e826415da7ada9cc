package object_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/objectkit/event"
	"github.com/vk/objectkit/object"
	"github.com/vk/objectkit/registry"
	"github.com/vk/objectkit/schema"
)

var (
	levelMin = cty.NumberIntVal(0)
	levelMax = cty.NumberIntVal(10)
)

// gadgetDescriptor exercises every schema feature: a bounded number, a
// plain string, an immutable string, a change event with old-value, and a
// free-standing event.
func gadgetDescriptor() *schema.TypeDescriptor {
	return &schema.TypeDescriptor{
		Name: "Gadget",
		Properties: []schema.PropertySchema{
			{Name: "level", Type: cty.Number, Mutable: true, Default: cty.NumberIntVal(1), Min: &levelMin, Max: &levelMax},
			{Name: "label", Type: cty.String, Mutable: true, Default: cty.StringVal("")},
			{Name: "serial", Type: cty.String, Mutable: false, Default: cty.StringVal("s0")},
		},
		Events: []schema.EventSchema{
			{Name: "level-changed", Fields: []schema.EventField{
				{Name: schema.FieldNewValue, Type: cty.Number},
			}},
			{Name: "label-changed", Fields: []schema.EventField{
				{Name: schema.FieldNewValue, Type: cty.String},
				{Name: schema.FieldOldValue, Type: cty.String},
			}},
			{Name: "pinged", Fields: []schema.EventField{
				{Name: "count", Type: cty.Number},
			}},
		},
	}
}

func newGadget(t *testing.T, overrides map[string]cty.Value) *object.Instance {
	t.Helper()
	r := registry.New()
	_, err := r.Register(context.Background(), gadgetDescriptor())
	require.NoError(t, err)
	inst, err := object.NewNamed(context.Background(), r, "Gadget", overrides)
	require.NoError(t, err)
	return inst
}

func TestNewAppliesDefaultsAndOverrides(t *testing.T) {
	inst := newGadget(t, map[string]cty.Value{
		"level": cty.NumberIntVal(7),
	})

	level, err := inst.Get("level")
	require.NoError(t, err)
	assert.True(t, level.RawEquals(cty.NumberIntVal(7)), "overridden property takes the override")

	label, err := inst.Get("label")
	require.NoError(t, err)
	assert.True(t, label.RawEquals(cty.StringVal("")), "untouched property takes the default")
}

func TestNewOverrideErrors(t *testing.T) {
	r := registry.New()
	_, err := r.Register(context.Background(), gadgetDescriptor())
	require.NoError(t, err)

	testCases := []struct {
		name      string
		overrides map[string]cty.Value
		expectErr error
	}{
		{
			name:      "unknown property",
			overrides: map[string]cty.Value{"bogus": cty.NumberIntVal(1)},
			expectErr: object.ErrUnknownProperty,
		},
		{
			name:      "kind mismatch",
			overrides: map[string]cty.Value{"level": cty.StringVal("high")},
			expectErr: schema.ErrTypeMismatch,
		},
		{
			name:      "out of bounds",
			overrides: map[string]cty.Value{"level": cty.NumberIntVal(11)},
			expectErr: schema.ErrOutOfBounds,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := object.NewNamed(context.Background(), r, "Gadget", tc.overrides)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.expectErr)
		})
	}
}

func TestNewOverrideMayTargetImmutableProperty(t *testing.T) {
	inst := newGadget(t, map[string]cty.Value{
		"serial": cty.StringVal("s42"),
	})

	serial, err := inst.Get("serial")
	require.NoError(t, err)
	assert.True(t, serial.RawEquals(cty.StringVal("s42")))

	// But post-construction writes stay rejected.
	err = inst.Set(context.Background(), "serial", cty.StringVal("s43"))
	assert.ErrorIs(t, err, object.ErrImmutableProperty)
}

func TestGetUnknownProperty(t *testing.T) {
	inst := newGadget(t, nil)
	_, err := inst.Get("bogus")
	require.Error(t, err)
	assert.ErrorIs(t, err, object.ErrUnknownProperty)
	assert.Contains(t, err.Error(), "bogus")
}

func TestSetCommitsThenNotifies(t *testing.T) {
	inst := newGadget(t, nil)
	ctx := context.Background()

	var seen []cty.Value
	_, err := inst.Subscribe("level-changed", func(src event.Source, p event.Payload) error {
		// The commit happens before dispatch; reading back must observe
		// the new value.
		cur, getErr := inst.Get("level")
		require.NoError(t, getErr)
		assert.True(t, cur.RawEquals(p[schema.FieldNewValue]))
		seen = append(seen, p[schema.FieldNewValue])
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, inst.Set(ctx, "level", cty.NumberIntVal(5)))
	require.Len(t, seen, 1)
	assert.True(t, seen[0].RawEquals(cty.NumberIntVal(5)))
}

func TestSetEqualValueIsNoOp(t *testing.T) {
	inst := newGadget(t, nil)
	ctx := context.Background()

	dispatches := 0
	_, err := inst.Subscribe("level-changed", func(src event.Source, p event.Payload) error {
		dispatches++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, inst.Set(ctx, "level", cty.NumberIntVal(5)))
	require.NoError(t, inst.Set(ctx, "level", cty.NumberIntVal(5)))
	assert.Equal(t, 1, dispatches, "setting an equal value must not re-dispatch")

	// Setting the current default is a no-op too.
	require.NoError(t, inst.Set(ctx, "label", cty.StringVal("")))
}

func TestSetTextEqualityIsCaseSensitive(t *testing.T) {
	inst := newGadget(t, nil)
	ctx := context.Background()

	dispatches := 0
	_, err := inst.Subscribe("label-changed", func(src event.Source, p event.Payload) error {
		dispatches++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, inst.Set(ctx, "label", cty.StringVal("Alice")))
	require.NoError(t, inst.Set(ctx, "label", cty.StringVal("alice")))
	assert.Equal(t, 2, dispatches, "case-differing strings are different values")
}

func TestSetOutOfBoundsLeavesPriorValue(t *testing.T) {
	inst := newGadget(t, nil)
	ctx := context.Background()

	require.NoError(t, inst.Set(ctx, "level", cty.NumberIntVal(5)))

	err := inst.Set(ctx, "level", cty.NumberIntVal(-1))
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrOutOfBounds)

	cur, err := inst.Get("level")
	require.NoError(t, err)
	assert.True(t, cur.RawEquals(cty.NumberIntVal(5)))
}

func TestSetUnknownProperty(t *testing.T) {
	inst := newGadget(t, nil)
	err := inst.Set(context.Background(), "bogus", cty.NumberIntVal(1))
	assert.ErrorIs(t, err, object.ErrUnknownProperty)
}

func TestConstructionDoesNotNotify(t *testing.T) {
	// Overrides applied during construction never reach subscribers; the
	// instance only becomes observable once the factory returns.
	inst := newGadget(t, map[string]cty.Value{
		"level": cty.NumberIntVal(9),
	})

	fired := 0
	_, err := inst.Subscribe("level-changed", func(src event.Source, p event.Payload) error {
		fired++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, fired)

	require.NoError(t, inst.Set(context.Background(), "level", cty.NumberIntVal(3)))
	assert.Equal(t, 1, fired)
}

func TestChangeEventCarriesOldValueWhenDeclared(t *testing.T) {
	inst := newGadget(t, nil)
	ctx := context.Background()

	var got event.Payload
	_, err := inst.Subscribe("label-changed", func(src event.Source, p event.Payload) error {
		got = p
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, inst.Set(ctx, "label", cty.StringVal("first")))
	require.NotNil(t, got)
	assert.True(t, got[schema.FieldNewValue].RawEquals(cty.StringVal("first")))
	assert.True(t, got[schema.FieldOldValue].RawEquals(cty.StringVal("")))

	require.NoError(t, inst.Set(ctx, "label", cty.StringVal("second")))
	assert.True(t, got[schema.FieldOldValue].RawEquals(cty.StringVal("first")))
}

func TestSubscribeDispatchOrder(t *testing.T) {
	inst := newGadget(t, nil)
	ctx := context.Background()

	var log []string
	appendTo := func(label string) event.Handler {
		return func(src event.Source, p event.Payload) error {
			log = append(log, label)
			return nil
		}
	}

	for _, label := range []string{"h1", "h2", "h3"} {
		_, err := inst.Subscribe("level-changed", appendTo(label))
		require.NoError(t, err)
	}

	require.NoError(t, inst.Set(ctx, "level", cty.NumberIntVal(2)))
	assert.Equal(t, []string{"h1", "h2", "h3"}, log)
}

func TestSubscribeUnknownEvent(t *testing.T) {
	inst := newGadget(t, nil)
	_, err := inst.Subscribe("bogus", func(src event.Source, p event.Payload) error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, object.ErrUnknownEvent)
}

func TestUnsubscribe(t *testing.T) {
	inst := newGadget(t, nil)
	ctx := context.Background()

	fired := 0
	id, err := inst.Subscribe("level-changed", func(src event.Source, p event.Payload) error {
		fired++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, inst.Set(ctx, "level", cty.NumberIntVal(2)))
	assert.Equal(t, 1, fired)

	inst.Unsubscribe(id)
	require.NoError(t, inst.Set(ctx, "level", cty.NumberIntVal(3)))
	assert.Equal(t, 1, fired)

	// Idempotent: removing again (or removing a never-issued id) is a no-op.
	inst.Unsubscribe(id)
	inst.Unsubscribe(event.SubscriptionID(999))
}

func TestUnsubscribeDuringDispatchAffectsNextPassOnly(t *testing.T) {
	inst := newGadget(t, nil)
	ctx := context.Background()

	var log []string
	var h2ID event.SubscriptionID

	_, err := inst.Subscribe("level-changed", func(src event.Source, p event.Payload) error {
		log = append(log, "h1")
		inst.Unsubscribe(h2ID)
		return nil
	})
	require.NoError(t, err)

	h2ID, err = inst.Subscribe("level-changed", func(src event.Source, p event.Payload) error {
		log = append(log, "h2")
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, inst.Set(ctx, "level", cty.NumberIntVal(2)))
	assert.Equal(t, []string{"h1", "h2"}, log, "the current pass runs over its snapshot")

	require.NoError(t, inst.Set(ctx, "level", cty.NumberIntVal(3)))
	assert.Equal(t, []string{"h1", "h2", "h1"}, log)
}

func TestSubscribeDuringDispatchJoinsNextPass(t *testing.T) {
	inst := newGadget(t, nil)
	ctx := context.Background()

	var log []string
	subscribed := false

	_, err := inst.Subscribe("level-changed", func(src event.Source, p event.Payload) error {
		log = append(log, "h1")
		if !subscribed {
			subscribed = true
			_, subErr := inst.Subscribe("level-changed", func(src event.Source, p event.Payload) error {
				log = append(log, "late")
				return nil
			})
			require.NoError(t, subErr)
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, inst.Set(ctx, "level", cty.NumberIntVal(2)))
	assert.Equal(t, []string{"h1"}, log)

	require.NoError(t, inst.Set(ctx, "level", cty.NumberIntVal(3)))
	assert.Equal(t, []string{"h1", "h1", "late"}, log)
}

func TestReentrantEmission(t *testing.T) {
	inst := newGadget(t, nil)
	ctx := context.Background()

	var seen []cty.Value
	_, err := inst.Subscribe("level-changed", func(src event.Source, p event.Payload) error {
		seen = append(seen, p[schema.FieldNewValue])
		// Climb to 4 once, from inside the handler.
		if p[schema.FieldNewValue].RawEquals(cty.NumberIntVal(2)) {
			return inst.Set(ctx, "level", cty.NumberIntVal(4))
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, inst.Set(ctx, "level", cty.NumberIntVal(2)))

	require.Len(t, seen, 2)
	assert.True(t, seen[0].RawEquals(cty.NumberIntVal(2)))
	assert.True(t, seen[1].RawEquals(cty.NumberIntVal(4)))

	cur, err := inst.Get("level")
	require.NoError(t, err)
	assert.True(t, cur.RawEquals(cty.NumberIntVal(4)))
}

func TestHandlerFailureDoesNotRollBack(t *testing.T) {
	inst := newGadget(t, nil)
	ctx := context.Background()
	errBoom := errors.New("boom")

	ran := []string{}
	_, err := inst.Subscribe("level-changed", func(src event.Source, p event.Payload) error {
		ran = append(ran, "failing")
		return errBoom
	})
	require.NoError(t, err)
	_, err = inst.Subscribe("level-changed", func(src event.Source, p event.Payload) error {
		ran = append(ran, "ok")
		return nil
	})
	require.NoError(t, err)

	err = inst.Set(ctx, "level", cty.NumberIntVal(6))
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, []string{"failing", "ok"}, ran)

	// The mutation committed before dispatch began.
	cur, getErr := inst.Get("level")
	require.NoError(t, getErr)
	assert.True(t, cur.RawEquals(cty.NumberIntVal(6)))
}

func TestEmitEvent(t *testing.T) {
	inst := newGadget(t, nil)
	ctx := context.Background()

	var got event.Payload
	_, err := inst.Subscribe("pinged", func(src event.Source, p event.Payload) error {
		got = p
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, inst.EmitEvent(ctx, "pinged", event.Payload{
		"count": cty.NumberIntVal(3),
	}))
	require.NotNil(t, got)
	assert.True(t, got["count"].RawEquals(cty.NumberIntVal(3)))

	err = inst.EmitEvent(ctx, "bogus", event.Payload{})
	assert.ErrorIs(t, err, object.ErrUnknownEvent)

	err = inst.EmitEvent(ctx, "pinged", event.Payload{
		"count": cty.StringVal("three"),
	})
	assert.ErrorIs(t, err, event.ErrPayloadMismatch)
}

func TestDispose(t *testing.T) {
	inst := newGadget(t, nil)
	ctx := context.Background()

	id, err := inst.Subscribe("level-changed", func(src event.Source, p event.Payload) error { return nil })
	require.NoError(t, err)

	inst.Dispose(ctx)
	inst.Dispose(ctx) // idempotent

	_, err = inst.Get("level")
	assert.ErrorIs(t, err, object.ErrDisposed)

	err = inst.Set(ctx, "level", cty.NumberIntVal(2))
	assert.ErrorIs(t, err, object.ErrDisposed)

	_, err = inst.Subscribe("level-changed", func(src event.Source, p event.Payload) error { return nil })
	assert.ErrorIs(t, err, object.ErrDisposed)

	err = inst.EmitEvent(ctx, "pinged", event.Payload{"count": cty.NumberIntVal(1)})
	assert.ErrorIs(t, err, object.ErrDisposed)

	// Unsubscribe after disposal stays a silent no-op.
	inst.Unsubscribe(id)
}

func TestTypeAccessors(t *testing.T) {
	inst := newGadget(t, nil)
	assert.Equal(t, "Gadget", inst.TypeName())
	assert.Equal(t, "Gadget", inst.Type().Name())
}
