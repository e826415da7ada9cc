// Package event implements synchronous, in-order dispatch of typed events
// to subscribed handlers.
//
// Dispatch runs on the calling goroutine over a snapshot of the subscriber
// list, so subscribing or unsubscribing from inside a handler never affects
// the pass already in flight, and re-entrant emission cannot deadlock. A
// failing handler is recorded and the remaining handlers still run; the
// caller receives the aggregate after the fan-out completes.
package event

import (
	"context"
	"errors"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/objectkit/ctxlog"
	"github.com/vk/objectkit/schema"
)

// Payload carries an event's field values, keyed by field name.
type Payload map[string]cty.Value

// Source identifies the emitting instance to handlers without this package
// depending on the instance implementation.
type Source interface {
	TypeName() string
}

// Handler is invoked synchronously for each event it is subscribed to.
// A non-nil error is collected and reported to the emitter after all
// handlers for the emission have run.
type Handler func(src Source, payload Payload) error

// SubscriptionID identifies one subscription for later removal.
type SubscriptionID uint64

// Subscription pairs a handler with its identifier. The subscriber table of
// an instance is an ordered slice of these; insertion order is dispatch
// order.
type Subscription struct {
	ID      SubscriptionID
	Handler Handler
}

// ErrPayloadMismatch reports a payload that does not match the event
// schema's field list by name or kind.
var ErrPayloadMismatch = errors.New("payload mismatch")

// ValidatePayload checks the payload against the event schema: every
// declared field must be present with a conforming kind, and no undeclared
// fields are allowed.
func ValidatePayload(es *schema.EventSchema, payload Payload) error {
	for _, f := range es.Fields {
		v, ok := payload[f.Name]
		if !ok {
			return fmt.Errorf("event %q: %w: missing field %q",
				es.Name, ErrPayloadMismatch, f.Name)
		}
		if v.IsNull() || !v.Type().Equals(f.Type) {
			got := "null"
			if !v.IsNull() {
				got = v.Type().FriendlyName()
			}
			return fmt.Errorf("event %q: field %q: %w: expected %s, got %s",
				es.Name, f.Name, ErrPayloadMismatch, f.Type.FriendlyName(), got)
		}
	}
	if len(payload) != len(es.Fields) {
		for name := range payload {
			if _, ok := es.Field(name); !ok {
				return fmt.Errorf("event %q: %w: undeclared field %q",
					es.Name, ErrPayloadMismatch, name)
			}
		}
	}
	return nil
}

// Dispatch validates the payload and invokes the subscriptions in order on
// the calling goroutine. Handler failures do not stop the fan-out; they are
// joined and returned once every handler has run.
//
// The caller passes the subscriber snapshot; Dispatch never touches live
// instance state, which is what permits re-entrant emission.
func Dispatch(ctx context.Context, src Source, es *schema.EventSchema, subs []Subscription, payload Payload) error {
	if err := ValidatePayload(es, payload); err != nil {
		return err
	}

	ctxlog.FromContext(ctx).Debug("Dispatching event.",
		"type", src.TypeName(), "event", es.Name, "subscribers", len(subs))

	var errs []error
	for _, sub := range subs {
		if err := sub.Handler(src, payload); err != nil {
			errs = append(errs, fmt.Errorf("event %q: subscription %d: %w", es.Name, sub.ID, err))
		}
	}
	return errors.Join(errs...)
}
