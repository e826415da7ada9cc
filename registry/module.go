package registry

import (
	"context"
	"fmt"
)

// Module is the interface implemented by packages that bundle type
// definitions and register them as a unit.
type Module interface {
	Register(ctx context.Context, r *Registry) error
}

// Install registers every module into the registry, stopping at the first
// failure. Registration is per-type atomic, so types registered by earlier
// modules remain visible even when a later module fails.
func Install(ctx context.Context, r *Registry, modules ...Module) error {
	for _, m := range modules {
		if err := m.Register(ctx, r); err != nil {
			return fmt.Errorf("install module %T: %w", m, err)
		}
	}
	return nil
}
