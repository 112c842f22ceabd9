package drivers

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Host runs a set of drivers side by side.
type Host struct {
	drivers []*Driver
}

// NewHost returns a pointer to a new [Host] running the given drivers.
func NewHost(drivers ...*Driver) *Host {
	return &Host{drivers: drivers}
}

// Add registers another driver. It must be called before [Host.Run].
func (h *Host) Add(d *Driver) {
	h.drivers = append(h.drivers, d)
}

// Drivers returns the registered drivers.
func (h *Host) Drivers() []*Driver {
	return h.drivers
}

// Run runs every driver until the context is cancelled or one of them fails.
func (h *Host) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, d := range h.drivers {
		g.Go(func() error {
			return d.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("(drivers-run) %w", err)
	}

	return nil
}
