// Package clock is a library shared by the demo applications. It lives
// outside every application root, so its components start in the ownerless
// scope and reach the applications that include "lib".
package clock

import (
	"context"
	"time"

	"github.com/km-arc/go-boot/framework/container"
	"github.com/km-arc/go-boot/framework/scan"
)

// Clock tells the time in a fixed location.
type Clock struct {
	loc *time.Location
}

// New returns a UTC clock.
func New() *Clock { return &Clock{loc: time.UTC} }

func (c *Clock) Now() time.Time { return time.Now().In(c.loc) }

// Register declares the loader of this unit.
func Register(units *scan.UnitTable, reg *container.Registry) {
	units.Register("lib/clock/clock.go", func(context.Context, scan.Unit) error {
		_, err := container.Component(New).Register(reg)
		return err
	})
}
