package web

import (
	"context"

	"github.com/km-arc/go-boot/framework/app"
	"github.com/km-arc/go-boot/framework/container"
	"github.com/km-arc/go-boot/framework/scan"
)

// Register declares the loaders of the web application's units.
func Register(units *scan.UnitTable, reg *container.Registry) {
	units.Register("apps/web/greeter.go", func(context.Context, scan.Unit) error {
		_, err := container.Component(NewGreeter).Register(reg)
		return err
	})
	units.Register("apps/web/routes.go", func(ctx context.Context, u scan.Unit) error {
		a, err := container.ResolveByType[*app.Application](ctx, reg, u.Path)
		if err != nil {
			return err
		}
		a.Routes(Routes(a))
		return nil
	})
}
