// Package admin is the demo back office, mounted under the web application.
package admin

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/km-arc/go-boot/framework/app"
	"github.com/km-arc/go-boot/framework/container"
	gohttp "github.com/km-arc/go-boot/framework/http"
	"github.com/km-arc/go-boot/framework/routing"
	"github.com/km-arc/go-boot/framework/scan"
)

// Stats reports on the admin application's scope.
type Stats struct {
	app    *app.Application
	logger *zap.Logger
}

func NewStats(a *app.Application, logger *zap.Logger) *Stats {
	return &Stats{app: a, logger: logger}
}

func (s *Stats) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	scope := s.app.Scope()
	s.logger.Debug("stats requested")
	gohttp.NewResponse(w).Success(map[string]any{
		"app":          s.app.Name(),
		"dependencies": scope.Store().Len(),
		"pending":      scope.Tasks().Len(),
	})
}

// Register declares the loaders of the admin application's units.
func Register(units *scan.UnitTable, reg *container.Registry) {
	units.Register("apps/admin/stats.go", func(ctx context.Context, u scan.Unit) error {
		if _, err := container.Component(NewStats).Register(reg); err != nil {
			return err
		}
		a, err := container.ResolveByType[*app.Application](ctx, reg, u.Path)
		if err != nil {
			return err
		}
		a.Routes(routing.NewEndpoint("/stats", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			stats, err := app.Make[*Stats](r.Context(), a)
			if err != nil {
				gohttp.NewResponse(w).DependencyError(err)
				return
			}
			stats.ServeHTTP(w, r)
		})))
		return nil
	})
}
