package providers

import (
	"go.uber.org/zap"

	"github.com/km-arc/go-boot/framework/config"
	"github.com/km-arc/go-boot/framework/container"
	"github.com/km-arc/go-boot/framework/routing"
)

// Framework returns the core providers every application registers, in
// registration order.
func Framework(cfg *config.Config, router *routing.Router, logger *zap.Logger) []container.ServiceProvider {
	return []container.ServiceProvider{
		&ConfigServiceProvider{Config: cfg},
		&LoggingServiceProvider{Logger: logger},
		&RoutingServiceProvider{Router: router},
	}
}

// ── ConfigServiceProvider ─────────────────────────────────────────────────────

// ConfigServiceProvider exposes the application configuration.
//
// Declared dependencies:
//   - *config.Config
//   - config.AppConfig
type ConfigServiceProvider struct {
	container.BaseProvider
	Config *config.Config
}

func (p *ConfigServiceProvider) Register(reg *container.Registry, at container.Symbol) error {
	cfg := p.Config
	if cfg == nil {
		cfg = config.Load()
	}
	if err := reg.Instance(at, "", cfg); err != nil {
		return err
	}
	return reg.Instance(at, "", cfg.App)
}

// ── LoggingServiceProvider ────────────────────────────────────────────────────

// LoggingServiceProvider exposes the application logger as *zap.Logger.
type LoggingServiceProvider struct {
	container.BaseProvider
	Logger *zap.Logger
}

func (p *LoggingServiceProvider) Register(reg *container.Registry, at container.Symbol) error {
	l := p.Logger
	if l == nil {
		l = container.Logger()
	}
	return reg.Instance(at, "", l)
}

// ── RoutingServiceProvider ────────────────────────────────────────────────────

// RoutingServiceProvider exposes the application router as *routing.Router.
// When Router is nil a router with the default middleware is created.
type RoutingServiceProvider struct {
	container.BaseProvider
	Router *routing.Router
}

func (p *RoutingServiceProvider) Register(reg *container.Registry, at container.Symbol) error {
	if p.Router == nil {
		p.Router = routing.New()
	}
	return reg.Instance(at, "", p.Router)
}
