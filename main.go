package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"

	"go.uber.org/zap"

	"github.com/km-arc/go-boot/apps/admin"
	"github.com/km-arc/go-boot/apps/web"
	"github.com/km-arc/go-boot/framework/app"
	"github.com/km-arc/go-boot/framework/config"
	"github.com/km-arc/go-boot/framework/container"
	gohttp "github.com/km-arc/go-boot/framework/http"
	"github.com/km-arc/go-boot/framework/logging"
	"github.com/km-arc/go-boot/framework/routing"
	"github.com/km-arc/go-boot/framework/scan"
	"github.com/km-arc/go-boot/lib/clock"
)

func main() {
	cfg := config.Load() // loads .env automatically
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	defer func() { _ = logger.Sync() }()
	container.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	reg := container.NewRegistry(
		container.WithLogger(logger),
		container.WithGlobalTimeout(cfg.Scan.GlobalTimeout()),
		container.WithPollInterval(cfg.Scan.PollInterval()),
		container.WithDuplicatePolicy(container.ParseDuplicatePolicy(cfg.DI.Duplicates)),
	)

	units := scan.NewUnitTable(logger)
	clock.Register(units, reg)
	web.Register(units, reg)
	admin.Register(units, reg)

	// ── Shared libraries load before any application exists ────────────────

	pool := &scan.Pool{Table: units, Logger: logger}
	lib := &scan.Catalog{Root: path.Join(reg.ProjectRoot(), "lib"), ProjectRoot: reg.ProjectRoot()}
	if _, err := pool.Scan(ctx, lib, cfg.Scan.Workers()); err != nil {
		return err
	}

	// ── Applications ───────────────────────────────────────────────────────

	site, err := app.New(reg, app.Options{Name: "web", Root: "apps/web", Config: cfg, Logger: logger, Units: units})
	if err != nil {
		return err
	}
	backOffice, err := app.New(reg, app.Options{Name: "admin", Root: "apps/admin", Config: cfg, Logger: logger, Units: units, Sub: true})
	if err != nil {
		return err
	}

	site.Routes(routing.NewEndpoint("/", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		gohttp.NewResponse(w).Success(map[string]any{"message": "Welcome to GoBoot!"})
	})))
	site.Mount("/admin", backOffice)

	// Boot mutates the routers, so applications boot one at a time.
	for _, a := range []*app.Application{backOffice, site} {
		if err := a.Boot(ctx); err != nil {
			return err
		}
	}

	return site.Run(ctx)
}
