package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/km-arc/go-boot/framework/config"
	"github.com/km-arc/go-boot/framework/container"
	"github.com/km-arc/go-boot/framework/fsutil"
	gohttp "github.com/km-arc/go-boot/framework/http"
	"github.com/km-arc/go-boot/framework/providers"
	"github.com/km-arc/go-boot/framework/routing"
	"github.com/km-arc/go-boot/framework/scan"
)

// DepsPath is the diagnostics route listing the scope's dependencies. It is
// mounted when APP_DEBUG is on.
const DepsPath = "/_boot/deps"

// Hook runs once the application finished discovery.
type Hook func(ctx context.Context, a *Application) error

// Options configures New.
type Options struct {
	// Name identifies the application scope. Defaults to the base name of Root.
	Name string
	// Root is the directory the application owns.
	Root string
	// Config defaults to config.Load().
	Config *config.Config
	// Logger defaults to the container package logger.
	Logger *zap.Logger
	// Units is the loader table, usually shared by every application of a
	// host. Defaults to an empty table.
	Units *scan.UnitTable
	// FS is the file system discovery walks, rooted at Root. Defaults to
	// os.DirFS(Root).
	FS fs.FS
	// Sub marks an application meant to be mounted under another one; its
	// router carries no middleware.
	Sub bool
}

// Application is one mounted web application: a directory, the scope owning
// everything declared below it and the router serving it.
//
//	web, _ := app.New(reg, app.Options{Root: "apps/web", Config: cfg})
//	web.Routes(routing.NewEndpoint("/health", healthHandler))
//	if err := web.Boot(ctx); err != nil { ... }
type Application struct {
	Providers *container.ProviderRegistry

	name   string
	root   string
	sym    container.Symbol
	reg    *container.Registry
	scope  *container.Scope
	cfg    *config.Config
	scan   config.ScanConfig
	router *routing.Router
	units  *scan.UnitTable
	fsys   fs.FS
	logger *zap.Logger

	mu      sync.Mutex
	records []routing.Record
	hooks   []Hook
	booted  bool // Boot started
	mounted bool // contributed routes are on the router
}

// New creates the application, registers its scope with reg and its
// framework providers. A boot.hcl file in the root overrides the scan
// settings of opts.Config.
func New(reg *container.Registry, opts Options) (*Application, error) {
	if opts.Root == "" {
		return nil, errors.New("app: root directory is required")
	}
	root := fsutil.Clean(opts.Root)
	if !path.IsAbs(root) {
		root = path.Join(reg.ProjectRoot(), root)
	}
	name := opts.Name
	if name == "" {
		name = path.Base(root)
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Load()
	}
	logger := opts.Logger
	if logger == nil {
		logger = container.Logger()
	}
	units := opts.Units
	if units == nil {
		units = scan.NewUnitTable(logger)
	}

	scanCfg, err := config.LoadScanFile(path.Join(root, config.ScanFileName), cfg.Scan)
	if err != nil {
		return nil, fmt.Errorf("app %s: %w", name, err)
	}

	scope, err := reg.AddScope(container.ScopeConfig{
		Name:         name,
		Root:         root,
		Timeout:      scanCfg.Timeout(),
		PollInterval: scanCfg.PollInterval(),
		Include:      scanCfg.Include,
		Exclude:      scanCfg.Exclude,
		Duplicates:   container.ParseDuplicatePolicy(cfg.DI.Duplicates),
	})
	if err != nil {
		return nil, err
	}

	router := routing.New()
	if opts.Sub {
		router = routing.NewSub()
	}

	sym := container.NewSymbol(root, "app."+name)
	a := &Application{
		Providers: container.NewProviderRegistry(reg, sym),
		name:      name,
		root:      root,
		sym:       sym,
		reg:       reg,
		scope:     scope,
		cfg:       cfg,
		scan:      scanCfg,
		router:    router,
		units:     units,
		fsys:      opts.FS,
		logger:    logger.With(zap.String("app", name)),
	}

	if err := reg.Instance(sym, "", a); err != nil {
		return nil, err
	}
	for _, p := range providers.Framework(cfg, router, a.logger) {
		if err := a.Providers.Register(context.Background(), p); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Register adds a ServiceProvider to the application.
func (a *Application) Register(ctx context.Context, provider container.ServiceProvider) error {
	return a.Providers.Register(ctx, provider)
}

// Routes contributes route records. Records added once Boot has mounted the
// contributed routes are mounted immediately.
func (a *Application) Routes(records ...routing.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mounted {
		a.router.MountRecords(records...)
		return
	}
	a.records = append(a.records, records...)
}

// OnReady adds a hook run by Boot after discovery, in registration order.
func (a *Application) OnReady(h Hook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks = append(a.hooks, h)
}

// Mount serves other's router under prefix once other finished discovery.
func (a *Application) Mount(prefix string, other *Application) {
	a.reg.OnScopeReady(other.root, func(*container.Scope) {
		a.router.Mount(prefix, other.router)
		a.logger.Debug("application mounted",
			zap.String("mounted", other.name),
			zap.String("prefix", routing.NormalizePath(prefix)))
	})
}

// Boot discovers and loads the application's units, settles its scope and
// mounts its routes. Later calls are no-ops.
//
// The returned error joins load failures, permanent deferred failures and
// provider or hook errors.
func (a *Application) Boot(ctx context.Context) error {
	a.mu.Lock()
	if a.booted {
		a.mu.Unlock()
		return nil
	}
	a.booted = true
	a.mu.Unlock()

	start := time.Now()
	var errs []error

	var units []scan.Unit
	if a.scan.Enabled {
		catalog := &scan.Catalog{
			FS:          a.fsys,
			Root:        a.root,
			ProjectRoot: a.reg.ProjectRoot(),
			Include:     a.scan.Include,
			Exclude:     a.scan.Exclude,
		}
		pool := &scan.Pool{Table: a.units, Logger: a.logger}
		var err error
		units, err = pool.Scan(ctx, catalog, a.scan.Workers())
		if err != nil {
			return fmt.Errorf("app %s: %w", a.name, err)
		}
	}

	a.scope.Replay()
	promoted := a.reg.PromoteAll(a.scope)
	rehomed, err := a.reg.Rehome(a.scope)
	if err != nil {
		errs = append(errs, err)
	}
	a.scope.Replay()
	a.reg.MarkReady(a.scope)

	if err := a.Providers.Boot(ctx); err != nil {
		errs = append(errs, err)
	}

	a.mu.Lock()
	hooks := a.hooks
	a.mu.Unlock()
	for _, h := range hooks {
		if err := h(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("app %s: ready hook: %w", a.name, err))
		}
	}

	a.mu.Lock()
	routes := a.router.MountRecords(a.records...)
	a.records = nil
	a.mounted = true
	a.mu.Unlock()
	if a.cfg.App.Debug {
		a.router.Get(DepsPath, a.depsHandler)
	}

	errs = append(errs, a.scope.Tasks().Failures()...)
	pending := a.scope.Tasks().Len()
	a.logger.Info("application booted",
		zap.String("root", a.root),
		zap.Int("units", len(units)),
		zap.Int("dependencies", a.scope.Store().Len()),
		zap.Int("promoted", promoted),
		zap.Int("rehomed", rehomed),
		zap.Int("pending", pending),
		zap.Int("routes", routes),
		zap.Duration("took", time.Since(start)))
	if pending > 0 {
		for _, t := range a.scope.Tasks().Pending() {
			a.logger.Debug("component still waiting", zap.Stringer("symbol", t.Symbol))
		}
	}
	return errors.Join(errs...)
}

// Booted reports whether Boot has run.
func (a *Application) Booted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.booted
}

// Invoke calls fn with its parameters resolved in the application scope.
func (a *Application) Invoke(ctx context.Context, fn any, specs ...container.ParamSpec) ([]any, error) {
	return a.reg.Invoke(ctx, a.root, fn, specs...)
}

// Make resolves T in the application scope.
func Make[T any](ctx context.Context, a *Application) (T, error) {
	return container.ResolveByType[T](ctx, a.reg, a.root)
}

// Run boots the application if needed and serves HTTP on the configured port
// until ctx is done.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Boot(ctx); err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              ":" + a.cfg.App.Port,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		a.logger.Info("listening",
			zap.String("addr", "http://localhost"+srv.Addr),
			zap.String("env", a.cfg.App.Env))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			return err
		}
		return nil
	}
}

// ── Accessors ────────────────────────────────────────────────────────────────

func (a *Application) Name() string                  { return a.name }
func (a *Application) Root() string                  { return a.root }
func (a *Application) Symbol() container.Symbol      { return a.sym }
func (a *Application) Registry() *container.Registry { return a.reg }
func (a *Application) Scope() *container.Scope       { return a.scope }
func (a *Application) Config() *config.Config        { return a.cfg }
func (a *Application) ScanConfig() config.ScanConfig { return a.scan }
func (a *Application) Router() *routing.Router       { return a.router }
func (a *Application) Units() *scan.UnitTable        { return a.units }
func (a *Application) Logger() *zap.Logger           { return a.logger }

// Environment returns APP_ENV value.
func (a *Application) Environment() string { return a.cfg.App.Env }
func (a *Application) IsLocal() bool       { return a.Environment() == "local" }
func (a *Application) IsProduction() bool  { return a.Environment() == "production" }
func (a *Application) IsTesting() bool     { return a.Environment() == "testing" }
func (a *Application) IsDebug() bool       { return a.cfg.App.Debug }

// ── Diagnostics ──────────────────────────────────────────────────────────────

type depView struct {
	Type   string `json:"type"`
	Name   string `json:"name,omitempty"`
	Symbol string `json:"symbol"`
	Shared bool   `json:"shared"`
}

type depsView struct {
	App          string    `json:"app"`
	Root         string    `json:"root"`
	Dependencies []depView `json:"dependencies"`
	Pending      []string  `json:"pending"`
}

func (a *Application) depsHandler(w http.ResponseWriter, _ *http.Request) {
	view := depsView{App: a.name, Root: a.root, Dependencies: []depView{}, Pending: []string{}}
	for _, rec := range a.scope.Store().Records() {
		typ := rec.TypeName
		if rec.Type != nil {
			typ = container.KeyOf(rec.Type)
		}
		view.Dependencies = append(view.Dependencies, depView{
			Type:   typ,
			Name:   rec.Name,
			Symbol: rec.Symbol.String(),
			Shared: !a.scope.Owns(rec.Symbol.Source),
		})
	}
	for _, t := range a.scope.Tasks().Pending() {
		view.Pending = append(view.Pending, t.Symbol.String())
	}
	gohttp.NewResponse(w).Success(view)
}

// Controller is an embeddable base for HTTP controllers.
type Controller struct{}

func (c *Controller) Response(w http.ResponseWriter) *gohttp.Response {
	return gohttp.NewResponse(w)
}
