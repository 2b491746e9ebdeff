package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/km-arc/go-boot/framework/app"
	"github.com/km-arc/go-boot/framework/config"
	"github.com/km-arc/go-boot/framework/container"
	gohttp "github.com/km-arc/go-boot/framework/http"
	"github.com/km-arc/go-boot/framework/routing"
	"github.com/km-arc/go-boot/framework/scan"
)

// ── fixtures ─────────────────────────────────────────────────────────────────

type Settings struct{ Prefix string }

type Greeter struct{ settings *Settings }

func (g *Greeter) Greet(name string) string { return g.settings.Prefix + name }

type Clock struct{}

var errBoom = errors.New("boom")

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "test", Env: "testing", Debug: true, Port: "0"},
		Scan: config.ScanConfig{
			Enabled:        true,
			TimeoutSeconds: 0.2,
			MaxWorkers:     4,
			PollIntervalMS: 5,
		},
		DI: config.DIConfig{Duplicates: "warn"},
	}
}

func newRegistry(t *testing.T) (*container.Registry, string) {
	t.Helper()
	project := filepath.ToSlash(t.TempDir())
	reg := container.NewRegistry(
		container.WithProjectRoot(project),
		container.WithGlobalTimeout(50*time.Millisecond),
		container.WithPollInterval(5*time.Millisecond),
		container.WithLogger(zap.NewNop()),
	)
	return reg, project
}

func webFS() fstest.MapFS {
	return fstest.MapFS{
		"service/greeter.go": {Data: []byte("package service")},
		"config/settings.go": {Data: []byte("package config")},
		"README.md":          {Data: []byte("# web")},
	}
}

// webUnits registers loaders for webFS: the greeter depends on settings,
// which may load later.
func webUnits(reg *container.Registry) *scan.UnitTable {
	units := scan.NewUnitTable(zap.NewNop())
	units.Register("apps/web/service/greeter.go", func(_ context.Context, u scan.Unit) error {
		_, err := container.Component(func(s *Settings) *Greeter { return &Greeter{settings: s} }).
			At(u.Symbol("service.NewGreeter")).
			Register(reg)
		return err
	})
	units.Register("apps/web/config/settings.go", func(_ context.Context, u scan.Unit) error {
		return reg.Instance(u.Symbol("config.Settings"), "", &Settings{Prefix: "hello "})
	})
	return units
}

func newWeb(t *testing.T, reg *container.Registry, project string, cfg *config.Config) *app.Application {
	t.Helper()
	web, err := app.New(reg, app.Options{
		Name:   "web",
		Root:   project + "/apps/web",
		Config: cfg,
		Logger: zap.NewNop(),
		Units:  webUnits(reg),
		FS:     webFS(),
	})
	require.NoError(t, err)
	return web
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

// ── New ──────────────────────────────────────────────────────────────────────

func TestNew_RegistersScopeAndFrameworkInstances(t *testing.T) {
	reg, project := newRegistry(t)
	cfg := testConfig()
	web := newWeb(t, reg, project, cfg)

	assert.Equal(t, "web", web.Name())
	assert.Equal(t, project+"/apps/web", web.Root())
	s, ok := reg.Scope("web")
	require.True(t, ok)
	assert.Same(t, s, web.Scope())
	assert.Equal(t, 200*time.Millisecond, s.Timeout())
	assert.Equal(t, 5*time.Millisecond, s.PollInterval())

	ctx := context.Background()
	gotCfg, err := app.Make[*config.Config](ctx, web)
	require.NoError(t, err)
	assert.Same(t, cfg, gotCfg)

	gotApp, err := app.Make[*app.Application](ctx, web)
	require.NoError(t, err)
	assert.Same(t, web, gotApp)

	router, err := app.Make[*routing.Router](ctx, web)
	require.NoError(t, err)
	assert.Same(t, web.Router(), router)
}

func TestNew_Validation(t *testing.T) {
	reg, project := newRegistry(t)
	_, err := app.New(reg, app.Options{Config: testConfig()})
	assert.Error(t, err)

	_, err = app.New(reg, app.Options{Name: "web", Root: project + "/a", Config: testConfig()})
	require.NoError(t, err)
	_, err = app.New(reg, app.Options{Name: "web", Root: project + "/b", Config: testConfig()})
	assert.Error(t, err, "scope names are unique")
}

func TestNew_RelativeRootAndDefaultName(t *testing.T) {
	reg, project := newRegistry(t)
	a, err := app.New(reg, app.Options{Root: "apps/shop", Config: testConfig()})
	require.NoError(t, err)
	assert.Equal(t, "shop", a.Name())
	assert.Equal(t, project+"/apps/shop", a.Root())
}

func TestNew_BootFileOverridesScan(t *testing.T) {
	reg, project := newRegistry(t)
	root := project + "/apps/web"
	require.NoError(t, os.MkdirAll(root, 0o755))
	hcl := "scan {\n  enabled = false\n  timeout_seconds = 1.5\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, config.ScanFileName), []byte(hcl), 0o644))

	var loads atomic.Int32
	units := scan.NewUnitTable(zap.NewNop())
	units.Register("apps/web/service/greeter.go", func(context.Context, scan.Unit) error {
		loads.Add(1)
		return nil
	})

	web, err := app.New(reg, app.Options{Name: "web", Root: root, Config: testConfig(), Units: units, FS: webFS()})
	require.NoError(t, err)
	assert.False(t, web.ScanConfig().Enabled)
	assert.Equal(t, 1500*time.Millisecond, web.Scope().Timeout())

	require.NoError(t, web.Boot(context.Background()))
	assert.Zero(t, loads.Load())
}

func TestNew_InvalidBootFile(t *testing.T) {
	reg, project := newRegistry(t)
	root := project + "/apps/web"
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, config.ScanFileName), []byte("scan {"), 0o644))

	_, err := app.New(reg, app.Options{Name: "web", Root: root, Config: testConfig()})
	assert.Error(t, err)
}

// ── Boot ─────────────────────────────────────────────────────────────────────

func TestBoot_LoadsUnitsAndServesRoutes(t *testing.T) {
	reg, project := newRegistry(t)
	web := newWeb(t, reg, project, testConfig())

	web.Routes(routing.NewPrefix("/api", "web",
		routing.NewEndpoint("/greet/{name}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g, err := app.Make[*Greeter](r.Context(), web)
			if err != nil {
				gohttp.NewResponse(w).DependencyError(err)
				return
			}
			gohttp.NewResponse(w).Success(g.Greet(routing.Param(r, "name")))
		})),
	))

	require.NoError(t, web.Boot(context.Background()))
	assert.True(t, web.Booted())
	assert.True(t, web.Scope().Ready())
	assert.Zero(t, web.Scope().Tasks().Len())

	rr := get(t, web.Router(), "/api/greet/ada")
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "hello ada", body["data"])
}

func TestBoot_DiagnosticsRoute(t *testing.T) {
	reg, project := newRegistry(t)
	web := newWeb(t, reg, project, testConfig())
	require.NoError(t, web.Boot(context.Background()))

	rr := get(t, web.Router(), app.DepsPath)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data struct {
			App          string `json:"app"`
			Dependencies []struct {
				Type   string `json:"type"`
				Shared bool   `json:"shared"`
			} `json:"dependencies"`
			Pending []string `json:"pending"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "web", body.Data.App)
	assert.Empty(t, body.Data.Pending)

	var types []string
	for _, d := range body.Data.Dependencies {
		types = append(types, d.Type)
		assert.False(t, d.Shared)
	}
	assert.Contains(t, types, container.KeyOf(reflect.TypeFor[*Greeter]()))
	assert.Contains(t, types, container.KeyOf(reflect.TypeFor[*Settings]()))
}

func TestBoot_DiagnosticsRouteNeedsDebug(t *testing.T) {
	reg, project := newRegistry(t)
	cfg := testConfig()
	cfg.App.Debug = false
	web := newWeb(t, reg, project, cfg)
	require.NoError(t, web.Boot(context.Background()))

	assert.Equal(t, http.StatusNotFound, get(t, web.Router(), app.DepsPath).Code)
}

func TestBoot_Idempotent(t *testing.T) {
	reg, project := newRegistry(t)
	web := newWeb(t, reg, project, testConfig())

	var runs int
	web.OnReady(func(context.Context, *app.Application) error {
		runs++
		return nil
	})
	require.NoError(t, web.Boot(context.Background()))
	require.NoError(t, web.Boot(context.Background()))
	assert.Equal(t, 1, runs)
}

func TestBoot_RoutesAfterBootAreMountedImmediately(t *testing.T) {
	reg, project := newRegistry(t)
	web := newWeb(t, reg, project, testConfig())
	require.NoError(t, web.Boot(context.Background()))

	web.Routes(routing.NewEndpoint("/late", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		gohttp.NewResponse(w).NoContent()
	})))
	assert.Equal(t, http.StatusNoContent, get(t, web.Router(), "/late").Code)
}

func TestBoot_RoutesContributedByUnitsAreMountedWithTheRest(t *testing.T) {
	reg, project := newRegistry(t)
	var web *app.Application
	units := webUnits(reg)
	units.Register("apps/web/routes/api.go", func(context.Context, scan.Unit) error {
		web.Routes(routing.NewEndpoint("/from-unit", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			gohttp.NewResponse(w).NoContent()
		})))
		return nil
	})
	fsys := webFS()
	fsys["routes/api.go"] = &fstest.MapFile{Data: []byte("package routes")}

	var err error
	web, err = app.New(reg, app.Options{
		Name:   "web",
		Root:   project + "/apps/web",
		Config: testConfig(),
		Logger: zap.NewNop(),
		Units:  units,
		FS:     fsys,
	})
	require.NoError(t, err)

	var mountedDuringHook bool
	web.OnReady(func(context.Context, *app.Application) error {
		mountedDuringHook = get(t, web.Router(), "/from-unit").Code == http.StatusNoContent
		return nil
	})
	require.NoError(t, web.Boot(context.Background()))
	assert.False(t, mountedDuringHook, "unit routes wait for the mount step")
	assert.Equal(t, http.StatusNoContent, get(t, web.Router(), "/from-unit").Code)
}

type bootCounter struct {
	container.BaseProvider
	boots *atomic.Int32
}

func (p *bootCounter) Register(*container.Registry, container.Symbol) error { return nil }

func (p *bootCounter) Boot(context.Context, *container.Registry, container.Symbol) error {
	p.boots.Add(1)
	return nil
}

func TestBoot_UnitsRegisterProvidersConcurrently(t *testing.T) {
	reg, project := newRegistry(t)
	const n = 64

	var web *app.Application
	var boots atomic.Int32
	units := scan.NewUnitTable(zap.NewNop())
	fsys := fstest.MapFS{}
	for i := range n {
		name := fmt.Sprintf("providers/p%02d.go", i)
		fsys[name] = &fstest.MapFile{Data: []byte("package providers")}
		units.Register("apps/web/"+name, func(ctx context.Context, _ scan.Unit) error {
			return web.Register(ctx, &bootCounter{boots: &boots})
		})
	}

	var err error
	web, err = app.New(reg, app.Options{
		Name:   "web",
		Root:   project + "/apps/web",
		Config: testConfig(),
		Logger: zap.NewNop(),
		Units:  units,
		FS:     fsys,
	})
	require.NoError(t, err)
	framework := len(web.Providers.Providers())

	require.NoError(t, web.Boot(context.Background()))
	assert.Len(t, web.Providers.Providers(), framework+n)
	assert.EqualValues(t, n, boots.Load())
}

func TestBoot_OnReadyRunsAfterDiscovery(t *testing.T) {
	reg, project := newRegistry(t)
	web := newWeb(t, reg, project, testConfig())

	hookErr := errors.New("hook failed")
	var sawReady bool
	web.OnReady(func(ctx context.Context, a *app.Application) error {
		sawReady = a.Scope().Ready()
		_, err := app.Make[*Greeter](ctx, a)
		return err
	})
	web.OnReady(func(context.Context, *app.Application) error { return hookErr })

	err := web.Boot(context.Background())
	assert.True(t, sawReady)
	assert.ErrorIs(t, err, hookErr)
}

func TestBoot_LoadFailure(t *testing.T) {
	reg, project := newRegistry(t)
	units := scan.NewUnitTable(zap.NewNop())
	units.Register("apps/web/service/greeter.go", func(context.Context, scan.Unit) error { return errBoom })

	web, err := app.New(reg, app.Options{
		Name: "web", Root: project + "/apps/web", Config: testConfig(), Units: units, FS: webFS(),
	})
	require.NoError(t, err)

	err = web.Boot(context.Background())
	assert.ErrorIs(t, err, scan.ErrLoadFailure)
	assert.ErrorIs(t, err, errBoom)
}

func TestBoot_FactoryFailureIsReported(t *testing.T) {
	reg, project := newRegistry(t)
	units := scan.NewUnitTable(zap.NewNop())
	units.Register("apps/web/service/greeter.go", func(_ context.Context, u scan.Unit) error {
		_, err := container.Component(func(*Settings) (*Greeter, error) { return nil, errBoom }).
			At(u.Symbol("service.NewGreeter")).
			Register(reg)
		return err
	})
	units.Register("apps/web/config/settings.go", func(_ context.Context, u scan.Unit) error {
		return reg.Instance(u.Symbol("config.Settings"), "", &Settings{})
	})

	web, err := app.New(reg, app.Options{
		Name: "web", Root: project + "/apps/web", Config: testConfig(), Units: units, FS: webFS(),
	})
	require.NoError(t, err)

	// the factory fails either while its unit loads or on a later replay
	assert.ErrorIs(t, web.Boot(context.Background()), errBoom)
}

func TestBoot_PendingComponentTimesOut(t *testing.T) {
	reg, project := newRegistry(t)
	units := scan.NewUnitTable(zap.NewNop())
	units.Register("apps/web/service/greeter.go", func(_ context.Context, u scan.Unit) error {
		_, err := container.Component(func(s *Settings) *Greeter { return &Greeter{settings: s} }).
			At(u.Symbol("service.NewGreeter")).
			Register(reg)
		return err
	})

	web, err := app.New(reg, app.Options{
		Name: "web", Root: project + "/apps/web", Config: testConfig(), Units: units, FS: webFS(),
	})
	require.NoError(t, err)
	require.NoError(t, web.Boot(context.Background()))
	assert.Equal(t, 1, web.Scope().Tasks().Len())

	start := time.Now()
	_, err = app.Make[*Greeter](context.Background(), web)
	assert.ErrorIs(t, err, container.ErrDependencyNotFound)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

// ── Sharing between applications ─────────────────────────────────────────────

func TestBoot_PromotesIncludedLibraryDependencies(t *testing.T) {
	reg, project := newRegistry(t)
	clock := &Clock{}
	require.NoError(t, reg.Instance(container.NewSymbol(project+"/lib/clock.go", "lib.Clock"), "", clock))

	cfg := testConfig()
	cfg.Scan.Include = []string{"lib"}
	web := newWeb(t, reg, project, cfg)
	require.NoError(t, web.Boot(context.Background()))

	got, err := app.Make[*Clock](context.Background(), web)
	require.NoError(t, err)
	assert.Same(t, clock, got)

	// without an include prefix the library stays out of the application
	other, err := app.New(reg, app.Options{Name: "other", Root: project + "/apps/other", Config: testConfig()})
	require.NoError(t, err)
	require.NoError(t, other.Boot(context.Background()))
	_, err = app.Make[*Clock](context.Background(), other)
	assert.ErrorIs(t, err, container.ErrDependencyNotFound)
}

func TestBoot_RehomesEarlyRegistrations(t *testing.T) {
	reg, project := newRegistry(t)
	early := &Settings{Prefix: "early "}
	require.NoError(t, reg.Instance(container.NewSymbol(project+"/apps/web/config/early.go", "config.Early"), "early", early))
	require.Equal(t, 1, reg.Global().Store().Len())

	cfg := testConfig()
	cfg.Scan.Enabled = false
	web := newWeb(t, reg, project, cfg)
	require.NoError(t, web.Boot(context.Background()))

	assert.Zero(t, reg.Global().Store().Len())
	got, err := container.ResolveByName[*Settings](context.Background(), reg, web.Root(), "early")
	require.NoError(t, err)
	assert.Same(t, early, got)
}

func TestMount_ServesSubApplicationOnceReady(t *testing.T) {
	reg, project := newRegistry(t)
	cfg := testConfig()
	cfg.Scan.Enabled = false

	host, err := app.New(reg, app.Options{Name: "host", Root: project + "/apps/host", Config: cfg})
	require.NoError(t, err)
	admin, err := app.New(reg, app.Options{Name: "admin", Root: project + "/apps/admin", Config: cfg, Sub: true})
	require.NoError(t, err)

	admin.Routes(routing.NewEndpoint("/ping", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		gohttp.NewResponse(w).Success("pong")
	})))
	host.Mount("/admin", admin)
	require.NoError(t, host.Boot(context.Background()))

	assert.Equal(t, http.StatusNotFound, get(t, host.Router(), "/admin/ping").Code)

	require.NoError(t, admin.Boot(context.Background()))
	assert.Equal(t, http.StatusOK, get(t, host.Router(), "/admin/ping").Code)
}

func TestRun_ShutsDownWithContext(t *testing.T) {
	reg, project := newRegistry(t)
	cfg := testConfig()
	cfg.Scan.Enabled = false
	web := newWeb(t, reg, project, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- web.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
