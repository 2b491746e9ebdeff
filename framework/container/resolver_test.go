package container_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-boot/framework/container"
)

func webScope(t *testing.T, timeout, interval time.Duration) (*container.Registry, string) {
	t.Helper()
	reg := newRegistry(t)
	addScope(t, reg, container.ScopeConfig{
		Name: "web", Root: project + "/web", Timeout: timeout, PollInterval: interval,
	})
	return reg, project + "/web/handler.go"
}

func TestResolve_RegisteredLater(t *testing.T) {
	reg, loc := webScope(t, time.Second, 100*time.Millisecond)
	cfg := &Config{Env: "late"}

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = reg.Instance(sym(project+"/web/config.go"), "", cfg)
	}()

	start := time.Now()
	got, err := container.ResolveByType[*Config](context.Background(), reg, loc)
	require.NoError(t, err)
	assert.Same(t, cfg, got)
	// woken by the store write rather than the next poll tick
	assert.Less(t, time.Since(start), 90*time.Millisecond)
}

func TestResolve_TimeoutBounds(t *testing.T) {
	const (
		timeout  = 60 * time.Millisecond
		interval = 20 * time.Millisecond
	)
	reg, loc := webScope(t, timeout, interval)

	start := time.Now()
	_, err := container.ResolveByType[*Config](context.Background(), reg, loc)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, container.ErrDependencyNotFound))
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+interval+50*time.Millisecond)

	var nf *container.DependencyNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "web", nf.Scope)
	assert.Equal(t, loc, nf.Location)
	assert.Equal(t, container.LookupType, nf.Query.Kind)
}

func TestResolve_AmbiguityFailsImmediately(t *testing.T) {
	reg, loc := webScope(t, 5*time.Second, 100*time.Millisecond)
	require.NoError(t, reg.Instance(sym(project+"/web/a.go"), "a1", &Animal{Name: "a1"}))
	require.NoError(t, reg.Instance(sym(project+"/web/b.go"), "a2", &Animal{Name: "a2"}))

	start := time.Now()
	_, err := container.ResolveByType[*Animal](context.Background(), reg, loc)
	assert.True(t, errors.Is(err, container.ErrAmbiguousDependency))
	assert.Less(t, time.Since(start), time.Second)
}

func TestResolve_ZeroTimeoutWaitsUntilRegistered(t *testing.T) {
	reg, loc := webScope(t, 0, 10*time.Millisecond)

	go func() {
		time.Sleep(80 * time.Millisecond)
		_ = reg.Instance(sym(project+"/web/config.go"), "", &Config{Env: "eventually"})
	}()

	got, err := container.ResolveByType[*Config](context.Background(), reg, loc)
	require.NoError(t, err)
	assert.Equal(t, "eventually", got.Env)
}

func TestResolve_ContextCancelled(t *testing.T) {
	reg, loc := webScope(t, 0, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := container.ResolveByType[*Config](ctx, reg, loc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestResolve_ByNameAndTypeName(t *testing.T) {
	reg, loc := webScope(t, 50*time.Millisecond, 5*time.Millisecond)
	require.NoError(t, reg.Instance(sym(project+"/web/a.go"), "cat", &Animal{Name: "cat"}))
	require.NoError(t, reg.Instance(sym(project+"/web/c.go"), "", &Config{Env: "x"}))

	cat, err := container.ResolveByName[*Animal](context.Background(), reg, loc, "cat")
	require.NoError(t, err)
	assert.Equal(t, "cat", cat.Name)

	v, err := container.ResolveByTypeName(context.Background(), reg, loc, "Config")
	require.NoError(t, err)
	assert.Equal(t, "x", v.(*Config).Env)
}

func TestResolve_ReplaysDeferredTasks(t *testing.T) {
	reg, loc := webScope(t, time.Second, 20*time.Millisecond)

	task, err := container.Component(func(c *Config) *Animal { return &Animal{Name: c.Env} }).
		At(sym(project + "/web/animal.go")).
		Register(reg)
	require.NoError(t, err)
	require.NotNil(t, task)

	require.NoError(t, reg.Instance(sym(project+"/web/config.go"), "", &Config{Env: "rex"}))

	a, err := container.ResolveByType[*Animal](context.Background(), reg, loc)
	require.NoError(t, err)
	assert.Equal(t, "rex", a.Name)
	assert.True(t, task.Done())
}

func TestInvoke(t *testing.T) {
	reg, loc := webScope(t, time.Second, 10*time.Millisecond)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		_ = reg.Instance(sym(project+"/web/a.go"), "dog", &Animal{Name: "dog"})
	}()
	require.NoError(t, reg.Instance(sym(project+"/web/c.go"), "", &Config{Env: "prod"}))

	out, err := reg.Invoke(context.Background(), loc, func(c *Config, a *Animal) (string, error) {
		return c.Env + ":" + a.Name, nil
	}, container.ParamSpec{}, container.ByName("dog"))
	wg.Wait()

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "prod:dog", out[0])
}

func TestInvoke_ErrorResult(t *testing.T) {
	reg, loc := webScope(t, time.Second, 10*time.Millisecond)
	boom := errors.New("boom")

	_, err := reg.Invoke(context.Background(), loc, func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	_, err = reg.Invoke(context.Background(), loc, "not a func")
	assert.Error(t, err)
}

func TestInject(t *testing.T) {
	// the test file lives outside every application root
	reg := newRegistry(t)
	cfg := &Config{Env: "global"}
	require.NoError(t, reg.Instance(container.CallerSymbol(0), "", cfg))

	assert.Same(t, cfg, container.Inject[*Config](reg))
	assert.Panics(t, func() { container.InjectNamed[*Config](reg, "missing") })
}
