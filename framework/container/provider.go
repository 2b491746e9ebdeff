package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ── ServiceProvider interface ─────────────────────────────────────────────────

// ServiceProvider groups component registrations for one application.
//
// Register is called with the symbol of the application the provider belongs
// to, so every component it declares lands in that application's scope.
// Boot is called once the application finished discovery, making it safe to
// resolve anything the scope will ever see.
//
//	type CacheProvider struct{ container.BaseProvider }
//
//	func (p *CacheProvider) Register(reg *container.Registry, at container.Symbol) error {
//	    _, err := container.Component(cache.NewRedis).At(at).Register(reg)
//	    return err
//	}
//
//	func (p *CacheProvider) Boot(ctx context.Context, reg *container.Registry, at container.Symbol) error {
//	    c, err := container.ResolveByType[*cache.Redis](ctx, reg, at.Source)
//	    if err != nil {
//	        return err
//	    }
//	    return c.Ping(ctx)
//	}
type ServiceProvider interface {
	// Register declares components. Do not block on resolution here.
	Register(reg *Registry, at Symbol) error

	// Boot runs after the owning application is ready.
	Boot(ctx context.Context, reg *Registry, at Symbol) error
}

// ── BaseProvider ──────────────────────────────────────────────────────────────

// BaseProvider is an embeddable struct with a no-op Boot.
//
//	type MyProvider struct{ container.BaseProvider }
//	func (p *MyProvider) Register(reg *container.Registry, at container.Symbol) error { ... }
type BaseProvider struct{}

func (p *BaseProvider) Boot(context.Context, *Registry, Symbol) error { return nil }

// ── ProviderRegistry ──────────────────────────────────────────────────────────

// ProviderRegistry registers and boots the providers of one application. It
// is safe for concurrent use: unit loaders may register providers while the
// application discovers its units.
type ProviderRegistry struct {
	reg *Registry
	at  Symbol

	mu         sync.Mutex
	providers  []ServiceProvider
	registered map[ServiceProvider]bool
	booted     bool
}

// NewProviderRegistry creates a provider registry whose components are
// declared at the application symbol at.
func NewProviderRegistry(reg *Registry, at Symbol) *ProviderRegistry {
	return &ProviderRegistry{
		reg:        reg,
		at:         at,
		registered: make(map[ServiceProvider]bool),
	}
}

// Register adds a provider and calls its Register method. Registering the
// same provider twice is a no-op. Providers added after Boot are booted
// immediately.
func (r *ProviderRegistry) Register(ctx context.Context, p ServiceProvider) error {
	r.mu.Lock()
	if r.registered[p] {
		r.mu.Unlock()
		return nil
	}
	r.registered[p] = true
	r.mu.Unlock()

	if err := p.Register(r.reg, r.at); err != nil {
		return fmt.Errorf("register provider %T: %w", p, err)
	}

	r.mu.Lock()
	r.providers = append(r.providers, p)
	booted := r.booted
	r.mu.Unlock()

	if booted {
		return r.boot(ctx, p)
	}
	return nil
}

// Boot calls Boot on every registered provider and joins their errors.
// Providers registered while Boot runs are booted by Register.
func (r *ProviderRegistry) Boot(ctx context.Context) error {
	r.mu.Lock()
	if r.booted {
		r.mu.Unlock()
		return nil
	}
	r.booted = true
	providers := make([]ServiceProvider, len(r.providers))
	copy(providers, r.providers)
	r.mu.Unlock()

	var errs []error
	for _, p := range providers {
		if err := r.boot(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *ProviderRegistry) boot(ctx context.Context, p ServiceProvider) error {
	if err := p.Boot(ctx, r.reg, r.at); err != nil {
		return fmt.Errorf("boot provider %T: %w", p, err)
	}
	return nil
}

// Booted reports whether Boot has been called.
func (r *ProviderRegistry) Booted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.booted
}

// Providers returns the registered providers in registration order.
func (r *ProviderRegistry) Providers() []ServiceProvider {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ServiceProvider, len(r.providers))
	copy(out, r.providers)
	return out
}
