package container

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/km-arc/go-boot/framework/fsutil"
)

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger (default: the package Logger()).
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithProjectRoot sets the directory relative include/exclude prefixes are
// resolved against (default: the working directory).
func WithProjectRoot(dir string) Option {
	return func(r *Registry) { r.project = fsutil.Clean(dir) }
}

// WithGlobalTimeout sets the ownerless scope's resolution timeout.
func WithGlobalTimeout(d time.Duration) Option {
	return func(r *Registry) { r.globalTimeout = d }
}

// WithPollInterval sets the ownerless scope's polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(r *Registry) { r.pollInterval = d }
}

// WithDuplicatePolicy sets the ownerless scope's duplicate policy.
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(r *Registry) { r.duplicates = p }
}

// scopeWaiter is host work waiting for the application that owns location.
type scopeWaiter struct {
	location string
	fn       func(*Scope)
}

// Registry maps source locations to scopes: mounted applications own the
// directories below their roots, everything else belongs to the ownerless
// scope.
//
// It is also the resolver entry point, see Resolve and Provide.
type Registry struct {
	mu      sync.RWMutex
	global  *Scope
	scopes  []*Scope
	waiters []scopeWaiter

	project       string
	globalTimeout time.Duration
	pollInterval  time.Duration
	duplicates    DuplicatePolicy
	logger        *zap.Logger
}

// NewRegistry creates a registry holding only the ownerless scope.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{globalTimeout: DefaultGlobalTimeout}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = Logger()
	}
	if r.project == "" {
		if wd, err := os.Getwd(); err == nil {
			r.project = fsutil.Clean(wd)
		}
	}
	r.global = NewScope(ScopeConfig{
		Name:         GlobalScopeName,
		Timeout:      r.globalTimeout,
		PollInterval: r.pollInterval,
		Duplicates:   r.duplicates,
	}, r.logger)
	return r
}

// ProjectRoot is the base directory for relative scan prefixes.
func (r *Registry) ProjectRoot() string { return r.project }

// Global returns the ownerless scope.
func (r *Registry) Global() *Scope {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.global
}

// AddScope registers an application scope.
func (r *Registry) AddScope(cfg ScopeConfig) (*Scope, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("container: scope %q needs a root directory", cfg.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.scopes {
		if s.name == cfg.Name {
			return nil, fmt.Errorf("container: scope %q already registered", cfg.Name)
		}
	}
	s := NewScope(cfg, r.logger)
	r.scopes = append(r.scopes, s)
	r.logger.Debug("scope registered", zap.String("scope", s.name), zap.String("root", s.root))
	return s, nil
}

// Scopes returns the application scopes in registration order.
func (r *Registry) Scopes() []*Scope {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Scope, len(r.scopes))
	copy(out, r.scopes)
	return out
}

// Scope returns the application scope called name.
func (r *Registry) Scope(name string) (*Scope, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.scopes {
		if s.name == name {
			return s, true
		}
	}
	return nil, false
}

// Locate returns the scope owning location: the application with the
// deepest root containing it, or the ownerless scope.
func (r *Registry) Locate(location string) (*Scope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if owner := r.ownerLocked(location); owner != nil {
		return owner, nil
	}
	if r.global == nil {
		return nil, &ScopeNotFoundError{Location: location}
	}
	return r.global, nil
}

// ownerLocked returns the application scope with the deepest root containing
// location, or nil. Caller holds r.mu.
func (r *Registry) ownerLocked(location string) *Scope {
	var owner *Scope
	for _, s := range r.scopes {
		if s.Owns(location) && (owner == nil || len(s.root) > len(owner.root)) {
			owner = s
		}
	}
	return owner
}

func (r *Registry) owns(s *Scope, location string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ownerLocked(location) == s
}

// add stores rec in scope. Ownerless records are offered right away to every
// application that already finished discovery.
func (r *Registry) add(scope *Scope, rec *DepRecord) error {
	if err := scope.store.Add(rec); err != nil {
		return err
	}
	if scope.Ownerless() {
		for _, s := range r.Scopes() {
			if s.Ready() {
				r.Promote(rec, s)
			}
		}
	}
	return nil
}

// ── Promotion ─────────────────────────────────────────────────────────────────

// Promote offers an ownerless dependency to target. The first offer per
// (dependency, scope) decides; later calls are no-ops. The dependency is
// shared by reference when its origin matches one of the target's include
// prefixes (exclude prefixes drop it unless an include also matches).
func (r *Registry) Promote(rec *DepRecord, target *Scope) bool {
	if !rec.markPromoted(target.name) {
		return false
	}
	abs := rec.Symbol.Source
	if !target.filter.Admit(abs, fsutil.Rel(r.project, abs), false) {
		return false
	}
	if !target.store.addShared(rec) {
		return false
	}
	r.logger.Debug("dependency promoted",
		zap.String("scope", target.name),
		zap.Stringer("dependency", rec))
	return true
}

// PromoteAll offers every ownerless dependency to target and returns how
// many were added.
func (r *Registry) PromoteAll(target *Scope) int {
	global := r.Global()
	if global == nil {
		return 0
	}
	n := 0
	for _, rec := range global.store.Records() {
		if r.Promote(rec, target) {
			n++
		}
	}
	return n
}

// Rehome moves dependencies that landed in the ownerless scope only because
// their application did not exist yet. Records and pending tasks whose origin
// is owned by target leave the ownerless scope and join target.
func (r *Registry) Rehome(target *Scope) (int, error) {
	global := r.Global()
	if global == nil {
		return 0, &ScopeNotFoundError{Location: target.root}
	}
	moved := 0
	for _, rec := range global.store.Records() {
		if !r.owns(target, rec.Symbol.Source) {
			continue
		}
		if err := target.store.Add(rec); err != nil {
			return moved, err
		}
		global.store.Remove(rec)
		moved++
	}
	tasks := global.tasks.Purge(func(t *DeferredTask) bool {
		return r.owns(target, t.Symbol.Source)
	})
	target.tasks.push(tasks...)
	if moved > 0 || len(tasks) > 0 {
		r.logger.Debug("ownerless dependencies re-homed",
			zap.String("scope", target.name),
			zap.Int("records", moved),
			zap.Int("tasks", len(tasks)))
	}
	return moved, nil
}

// ── Application readiness ─────────────────────────────────────────────────────

// OnScopeReady runs fn with the scope owning location once that scope has
// finished discovery. If it already has, fn runs immediately.
func (r *Registry) OnScopeReady(location string, fn func(*Scope)) {
	r.mu.Lock()
	if s := r.ownerLocked(location); s != nil && s.Ready() {
		r.mu.Unlock()
		fn(s)
		return
	}
	r.waiters = append(r.waiters, scopeWaiter{location: location, fn: fn})
	r.mu.Unlock()
}

// MarkReady flags s as discovered and runs the waiters it owns.
func (r *Registry) MarkReady(s *Scope) {
	s.ready.Store(true)
	r.mu.Lock()
	var run []scopeWaiter
	kept := r.waiters[:0:0]
	for _, w := range r.waiters {
		if r.ownerLocked(w.location) == s {
			run = append(run, w)
			continue
		}
		kept = append(kept, w)
	}
	r.waiters = kept
	r.mu.Unlock()

	for _, w := range run {
		w.fn(s)
	}
}

// Clear resets every scope and drops pending waiters. Meant for test
// isolation.
func (r *Registry) Clear() {
	r.mu.Lock()
	scopes := append([]*Scope{r.global}, r.scopes...)
	r.waiters = nil
	r.mu.Unlock()
	for _, s := range scopes {
		if s != nil {
			s.Clear()
		}
	}
}

// Close clears every scope and detaches them. Later lookups fail with
// *ScopeNotFoundError.
func (r *Registry) Close() {
	r.Clear()
	r.mu.Lock()
	r.global = nil
	r.scopes = nil
	r.mu.Unlock()
}

// Records lists every dependency per scope name (for debugging).
func (r *Registry) Records() map[string][]*DepRecord {
	out := make(map[string][]*DepRecord)
	if g := r.Global(); g != nil {
		out[g.name] = g.store.Records()
	}
	for _, s := range r.Scopes() {
		out[s.name] = s.store.Records()
	}
	return out
}
