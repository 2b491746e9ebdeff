package container

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/km-arc/go-boot/framework/fsutil"
)

// GlobalScopeName names the ownerless scope.
const GlobalScopeName = "no-app"

const (
	// DefaultPollInterval is the fixed wait between resolution attempts.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultGlobalTimeout bounds resolution in the ownerless scope.
	DefaultGlobalTimeout = 10 * time.Second
)

// ScopeConfig describes an ownership boundary.
type ScopeConfig struct {
	// Name identifies the scope; application scopes must be unique.
	Name string
	// Root is the directory owned by the scope. Empty for the ownerless scope.
	Root string
	// Timeout bounds blocking resolution. Zero or negative waits forever.
	Timeout time.Duration
	// PollInterval is the fixed wait between attempts. Defaults to
	// DefaultPollInterval.
	PollInterval time.Duration
	// Include and Exclude are path prefixes deciding which ownerless
	// dependencies the scope takes over.
	Include []string
	Exclude []string
	// Duplicates is the store's duplicate policy.
	Duplicates DuplicatePolicy
}

// Scope is an ownership boundary with its own store and task queue.
type Scope struct {
	name     string
	root     string
	timeout  time.Duration
	interval time.Duration
	filter   fsutil.Filter

	store *Store
	tasks *TaskQueue
	ready atomic.Bool

	logger *zap.Logger
}

// NewScope creates a scope from cfg.
func NewScope(cfg ScopeConfig, l *zap.Logger) *Scope {
	if l == nil {
		l = Logger()
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	l = l.With(zap.String("scope", cfg.Name))
	return &Scope{
		name:     cfg.Name,
		root:     fsutil.Clean(cfg.Root),
		timeout:  cfg.Timeout,
		interval: interval,
		filter:   fsutil.Filter{Include: cfg.Include, Exclude: cfg.Exclude},
		store:    NewStore(StoreConfig{Name: cfg.Name, Duplicates: cfg.Duplicates, Logger: l}),
		tasks:    NewTaskQueue(cfg.Name, l),
		logger:   l,
	}
}

// Name identifies the scope in logs and errors.
func (s *Scope) Name() string { return s.name }

// Root is the directory the scope owns. It is empty for the no-app scope.
func (s *Scope) Root() string { return s.root }

// Timeout bounds a blocking resolution. Zero or less waits forever.
func (s *Scope) Timeout() time.Duration { return s.timeout }

// PollInterval is the wait between two resolution rounds.
func (s *Scope) PollInterval() time.Duration { return s.interval }

// Filter selects the ownerless dependencies the scope takes over.
func (s *Scope) Filter() fsutil.Filter { return s.filter }

// Store holds the scope's dependency records.
func (s *Scope) Store() *Store { return s.store }

// Tasks holds the scope's deferred registrations.
func (s *Scope) Tasks() *TaskQueue { return s.tasks }

// Ownerless reports whether s is the no-app scope.
func (s *Scope) Ownerless() bool { return s.root == "" }

// Ready reports whether the owning application finished discovery.
func (s *Scope) Ready() bool { return s.ready.Load() }

// Owns reports whether location lies under the scope root.
func (s *Scope) Owns(location string) bool {
	return s.root != "" && fsutil.Within(location, s.root)
}

// Replay runs the scope's deferred tasks to a fixpoint and returns permanent
// failures of this pass.
func (s *Scope) Replay() []error {
	_, failures := s.tasks.ReplayAll()
	return failures
}

// Lookup performs one non-blocking lookup.
func (s *Scope) Lookup(q Query) (*DepRecord, error) {
	return s.store.Lookup(q)
}

// lookupOnce is a lookup followed, when absent, by a consistency pass and a
// second lookup.
func (s *Scope) lookupOnce(q Query) (*DepRecord, error) {
	rec, err := s.store.Lookup(q)
	if err != nil || rec != nil {
		return rec, err
	}
	s.Replay()
	return s.store.Lookup(q)
}

// Clear drops the scope's records and tasks.
func (s *Scope) Clear() {
	s.store.Clear()
	s.tasks.Clear()
	s.ready.Store(false)
}
