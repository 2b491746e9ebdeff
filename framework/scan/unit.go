// Package scan discovers code units below an application root and loads them
// concurrently.
//
// Go has no runtime module import, so a unit's top-level declarations are
// expressed as a LoadFunc registered in a UnitTable under the unit's
// project-relative path. Loading a unit runs its LoadFunc exactly once; the
// function registers the unit's components as a side effect.
//
//	units := scan.NewUnitTable(log)
//	units.Register("apps/web/service/user.go", func(ctx context.Context, u scan.Unit) error {
//	    _, err := container.Component(NewUserService).Register(reg)
//	    return err
//	})
package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/km-arc/go-boot/framework/container"
	"github.com/km-arc/go-boot/framework/fsutil"
)

// ErrLoadFailure matches *LoadFailureError.
var ErrLoadFailure = errors.New("unit load failed")

// Unit is one loadable source unit.
type Unit struct {
	// ID is the project-relative slash path of the unit.
	ID string
	// Path is the absolute slash path of the unit.
	Path string
}

func (u Unit) String() string { return u.ID }

// Symbol is an origin symbol located in u. Loaders use it for instances and
// components whose factory is declared elsewhere, so they land in the scope
// owning the unit.
//
//	reg.Instance(u.Symbol("web.DefaultSettings"), "", settings)
func (u Unit) Symbol(qualified string) container.Symbol {
	return container.NewSymbol(u.Path, qualified)
}

// LoadFunc executes a unit's declarations.
type LoadFunc func(ctx context.Context, u Unit) error

// LoadFailureError reports a unit whose load function failed or panicked.
type LoadFailureError struct {
	Unit Unit
	Err  error
}

func (e *LoadFailureError) Error() string {
	return fmt.Sprintf("load unit %s: %v", e.Unit.ID, e.Err)
}

func (e *LoadFailureError) Unwrap() error { return e.Err }

func (e *LoadFailureError) Is(target error) bool { return target == ErrLoadFailure }

type entry struct {
	fn   LoadFunc
	once sync.Once
	err  error
}

// UnitTable maps unit ids to their load functions.
type UnitTable struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *zap.Logger
}

// NewUnitTable creates an empty table.
func NewUnitTable(l *zap.Logger) *UnitTable {
	if l == nil {
		l = zap.NewNop()
	}
	return &UnitTable{entries: make(map[string]*entry), logger: l}
}

// Register sets the load function of unit id. Registering an id twice keeps
// the first function.
func (t *UnitTable) Register(id string, fn LoadFunc) {
	id = fsutil.Clean(id)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; ok {
		t.logger.Warn("unit registered twice, keeping the first loader", zap.String("unit", id))
		return
	}
	t.entries[id] = &entry{fn: fn}
}

// Has reports whether id has a load function.
func (t *UnitTable) Has(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.entries[fsutil.Clean(id)]
	return ok
}

// IDs returns the registered unit ids, sorted.
func (t *UnitTable) IDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Load runs the load function of u once. Later calls return the first
// outcome. Units without a load function are skipped.
func (t *UnitTable) Load(ctx context.Context, u Unit) error {
	t.mu.RLock()
	e, ok := t.entries[fsutil.Clean(u.ID)]
	t.mu.RUnlock()
	if !ok {
		t.logger.Debug("no loader for unit", zap.String("unit", u.ID))
		return nil
	}
	e.once.Do(func() {
		e.err = safeLoad(ctx, e.fn, u)
	})
	if e.err != nil {
		return &LoadFailureError{Unit: u, Err: e.err}
	}
	return nil
}

func safeLoad(ctx context.Context, fn LoadFunc, u Unit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, u)
}
