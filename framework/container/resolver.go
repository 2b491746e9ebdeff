package container

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

// Resolve blocks until the dependency described by q is available in the
// scope owning location.
//
// Each round performs a lookup and, when nothing matches, replays the
// scope's deferred tasks and looks again. Between rounds it waits for the
// scope's poll interval or the next write to the store, whichever comes
// first. After the scope timeout it fails with *DependencyNotFoundError; a
// timeout of zero or less waits forever. Ambiguous matches fail at once.
func (r *Registry) Resolve(ctx context.Context, location string, q Query) (any, error) {
	scope, err := r.Locate(location)
	if err != nil {
		return nil, err
	}
	rec, err := scope.resolve(ctx, q, location)
	if err != nil {
		return nil, err
	}
	return rec.Value, nil
}

func (s *Scope) resolve(ctx context.Context, q Query, location string) (*DepRecord, error) {
	start := time.Now()
	var deadline time.Time
	if s.timeout > 0 {
		deadline = start.Add(s.timeout)
	}

	for {
		changed := s.store.Changed()
		rec, err := s.lookupOnce(q)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}

		wait := s.interval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, &DependencyNotFoundError{
					Query:    q,
					Scope:    s.name,
					Location: location,
					Waited:   time.Since(start),
				}
			}
			wait = min(wait, remaining)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("resolving %s: %w", q, ctx.Err())
		case <-changed:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// ── Generics helpers ──────────────────────────────────────────────────────────

// ResolveByType resolves the single dependency of type T visible from
// location.
//
//	svc, err := container.ResolveByType[*UserService](ctx, reg, sym.Source)
func ResolveByType[T any](ctx context.Context, r *Registry, location string) (T, error) {
	return resolveAs[T](ctx, r, location, TypeQuery(reflect.TypeFor[T]()))
}

// ResolveByName resolves the dependency of type T registered under name.
func ResolveByName[T any](ctx context.Context, r *Registry, location, name string) (T, error) {
	return resolveAs[T](ctx, r, location, NameQuery(reflect.TypeFor[T](), name))
}

// ResolveByTypeName resolves a forward reference by type name.
func ResolveByTypeName(ctx context.Context, r *Registry, location, typeName string) (any, error) {
	return r.Resolve(ctx, location, TypeNameQuery(typeName))
}

func resolveAs[T any](ctx context.Context, r *Registry, location string, q Query) (T, error) {
	var zero T
	v, err := r.Resolve(ctx, location, q)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, &ParamTypeError{Query: q, Have: reflect.TypeOf(v), Want: reflect.TypeFor[T]()}
	}
	return typed, nil
}

// Inject resolves T from the scope owning the caller's source file and
// panics when resolution fails.
//
//	// inside a handler constructor living under the application root
//	repo := container.Inject[*UserRepository](reg)
func Inject[T any](r *Registry) T {
	loc := CallerSymbol(1).Source
	v, err := ResolveByType[T](context.Background(), r, loc)
	if err != nil {
		panic(fmt.Sprintf("container: Inject[%T]: %v", *new(T), err))
	}
	return v
}

// InjectNamed is Inject for a named dependency.
func InjectNamed[T any](r *Registry, name string) T {
	loc := CallerSymbol(1).Source
	v, err := ResolveByName[T](context.Background(), r, loc, name)
	if err != nil {
		panic(fmt.Sprintf("container: InjectNamed[%T](%q): %v", *new(T), name, err))
	}
	return v
}

// ── Constructor injection ─────────────────────────────────────────────────────

// Invoke resolves every parameter of fn with the blocking resolver, calls fn
// and returns its results. A trailing non-nil error result is returned as
// the error.
//
//	out, err := reg.Invoke(ctx, sym.Source, func(svc *UserService, cfg *config.Config) *UserController {
//	    return &UserController{svc: svc, cfg: cfg}
//	})
func (r *Registry) Invoke(ctx context.Context, location string, fn any, specs ...ParamSpec) ([]any, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return nil, fmt.Errorf("container: Invoke needs a function, got %T", fn)
	}
	params := paramsOf(fv.Type(), specs)
	args, err := r.ResolveParams(ctx, location, params)
	if err != nil {
		return nil, err
	}
	return splitResults(fv.Call(args))
}

// ResolveParams resolves a declared parameter list with the blocking
// resolver.
func (r *Registry) ResolveParams(ctx context.Context, location string, params []Param) ([]reflect.Value, error) {
	args := make([]reflect.Value, len(params))
	for i, p := range params {
		v, err := r.Resolve(ctx, location, p.Query())
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		arg, err := argFor(v, p)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		args[i] = arg
	}
	return args, nil
}

func splitResults(out []reflect.Value) ([]any, error) {
	res := make([]any, 0, len(out))
	for i, v := range out {
		if i == len(out)-1 && v.Type() == errorType {
			if !v.IsNil() {
				return res, v.Interface().(error)
			}
			break
		}
		res = append(res, v.Interface())
	}
	return res, nil
}

// argFor converts a resolved instance to an argument for p. Forward records
// match on type name only, so the value may not fit the parameter type.
func argFor(v any, p Param) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(p.Type), nil
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.Type().AssignableTo(p.Type):
		return rv, nil
	case rv.Type().ConvertibleTo(p.Type):
		return rv.Convert(p.Type), nil
	}
	return reflect.Value{}, &ParamTypeError{Query: p.Query(), Have: rv.Type(), Want: p.Type}
}
