package container

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
)

var errorType = reflect.TypeFor[error]()

// ParamSpec overrides how one factory parameter is looked up. The zero value
// looks the parameter up by its declared type.
type ParamSpec struct {
	Name     string
	TypeName string
}

// ByName looks the parameter up by (parameter type, name).
func ByName(name string) ParamSpec { return ParamSpec{Name: name} }

// ByTypeName looks the parameter up by type name, for dependencies that are
// only forward-declared.
func ByTypeName(typeName string) ParamSpec { return ParamSpec{TypeName: typeName} }

// Param is one resolved parameter of a factory.
type Param struct {
	Type reflect.Type
	Spec ParamSpec
}

// Query is the lookup performed for p.
func (p Param) Query() Query {
	switch {
	case p.Spec.TypeName != "":
		return TypeNameQuery(p.Spec.TypeName)
	case p.Spec.Name != "":
		return NameQuery(p.Type, p.Spec.Name)
	default:
		return TypeQuery(p.Type)
	}
}

func paramsOf(ft reflect.Type, specs []ParamSpec) []Param {
	params := make([]Param, ft.NumIn())
	for i := range params {
		params[i].Type = ft.In(i)
		if i < len(specs) {
			params[i].Spec = specs[i]
		}
	}
	return params
}

// Binding is a fully described component registration.
type Binding struct {
	Symbol   Symbol
	Name     string
	Type     reflect.Type
	TypeName string
	Factory  any
	Params   []Param
}

// forward reports whether the binding is declared by type name only.
func (b Binding) forward() bool { return b.Type == nil && b.TypeName != "" }

func (b Binding) record(value any) *DepRecord {
	if b.forward() {
		return NewForwardRecord(b.Symbol, b.Name, b.TypeName, value)
	}
	return NewRecord(b.Symbol, b.Name, b.Type, value)
}

// ── Builder ───────────────────────────────────────────────────────────────────

// ComponentBuilder is the fluent registration API for constructor-injected
// components.
//
//	container.Component(NewUserRepository).
//	    Named("primary").
//	    Param(0, container.ByName("main-db")).
//	    Register(reg)
type ComponentBuilder struct {
	factory  any
	name     string
	typ      reflect.Type
	typeName string
	sym      Symbol
	specs    map[int]ParamSpec
}

// Component starts a registration for factory, a function whose parameters
// are its dependencies and whose first result is the instance. An optional
// trailing error result is honoured.
func Component(factory any) *ComponentBuilder {
	return &ComponentBuilder{factory: factory, sym: SymbolOf(factory), specs: make(map[int]ParamSpec)}
}

// Named registers the component under name inside its type bucket.
func (c *ComponentBuilder) Named(name string) *ComponentBuilder {
	c.name = name
	return c
}

// As forward-declares the component under a type name instead of its result
// type.
func (c *ComponentBuilder) As(typeName string) *ComponentBuilder {
	c.typeName = typeName
	c.typ = nil
	return c
}

// Type declares the component under t, typically an interface its result
// implements.
//
//	container.Component(NewRedisCache).Type(reflect.TypeFor[cache.Store]()).Register(reg)
func (c *ComponentBuilder) Type(t reflect.Type) *ComponentBuilder {
	c.typ = t
	c.typeName = ""
	return c
}

// Param overrides the lookup of parameter i.
func (c *ComponentBuilder) Param(i int, spec ParamSpec) *ComponentBuilder {
	c.specs[i] = spec
	return c
}

// At overrides the origin symbol, which decides the owning scope.
func (c *ComponentBuilder) At(sym Symbol) *ComponentBuilder {
	c.sym = sym
	return c
}

// Binding validates the builder and returns the registration it describes.
func (c *ComponentBuilder) Binding() (Binding, error) {
	fv := reflect.ValueOf(c.factory)
	if fv.Kind() != reflect.Func || fv.IsNil() {
		return Binding{}, fmt.Errorf("container: component factory must be a function, got %T", c.factory)
	}
	ft := fv.Type()
	switch {
	case ft.NumOut() == 1 && ft.Out(0) != errorType:
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
	default:
		return Binding{}, fmt.Errorf("container: component factory %s must return (T) or (T, error)", ft)
	}
	if c.sym.IsZero() {
		return Binding{}, errors.New("container: component has no origin symbol, use At")
	}
	for i := range c.specs {
		if i < 0 || i >= ft.NumIn() {
			return Binding{}, fmt.Errorf("container: parameter %d out of range for %s", i, ft)
		}
	}

	specs := make([]ParamSpec, ft.NumIn())
	for i, s := range c.specs {
		specs[i] = s
	}
	b := Binding{
		Symbol:   c.sym,
		Name:     c.name,
		Type:     c.typ,
		TypeName: c.typeName,
		Factory:  c.factory,
		Params:   paramsOf(ft, specs),
	}
	if b.Type == nil && b.TypeName == "" {
		b.Type = ft.Out(0)
	}
	if b.Type != nil && !ft.Out(0).AssignableTo(b.Type) {
		return Binding{}, fmt.Errorf("container: %s is not assignable to %s", ft.Out(0), b.Type)
	}
	return b, nil
}

// Register validates the builder and provides the component to reg.
func (c *ComponentBuilder) Register(reg *Registry) (*DeferredTask, error) {
	b, err := c.Binding()
	if err != nil {
		return nil, err
	}
	return reg.Provide(b)
}

// ── Provide ───────────────────────────────────────────────────────────────────

// Provide builds b if its dependencies are available in the scope owning its
// symbol and adds the instance to that scope. Missing dependencies do not
// block: the build is queued and returned as a DeferredTask, retried on every
// consistency pass of the scope it lives in. Ambiguous parameters and factory
// errors are returned as-is.
//
// A binding is built at most once.
func (r *Registry) Provide(b Binding) (*DeferredTask, error) {
	var built atomic.Bool
	attempt := func() error {
		if built.Load() {
			return nil
		}
		scope, err := r.Locate(b.Symbol.Source)
		if err != nil {
			return err
		}
		args, err := scope.lookupParams(b.Params)
		if err != nil {
			return err
		}
		out := reflect.ValueOf(b.Factory).Call(args)
		if len(out) == 2 && !out[1].IsNil() {
			return &BuildError{Symbol: b.Symbol, Err: out[1].Interface().(error)}
		}
		if err := r.add(scope, b.record(out[0].Interface())); err != nil {
			return err
		}
		built.Store(true)
		return nil
	}

	err := attempt()
	if err == nil || !errors.Is(err, ErrNotReady) {
		return nil, err
	}
	scope, lerr := r.Locate(b.Symbol.Source)
	if lerr != nil {
		return nil, lerr
	}
	return scope.tasks.Enqueue(b.Symbol, attempt), nil
}

// Instance registers a pre-built value declared as its dynamic type.
//
//	reg.Instance(container.CallerSymbol(0), "", cfg)
func (r *Registry) Instance(at Symbol, name string, value any) error {
	return r.instance(at, name, reflect.TypeOf(value), value)
}

// ProvideValue registers value declared as T, which may be an interface.
func ProvideValue[T any](r *Registry, at Symbol, name string, value T) error {
	return r.instance(at, name, reflect.TypeFor[T](), value)
}

func (r *Registry) instance(at Symbol, name string, t reflect.Type, value any) error {
	scope, err := r.Locate(at.Source)
	if err != nil {
		return err
	}
	return r.add(scope, NewRecord(at, name, t, value))
}

// lookupParams performs one non-blocking lookup per parameter. An absent
// parameter triggers a consistency pass and a second lookup before the whole
// attempt is reported as not ready.
func (s *Scope) lookupParams(params []Param) ([]reflect.Value, error) {
	args := make([]reflect.Value, len(params))
	for i, p := range params {
		q := p.Query()
		rec, err := s.lookupOnce(q)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, notReady(q)
		}
		arg, err := argFor(rec.Value, p)
		if err != nil {
			return nil, err
		}
		args[i] = arg
	}
	return args, nil
}
