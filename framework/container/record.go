package container

import (
	"fmt"
	"reflect"
	"sync"
)

// LookupKind selects how a Query matches records.
type LookupKind int

const (
	// LookupType matches every record of the declared type.
	LookupType LookupKind = iota
	// LookupName matches the record registered under (type, name).
	LookupName
	// LookupTypeName matches by type name string, for forward references.
	LookupTypeName
)

// Query describes one dependency lookup.
type Query struct {
	Kind     LookupKind
	Type     reflect.Type
	Name     string
	TypeName string
}

// TypeQuery looks a dependency up by its declared type.
func TypeQuery(t reflect.Type) Query { return Query{Kind: LookupType, Type: t} }

// NameQuery looks a dependency up by (type, name).
func NameQuery(t reflect.Type, name string) Query {
	return Query{Kind: LookupName, Type: t, Name: name}
}

// TypeNameQuery looks a dependency up by the name of its type.
func TypeNameQuery(typeName string) Query {
	return Query{Kind: LookupTypeName, TypeName: typeName}
}

func (q Query) String() string {
	switch q.Kind {
	case LookupName:
		return fmt.Sprintf("%s named %q", typeString(q.Type), q.Name)
	case LookupTypeName:
		return fmt.Sprintf("type name %q", q.TypeName)
	default:
		return fmt.Sprintf("type %s", typeString(q.Type))
	}
}

// DepRecord is one resolved dependency.
//
// Type is nil for forward-declared records, which only carry TypeName.
// Promotion shares the record pointer between scopes; the value is never
// copied.
type DepRecord struct {
	Symbol   Symbol
	Name     string
	Type     reflect.Type
	TypeName string
	Value    any

	mu       sync.Mutex
	promoted map[string]struct{}
}

// NewRecord creates a record for value declared as type t.
func NewRecord(sym Symbol, name string, t reflect.Type, value any) *DepRecord {
	return &DepRecord{Symbol: sym, Name: name, Type: t, TypeName: ShortName(t), Value: value}
}

// NewForwardRecord creates a record whose type is only known by name.
func NewForwardRecord(sym Symbol, name, typeName string, value any) *DepRecord {
	return &DepRecord{Symbol: sym, Name: name, TypeName: typeName, Value: value}
}

// Forward reports whether the record was declared by type name only.
func (r *DepRecord) Forward() bool { return r.Type == nil }

// Key is the store bucket key of the record.
func (r *DepRecord) Key() string {
	if r.Type == nil {
		return r.TypeName
	}
	return KeyOf(r.Type)
}

// markPromoted records that the dependency was offered to scope and reports
// whether this is the first time.
func (r *DepRecord) markPromoted(scope string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.promoted == nil {
		r.promoted = make(map[string]struct{})
	}
	if _, ok := r.promoted[scope]; ok {
		return false
	}
	r.promoted[scope] = struct{}{}
	return true
}

func (r *DepRecord) String() string {
	name := r.Name
	if name == "" {
		name = "-"
	}
	return fmt.Sprintf("%s[%s] @ %s", r.Key(), name, r.Symbol)
}

// ── Type keys ─────────────────────────────────────────────────────────────────

// TypeKey returns the package-qualified type name of v, useful as a stable
// key when logging or comparing declared types.
//
//	key := container.TypeKey((*UserRepository)(nil))  // "*example.com/app.UserRepository"
func TypeKey(v any) string {
	return KeyOf(reflect.TypeOf(v))
}

// KeyOf is TypeKey for a reflect.Type. Pointer types keep their "*" so *T and
// T are distinct keys.
func KeyOf(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	if t.Kind() == reflect.Pointer {
		return "*" + KeyOf(t.Elem())
	}
	return t.String()
}

// ShortName is the bare type name used to match forward references. Pointers
// are dereferenced, so "Config" names both Config and *Config.
func ShortName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}

func typeString(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
