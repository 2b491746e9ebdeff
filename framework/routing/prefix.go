package routing

import (
	"net/http"
	"strings"
)

// Record is a route declaration: an Endpoint or a Prefix grouping more
// records.
type Record interface {
	RecordPath() string
}

// Endpoint is a leaf route.
type Endpoint struct {
	Methods []string
	Path    string
	Name    string
	Handler http.Handler
}

func (e Endpoint) RecordPath() string { return e.Path }

// Prefix groups records under a shared path segment. Owner names the type
// that declared the group, for diagnostics.
type Prefix struct {
	Path     string
	Owner    string
	Children []Record
}

func (p Prefix) RecordPath() string { return p.Path }

// NormalizePath gives a segment exactly one leading slash and no trailing
// slash. The empty and root segments normalize to "".
//
//	NormalizePath("a")   // "/a"
//	NormalizePath("/a/") // "/a"
//	NormalizePath("/")   // ""
func NormalizePath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// NewEndpoint declares a leaf route. Methods default to GET when mounted.
//
//	routing.NewEndpoint("users/{id}", http.HandlerFunc(show), http.MethodGet)
func NewEndpoint(path string, h http.Handler, methods ...string) Endpoint {
	return Endpoint{Methods: methods, Path: NormalizePath(path), Handler: h}
}

// Named returns a copy of e with a route name.
func (e Endpoint) Named(name string) Endpoint {
	e.Name = name
	return e
}

// NewPrefix declares a group. The children are merged with the normalized
// path right away, so a Prefix always carries fully merged descendants
// relative to its own parent.
//
//	routing.NewPrefix("/api", "", routing.NewPrefix("/v1", "UserController", show))
func NewPrefix(path, owner string, children ...Record) Prefix {
	p := NormalizePath(path)
	return Prefix{Path: p, Owner: owner, Children: MergePrefix(children, p)}
}

// MergePrefix prepends prefix to every record in children and, recursively,
// to every record beneath nested prefixes. The input is not modified.
func MergePrefix(children []Record, prefix string) []Record {
	out := make([]Record, 0, len(children))
	for _, c := range children {
		switch r := c.(type) {
		case Endpoint:
			r.Path = prefix + r.Path
			out = append(out, r)
		case *Endpoint:
			e := *r
			e.Path = prefix + e.Path
			out = append(out, e)
		case Prefix:
			out = append(out, mergeGroup(r, prefix))
		case *Prefix:
			out = append(out, mergeGroup(*r, prefix))
		}
	}
	return out
}

func mergeGroup(p Prefix, prefix string) Prefix {
	p.Path = prefix + p.Path
	p.Children = MergePrefix(p.Children, prefix)
	return p
}

// Flatten returns every endpoint beneath records, in declaration order.
// Paths are already fully qualified by MergePrefix.
func Flatten(records ...Record) []Endpoint {
	var out []Endpoint
	for _, rec := range records {
		switch r := rec.(type) {
		case Endpoint:
			out = append(out, r)
		case *Endpoint:
			out = append(out, *r)
		case Prefix:
			out = append(out, Flatten(r.Children...)...)
		case *Prefix:
			out = append(out, Flatten(r.Children...)...)
		}
	}
	return out
}
