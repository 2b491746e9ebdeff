package container

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
)

var (
	// ErrDependencyNotFound matches *DependencyNotFoundError.
	ErrDependencyNotFound = errors.New("dependency not found")
	// ErrAmbiguousDependency matches *AmbiguousDependencyError.
	ErrAmbiguousDependency = errors.New("ambiguous dependency")
	// ErrScopeNotFound matches *ScopeNotFoundError.
	ErrScopeNotFound = errors.New("scope not found")
	// ErrDuplicateDependency matches *DuplicateDependencyError.
	ErrDuplicateDependency = errors.New("duplicate dependency")
	// ErrParamType matches *ParamTypeError.
	ErrParamType = errors.New("dependency type mismatch")
	// ErrNotReady is returned by build attempts whose dependencies are not
	// registered yet. It is transient: the attempt stays queued.
	ErrNotReady = errors.New("dependencies not ready")
)

// DependencyNotFoundError is raised when resolution exceeded the scope timeout.
type DependencyNotFoundError struct {
	Query    Query
	Scope    string
	Location string
	Waited   time.Duration
}

func (e *DependencyNotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "dependency not found: %s in scope %q", e.Query, e.Scope)
	if e.Location != "" {
		fmt.Fprintf(&b, " (requested from %s)", e.Location)
	}
	fmt.Fprintf(&b, " after %s", e.Waited.Round(time.Millisecond))
	return b.String()
}

func (e *DependencyNotFoundError) Is(target error) bool { return target == ErrDependencyNotFound }

// AmbiguousDependencyError is raised when more than one record matches a
// lookup. It is a configuration defect and never retried.
type AmbiguousDependencyError struct {
	Query      Query
	Candidates []Symbol
}

func (e *AmbiguousDependencyError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ambiguous dependency: %d candidates for %s, register a single instance or use a name:", len(e.Candidates), e.Query)
	for i, s := range e.Candidates {
		fmt.Fprintf(&b, "\n\t%d. %s", i+1, s)
	}
	return b.String()
}

func (e *AmbiguousDependencyError) Is(target error) bool { return target == ErrAmbiguousDependency }

// ScopeNotFoundError means a location maps to no scope at all, not even the
// ownerless one.
type ScopeNotFoundError struct {
	Location string
}

func (e *ScopeNotFoundError) Error() string {
	return fmt.Sprintf("scope not found for location %s", e.Location)
}

func (e *ScopeNotFoundError) Is(target error) bool { return target == ErrScopeNotFound }

// DuplicateDependencyError is returned by stores running DuplicateFail.
type DuplicateDependencyError struct {
	Key      string
	Name     string
	Existing Symbol
	Incoming Symbol
}

func (e *DuplicateDependencyError) Error() string {
	name := e.Name
	if name == "" {
		name = "<unnamed>"
	}
	return fmt.Sprintf("duplicate dependency %s name=%s: already registered at %s, again at %s",
		e.Key, name, e.Existing, e.Incoming)
}

func (e *DuplicateDependencyError) Is(target error) bool { return target == ErrDuplicateDependency }

// ParamTypeError is raised when the record found for a parameter holds a
// value that can't be passed as the parameter type, typically a forward
// record whose type name matched. It is never retried.
type ParamTypeError struct {
	Query Query
	Have  reflect.Type
	Want  reflect.Type
}

func (e *ParamTypeError) Error() string {
	return fmt.Sprintf("dependency type mismatch: %s resolved to %s, want %s", e.Query, e.Have, e.Want)
}

func (e *ParamTypeError) Is(target error) bool { return target == ErrParamType }

// BuildError wraps a failure returned by a component factory.
type BuildError struct {
	Symbol Symbol
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("building component %s: %v", e.Symbol, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

func notReady(q Query) error {
	return fmt.Errorf("%w: missing %s", ErrNotReady, q)
}
