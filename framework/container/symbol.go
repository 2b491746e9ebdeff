package container

import (
	"path"
	"reflect"
	"runtime"

	"github.com/km-arc/go-boot/framework/fsutil"
)

// Symbol is the origin of a declaration: the source file it lives in and its
// qualified name inside that file. Two symbols are equal iff both fields
// match, so Symbol can be used as a map key.
type Symbol struct {
	Source string
	Path   string
}

// NewSymbol builds a Symbol with a cleaned, slash separated source path.
func NewSymbol(source, qualified string) Symbol {
	return Symbol{Source: fsutil.Clean(source), Path: qualified}
}

// SymbolOf returns the Symbol of a function value: the file declaring it and
// its fully qualified name. It returns the zero Symbol for non-functions.
//
//	sym := container.SymbolOf(NewUserService)
//	// {"/src/app/service/user.go", "example.com/app/service.NewUserService"}
func SymbolOf(fn any) Symbol {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return Symbol{}
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return Symbol{}
	}
	file, _ := f.FileLine(f.Entry())
	return NewSymbol(file, f.Name())
}

// CallerSymbol returns the Symbol of the function skip frames above the
// caller of CallerSymbol.
func CallerSymbol(skip int) Symbol {
	pc, file, _, ok := runtime.Caller(skip + 1)
	if !ok {
		return Symbol{}
	}
	name := ""
	if f := runtime.FuncForPC(pc); f != nil {
		name = f.Name()
	}
	return NewSymbol(file, name)
}

// IsZero reports whether s carries no origin.
func (s Symbol) IsZero() bool { return s.Source == "" && s.Path == "" }

// Dir is the directory of the source file.
func (s Symbol) Dir() string { return path.Dir(s.Source) }

func (s Symbol) String() string {
	if s.Path == "" {
		return s.Source
	}
	return s.Source + "  " + s.Path
}
