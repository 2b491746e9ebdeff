package scan

import (
	"context"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/km-arc/go-boot/framework/fsutil"
)

// DefaultExtensions are the loadable unit extensions when none are set.
var DefaultExtensions = []string{".go"}

// Catalog enumerates the loadable units below Root.
type Catalog struct {
	// FS is the file system rooted at Root. Defaults to os.DirFS(Root).
	FS fs.FS
	// Root is the absolute directory walked.
	Root string
	// ProjectRoot is the base of unit ids and relative prefixes.
	ProjectRoot string
	// Extensions are the loadable file extensions.
	Extensions []string
	// Include and Exclude are path prefixes. An excluded unit is kept when an
	// include prefix also matches it.
	Include []string
	Exclude []string
}

// Discover walks the catalog root and returns the admitted units in walk
// order. Directories whose name starts with "." or "_" and testdata
// directories are skipped, as are Go test files.
func (c *Catalog) Discover(ctx context.Context) ([]Unit, error) {
	root := fsutil.Clean(c.Root)
	fsys := c.FS
	if fsys == nil {
		fsys = os.DirFS(root)
	}
	exts := c.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	filter := fsutil.Filter{Include: c.Include, Exclude: c.Exclude}

	var units []Unit
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != "." && skipDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !loadable(d.Name(), exts) {
			return nil
		}
		abs := path.Join(root, p)
		id := fsutil.Rel(c.ProjectRoot, abs)
		if !filter.Admit(abs, id, true) {
			return nil
		}
		units = append(units, Unit{ID: id, Path: abs})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return units, nil
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "testdata"
}

func loadable(name string, exts []string) bool {
	if strings.HasSuffix(name, "_test.go") {
		return false
	}
	for _, ext := range exts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
