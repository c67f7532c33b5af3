// Package dfs holds the value types shared by every component of the
// distributed filesystem: hierarchical paths and helpers for mapping them
// onto a host filesystem.
package dfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is wrapped by every path construction failure. Callers can
// detect malformed input with errors.Is.
var ErrInvalidPath = errors.New("invalid path")

// Path is an immutable hierarchical filesystem name.
//
// A path is an ordered sequence of non-empty components; the empty sequence
// is the root. Components may not contain the separator '/' or the reserved
// ':' character. The string form is "/" for the root and "/" + components
// joined by "/" otherwise.
//
// The zero value is the root. Paths are compared by component sequence, never
// by hash. Accessors that are undefined on the root (Parent, Last) panic;
// callers guard with IsRoot.
type Path struct {
	components []string
}

// Root returns the path of the root directory.
func Root() Path {
	return Path{}
}

// Parse builds a path from its string form. The string must begin with a
// forward slash and must not contain a colon. Empty components between
// slashes are dropped, so "/a//b/" parses the same as "/a/b".
func Parse(s string) (Path, error) {
	if !strings.HasPrefix(s, "/") {
		return Path{}, fmt.Errorf("%w: %q does not begin with '/'", ErrInvalidPath, s)
	}
	if strings.Contains(s, ":") {
		return Path{}, fmt.Errorf("%w: %q contains ':'", ErrInvalidPath, s)
	}

	var components []string
	for _, c := range strings.Split(s, "/") {
		if c == "" {
			continue
		}
		components = append(components, c)
	}
	return Path{components: components}, nil
}

// MustParse is Parse for statically known strings; it panics on error.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Push returns a new path with component appended. The component must be
// non-empty and must not contain '/' or ':'.
func (p Path) Push(component string) (Path, error) {
	if component == "" {
		return Path{}, fmt.Errorf("%w: empty component", ErrInvalidPath)
	}
	if strings.ContainsAny(component, "/:") {
		return Path{}, fmt.Errorf("%w: component %q contains a reserved character", ErrInvalidPath, component)
	}

	components := make([]string, len(p.components)+1)
	copy(components, p.components)
	components[len(p.components)] = component
	return Path{components: components}, nil
}

// IsRoot reports whether the path is the root directory.
func (p Path) IsRoot() bool {
	return len(p.components) == 0
}

// Len returns the number of components.
func (p Path) Len() int {
	return len(p.components)
}

// Components returns the components in order. The returned slice is a copy.
func (p Path) Components() []string {
	out := make([]string, len(p.components))
	copy(out, p.components)
	return out
}

// Parent returns the path with the last component removed.
// It panics on the root, which has no parent.
func (p Path) Parent() Path {
	if p.IsRoot() {
		panic("dfs: Parent of root path")
	}
	return Path{components: p.components[:len(p.components)-1]}
}

// Last returns the final component. It panics on the root.
func (p Path) Last() string {
	if p.IsRoot() {
		panic("dfs: Last of root path")
	}
	return p.components[len(p.components)-1]
}

// IsSubpath reports whether other is a prefix of p. By this definition every
// path is a subpath of itself, and every path is a subpath of the root.
func (p Path) IsSubpath(other Path) bool {
	if len(other.components) > len(p.components) {
		return false
	}
	for i, c := range other.components {
		if p.components[i] != c {
			return false
		}
	}
	return true
}

// DirectChild returns the component of p immediately below parent. It fails
// if p equals parent or parent is not an ancestor of p.
func (p Path) DirectChild(parent Path) (string, error) {
	if p.Equal(parent) || !p.IsSubpath(parent) {
		return "", fmt.Errorf("%w: %s is not below %s", ErrInvalidPath, p, parent)
	}
	return p.components[len(parent.components)], nil
}

// Equal reports whether both paths have the same component sequence.
func (p Path) Equal(other Path) bool {
	if len(p.components) != len(other.components) {
		return false
	}
	for i, c := range p.components {
		if other.components[i] != c {
			return false
		}
	}
	return true
}

// Compare orders paths lexicographically by their canonical string form.
// Applications that lock several paths at once acquire them in increasing
// order to avoid deadlocking each other.
func (p Path) Compare(other Path) int {
	return strings.Compare(p.String(), other.String())
}

// String returns the canonical string form.
func (p Path) String() string {
	if p.IsRoot() {
		return "/"
	}
	return "/" + strings.Join(p.components, "/")
}

// ToFile joins the path's components beneath a host filesystem root.
// Storage nodes use this to locate the local file backing a path.
func (p Path) ToFile(root string) string {
	return filepath.Join(append([]string{root}, p.components...)...)
}

// ListFiles enumerates every regular file in the directory tree rooted at the
// given host directory, returning one path per file, relative to that root.
// Storage nodes build their registration list with this.
func ListFiles(root string) ([]Path, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %q is not a directory", ErrInvalidPath, root)
	}

	var paths []Path
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		p := Root()
		for _, component := range strings.Split(filepath.ToSlash(rel), "/") {
			if p, err = p.Push(component); err != nil {
				return err
			}
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return paths, nil
}
