// Package tree implements the in-memory namespace of the naming server: an
// explicit tree of directory and file nodes rooted at "/", with each file
// mapped to the storage node hosting its bytes.
//
// The tree does no path-level concurrency control of its own; callers
// serialize conflicting operations through the lock manager. A single
// RWMutex guards the node structures so that operations on unrelated paths
// can still run concurrently without corrupting the maps.
package tree

import (
	"errors"
	"sort"
	"sync"

	"github.com/corfid/namingd/pkg/dfs"
	"github.com/corfid/namingd/pkg/storage"
)

var (
	// ErrNotFound indicates the path is not present in the namespace.
	ErrNotFound = errors.New("path not found")

	// ErrNotDirectory indicates a directory operation was applied to a file.
	ErrNotDirectory = errors.New("not a directory")

	// ErrExists indicates the path is already present.
	ErrExists = errors.New("path already exists")

	// ErrIsRoot indicates the operation is undefined on the root.
	ErrIsRoot = errors.New("operation not permitted on root")
)

// node is a single namespace entry. Directory nodes hold children; file
// nodes never do. A file always carries the pair of its hosting storage
// node. A directory carries a pair only when it was created explicitly
// (inherited from its parent at creation time); directories that exist
// merely as ancestors of registered files have none, and their owner is
// resolved through their descendants.
type node struct {
	file     bool
	children map[string]*node
	pair     storage.Pair
	hasPair  bool
}

func newDirectory() *node {
	return &node{children: make(map[string]*node)}
}

// Tree is the naming server's directory tree. The root directory always
// exists and can never be created, deleted, or remapped.
type Tree struct {
	mu   sync.RWMutex
	root *node
}

func New() *Tree {
	return &Tree{root: newDirectory()}
}

// lookup walks the tree to the node at p, or nil if absent. Caller holds mu.
func (t *Tree) lookup(p dfs.Path) *node {
	current := t.root
	for _, component := range p.Components() {
		if current.file {
			return nil
		}
		next, ok := current.children[component]
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

// Contains reports whether p is present: the root, a file, an explicitly
// created directory, or an ancestor of either.
func (t *Tree) Contains(p dfs.Path) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lookup(p) != nil
}

// IsDirectory reports whether the entry at p is a directory. It fails with
// ErrNotFound if p is absent.
func (t *Tree) IsDirectory(p dfs.Path) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.lookup(p)
	if n == nil {
		return false, ErrNotFound
	}
	return !n.file, nil
}

// List returns the names of the direct children of the directory at p, in
// sorted order. It fails with ErrNotFound if p is absent and with
// ErrNotDirectory if p names a file.
func (t *Tree) List(p dfs.Path) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.lookup(p)
	if n == nil {
		return nil, ErrNotFound
	}
	if n.file {
		return nil, ErrNotDirectory
	}

	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// InsertFile records a file at p hosted by the given pair, creating any
// missing ancestor directories implicitly. It fails with ErrExists if p is
// already present in any form, and with ErrNotDirectory if an ancestor of p
// is a file. Used during registration, where ancestors may not exist yet.
func (t *Tree) InsertFile(p dfs.Path, pair storage.Pair) error {
	if p.IsRoot() {
		return ErrIsRoot
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	components := p.Components()
	current := t.root
	for _, component := range components[:len(components)-1] {
		next, ok := current.children[component]
		if !ok {
			next = newDirectory()
			current.children[component] = next
		} else if next.file {
			return ErrNotDirectory
		}
		current = next
	}

	name := components[len(components)-1]
	if _, ok := current.children[name]; ok {
		return ErrExists
	}
	current.children[name] = &node{file: true, pair: pair, hasPair: true}
	return nil
}

// CommitFile records a file at p hosted by the given pair, after the storage
// node has acknowledged the create directive. Unlike InsertFile it requires
// the parent to already be a directory: the service validated that before
// issuing the directive, and the parent cannot have vanished while the
// caller held its exclusive path lock. It fails with ErrExists if p appeared
// in the meantime and with ErrNotFound if the parent is gone, so a stale
// commit never corrupts the namespace.
func (t *Tree) CommitFile(p dfs.Path, pair storage.Pair) error {
	if p.IsRoot() {
		return ErrIsRoot
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	parent := t.lookup(p.Parent())
	if parent == nil || parent.file {
		return ErrNotFound
	}
	name := p.Last()
	if _, ok := parent.children[name]; ok {
		return ErrExists
	}
	parent.children[name] = &node{file: true, pair: pair, hasPair: true}
	return nil
}

// CreateDirectory records an explicit directory at p, inheriting the given
// pair for future placement. It fails with ErrIsRoot on the root, ErrExists
// if p is present, and ErrNotFound if the parent is absent or a file.
func (t *Tree) CreateDirectory(p dfs.Path, pair storage.Pair) error {
	if p.IsRoot() {
		return ErrIsRoot
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	parent := t.lookup(p.Parent())
	if parent == nil || parent.file {
		return ErrNotFound
	}
	name := p.Last()
	if _, ok := parent.children[name]; ok {
		return ErrExists
	}
	parent.children[name] = &node{children: make(map[string]*node), pair: pair, hasPair: true}
	return nil
}

// Remove deletes the entry at p and, for a directory, its entire subtree.
// It fails with ErrIsRoot on the root and ErrNotFound if p is absent.
func (t *Tree) Remove(p dfs.Path) error {
	if p.IsRoot() {
		return ErrIsRoot
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	parent := t.lookup(p.Parent())
	if parent == nil || parent.file {
		return ErrNotFound
	}
	name := p.Last()
	if _, ok := parent.children[name]; !ok {
		return ErrNotFound
	}
	delete(parent.children, name)
	return nil
}

// StorageFor returns the storage handle of the file at p. It fails with
// ErrNotFound if p is absent or names a directory.
func (t *Tree) StorageFor(p dfs.Path) (storage.StorageHandle, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.lookup(p)
	if n == nil || !n.file {
		return storage.StorageHandle{}, ErrNotFound
	}
	return n.pair.Storage, nil
}

// OwnerOf returns the pair of the storage node owning the entry at p: the
// entry's own recorded pair when it has one (every file, every explicitly
// created directory), otherwise the first pair recorded beneath it (on a
// file or an explicitly created directory) in sorted component order. A registration that put files under p made p
// exist, so that file's node is the one whose registration covered p.
// It fails with ErrNotFound if p is absent or no pair is reachable.
func (t *Tree) OwnerOf(p dfs.Path) (storage.Pair, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.lookup(p)
	if n == nil {
		return storage.Pair{}, ErrNotFound
	}
	pair, ok := firstPair(n)
	if !ok {
		return storage.Pair{}, ErrNotFound
	}
	return pair, nil
}

// firstPair finds the pair recorded at n, or the first one in its subtree
// in sorted child order. Caller holds mu.
func firstPair(n *node) (storage.Pair, bool) {
	if n.hasPair {
		return n.pair, true
	}

	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if pair, ok := firstPair(n.children[name]); ok {
			return pair, true
		}
	}
	return storage.Pair{}, false
}
