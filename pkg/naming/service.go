// Package naming implements the metadata engine of the distributed
// filesystem: the client-facing Service facade, the storage-node-facing
// Registration facade, and the registry of known storage nodes. The
// namespace itself lives in the tree subpackage; concurrency control lives
// in the lock subpackage.
package naming

import (
	"context"
	"errors"
	"time"

	"github.com/corfid/namingd/internal/logger"
	"github.com/corfid/namingd/pkg/dfs"
	"github.com/corfid/namingd/pkg/metrics"
	"github.com/corfid/namingd/pkg/naming/lock"
	"github.com/corfid/namingd/pkg/naming/tree"
	"github.com/corfid/namingd/pkg/storage"
)

// CommandInvoker issues directive calls to a storage node's command
// interface. The production implementation dials the node and speaks the
// storage command RPC program; tests substitute a fake.
type CommandInvoker interface {
	// Create orders the node to create an empty file at path on its disk.
	Create(ctx context.Context, handle storage.CommandHandle, path dfs.Path) (bool, error)

	// Delete orders the node to delete the file or directory at path.
	Delete(ctx context.Context, handle storage.CommandHandle, path dfs.Path) (bool, error)
}

// Service is the client-facing facade over the directory tree. Every
// operation acquires path locks through the lock manager (shared for reads,
// exclusive for mutations), consults or mutates the tree, and releases the
// locks on every exit path.
//
// Outbound directive calls during CreateFile and Delete are made while
// holding only the path lock, never the tree's internal monitor, so a slow
// storage node cannot stall namespace operations on unrelated paths. The
// tree mutation after the call revalidates state; the in-memory commit is
// the linearization point of the operation.
type Service struct {
	locks    *lock.Manager
	tree     *tree.Tree
	registry *Registry
	commands CommandInvoker
	metrics  metrics.NamingMetrics
}

func NewService(locks *lock.Manager, t *tree.Tree, registry *Registry, commands CommandInvoker, m metrics.NamingMetrics) *Service {
	if m == nil {
		m = metrics.NewNamingMetrics()
	}
	return &Service{
		locks:    locks,
		tree:     t,
		registry: registry,
		commands: commands,
		metrics:  m,
	}
}

// Close cancels every waiter queued in the lock manager. Called on server
// shutdown.
func (s *Service) Close() {
	s.locks.Close()
}

// acquire takes a path lock and translates lock-manager failures into
// domain errors.
func (s *Service) acquire(ctx context.Context, path dfs.Path, exclusive bool) error {
	start := time.Now()
	err := s.locks.Lock(ctx, path, exclusive)
	s.metrics.RecordLockWait(time.Since(start))
	if err == nil {
		return nil
	}
	if errors.Is(err, lock.ErrCancelled) || errors.Is(err, lock.ErrClosed) {
		return &Error{Code: ErrCancelled, Message: "lock wait cancelled", Path: path.String()}
	}
	return err
}

// Lock takes a lock on behalf of a client and leaves it held across RPCs
// until a matching Unlock arrives. It fails with NotFound if the path is
// not present in the namespace.
func (s *Service) Lock(ctx context.Context, path dfs.Path, exclusive bool) error {
	if !s.tree.Contains(path) {
		return notFound("path not found", path.String())
	}
	return s.acquire(ctx, path, exclusive)
}

// Unlock releases a lock previously taken with Lock. It never blocks.
func (s *Service) Unlock(path dfs.Path, exclusive bool) {
	s.locks.Unlock(path, exclusive)
}

// IsDirectory reports whether the path names a directory. It fails with
// NotFound if the path is absent.
func (s *Service) IsDirectory(ctx context.Context, path dfs.Path) (bool, error) {
	if err := s.acquire(ctx, path, false); err != nil {
		return false, err
	}
	defer s.locks.Unlock(path, false)

	isDir, err := s.tree.IsDirectory(path)
	if err != nil {
		return false, notFound("path not found", path.String())
	}
	return isDir, nil
}

// List returns the names of the direct children of a directory, sorted.
// It fails with NotFound if the path is absent or names a file.
func (s *Service) List(ctx context.Context, path dfs.Path) ([]string, error) {
	if err := s.acquire(ctx, path, false); err != nil {
		return nil, err
	}
	defer s.locks.Unlock(path, false)

	entries, err := s.tree.List(path)
	if err != nil {
		return nil, notFound("not a directory", path.String())
	}
	return entries, nil
}

// CreateFile creates an empty file at the given path. The hosting node is
// the one whose registration covered the nearest existing ancestor; the
// node's create directive must succeed before the file enters the tree.
// Returns false when the path is already present. Fails with NotFound when
// the parent is absent or not a directory, with NoStorage when no storage
// node has registered, and with a transport error when the directive call
// fails (the tree is left untouched in that case).
func (s *Service) CreateFile(ctx context.Context, path dfs.Path) (bool, error) {
	if err := s.acquire(ctx, path, true); err != nil {
		return false, err
	}
	defer s.locks.Unlock(path, true)

	if s.tree.Contains(path) {
		return false, nil
	}

	// Not the root: the root is always present.
	parent := path.Parent()
	isDir, err := s.tree.IsDirectory(parent)
	if err != nil || !isDir {
		return false, notFound("parent is not a directory", parent.String())
	}

	if s.registry.Count() == 0 {
		return false, &Error{Code: ErrNoStorage, Message: "no storage nodes registered", Path: path.String()}
	}

	pair, err := s.tree.OwnerOf(parent)
	if err != nil {
		return false, notFound("no storage node covers parent", parent.String())
	}

	// Directive call without holding the tree monitor.
	start := time.Now()
	created, err := s.commands.Create(ctx, pair.Command, path)
	s.metrics.RecordDirective("create", time.Since(start), err)
	if err != nil {
		return false, transportError(path.String(), err)
	}
	if !created {
		return false, nil
	}

	switch err := s.tree.CommitFile(path, pair); {
	case err == nil:
		logger.Debug("created file %s on %s", path, pair)
		return true, nil
	case errors.Is(err, tree.ErrExists):
		// The namespace changed between directive and commit.
		return false, nil
	default:
		return false, notFound("parent vanished before commit", parent.String())
	}
}

// CreateDirectory records an explicit directory at the given path,
// inheriting the parent's storage mapping for future placement. No
// directive is sent: directories are materialized on storage nodes lazily,
// when files are created beneath them. Returns false when the path is the
// root or already present; fails with NotFound when the parent is absent or
// not a directory.
func (s *Service) CreateDirectory(ctx context.Context, path dfs.Path) (bool, error) {
	if path.IsRoot() {
		return false, nil
	}

	if err := s.acquire(ctx, path, true); err != nil {
		return false, err
	}
	defer s.locks.Unlock(path, true)

	if s.tree.Contains(path) {
		return false, nil
	}

	parent := path.Parent()
	isDir, err := s.tree.IsDirectory(parent)
	if err != nil || !isDir {
		return false, notFound("parent is not a directory", parent.String())
	}

	pair, err := s.tree.OwnerOf(parent)
	if err != nil {
		return false, notFound("no storage node covers parent", parent.String())
	}

	switch err := s.tree.CreateDirectory(path, pair); {
	case err == nil:
		logger.Debug("created directory %s", path)
		return true, nil
	case errors.Is(err, tree.ErrExists):
		return false, nil
	default:
		return false, notFound("parent is not a directory", parent.String())
	}
}

// Delete removes the file or directory at the given path; deleting a
// directory removes its entire subtree atomically with respect to other
// namespace operations. The owning node's delete directive must succeed
// before the metadata is dropped. Returns false for the root; fails with
// NotFound when the path is absent.
func (s *Service) Delete(ctx context.Context, path dfs.Path) (bool, error) {
	if path.IsRoot() {
		return false, nil
	}

	if err := s.acquire(ctx, path, true); err != nil {
		return false, err
	}
	defer s.locks.Unlock(path, true)

	if !s.tree.Contains(path) {
		return false, notFound("path not found", path.String())
	}

	pair, err := s.tree.OwnerOf(path)
	if err != nil {
		return false, notFound("no storage node owns path", path.String())
	}

	start := time.Now()
	deleted, err := s.commands.Delete(ctx, pair.Command, path)
	s.metrics.RecordDirective("delete", time.Since(start), err)
	if err != nil {
		return false, transportError(path.String(), err)
	}
	if !deleted {
		return false, nil
	}

	if err := s.tree.Remove(path); err != nil {
		// Already gone: the directive consumer observed the delete anyway.
		return false, nil
	}
	logger.Debug("deleted %s from %s", path, pair)
	return true, nil
}

// GetStorage returns the storage handle hosting the file at the given path.
// It fails with NotFound if the path is absent or names a directory.
func (s *Service) GetStorage(ctx context.Context, path dfs.Path) (storage.StorageHandle, error) {
	if err := s.acquire(ctx, path, false); err != nil {
		return storage.StorageHandle{}, err
	}
	defer s.locks.Unlock(path, false)

	handle, err := s.tree.StorageFor(path)
	if err != nil {
		return storage.StorageHandle{}, notFound("no file at path", path.String())
	}
	return handle, nil
}
