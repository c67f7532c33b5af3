package naming

import (
	"context"

	"github.com/corfid/namingd/internal/logger"
	"github.com/corfid/namingd/pkg/dfs"
	"github.com/corfid/namingd/pkg/metrics"
	"github.com/corfid/namingd/pkg/naming/lock"
	"github.com/corfid/namingd/pkg/naming/tree"
	"github.com/corfid/namingd/pkg/storage"
)

// Registration is the storage-node-facing facade. A starting storage node
// reports its two handles and the list of files it already hosts; the
// naming server merges that list into the tree and hands back the paths the
// node must delete from its local disk.
type Registration struct {
	locks    *lock.Manager
	tree     *tree.Tree
	registry *Registry
	metrics  metrics.NamingMetrics
}

func NewRegistration(locks *lock.Manager, t *tree.Tree, registry *Registry, m metrics.NamingMetrics) *Registration {
	if m == nil {
		m = metrics.NewNamingMetrics()
	}
	return &Registration{
		locks:    locks,
		tree:     t,
		registry: registry,
		metrics:  m,
	}
}

// Register admits a new storage node and reconciles its file list with the
// namespace. The merge runs under the exclusive root lock, so it is atomic
// with respect to every other namespace operation.
//
// Partitioning: the root is always rejected; a path already present in any
// form is rejected (the same file hosted by an earlier node wins); a path
// whose ancestor is already a file, whether from an earlier node or from
// this node's own list, is rejected. Everything else becomes a file entry
// mapped to the new node. The rejected list is
// returned so the node can delete those duplicates locally; reconciliation
// itself never fails.
//
// Fails with AlreadyRegistered if either handle is already known.
func (r *Registration) Register(ctx context.Context, pair storage.Pair, files []dfs.Path) ([]dfs.Path, error) {
	if pair.Storage.IsZero() || pair.Command.IsZero() {
		return nil, invalidArgument("storage and command handles are required")
	}

	if err := r.locks.Lock(ctx, dfs.Root(), true); err != nil {
		return nil, &Error{Code: ErrCancelled, Message: "lock wait cancelled", Path: "/"}
	}
	defer r.locks.Unlock(dfs.Root(), true)

	if r.registry.Known(pair) {
		return nil, &Error{Code: ErrAlreadyRegistered, Message: "storage node already registered"}
	}

	duplicates := []dfs.Path{}
	for _, file := range files {
		if file.IsRoot() {
			duplicates = append(duplicates, file)
			continue
		}
		if err := r.tree.InsertFile(file, pair); err != nil {
			duplicates = append(duplicates, file)
		}
	}

	node := r.registry.Admit(pair)
	r.metrics.SetRegisteredNodes(r.registry.Count())
	logger.Info("registered storage node %s as %s: %d files accepted, %d rejected",
		pair, node.ID, len(files)-len(duplicates), len(duplicates))

	return duplicates, nil
}
