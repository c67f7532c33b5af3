package naming

import (
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/corfid/namingd/pkg/storage"
)

// Node is one registered storage node. Nodes are admitted by Register and
// retained for the life of the server; there is no deregistration.
type Node struct {
	// ID labels the node in logs and metrics.
	ID uuid.UUID

	Pair storage.Pair

	RegisteredAt time.Time
}

// Registry is the set of storage nodes known to the naming server. Handles
// are admitted once and never removed, so lookups run lock-free; admission
// itself is serialized by the caller holding the exclusive root lock.
type Registry struct {
	byStorage *xsync.MapOf[storage.StorageHandle, *Node]
	byCommand *xsync.MapOf[storage.CommandHandle, *Node]
}

func NewRegistry() *Registry {
	return &Registry{
		byStorage: xsync.NewMapOf[storage.StorageHandle, *Node](),
		byCommand: xsync.NewMapOf[storage.CommandHandle, *Node](),
	}
}

// Known reports whether either handle of the pair has been registered.
func (r *Registry) Known(pair storage.Pair) bool {
	if _, ok := r.byStorage.Load(pair.Storage); ok {
		return true
	}
	_, ok := r.byCommand.Load(pair.Command)
	return ok
}

// Admit records a new node for the pair and returns it.
func (r *Registry) Admit(pair storage.Pair) *Node {
	node := &Node{
		ID:           uuid.New(),
		Pair:         pair,
		RegisteredAt: time.Now(),
	}
	r.byStorage.Store(pair.Storage, node)
	r.byCommand.Store(pair.Command, node)
	return node
}

// Count returns the number of registered nodes.
func (r *Registry) Count() int {
	return r.byStorage.Size()
}
