// Package storage defines the naming server's view of a storage node: the
// opaque handles a node registers with, and the outbound client used to send
// directive calls to it.
package storage

import (
	"fmt"
	"net"
	"strconv"
)

// StorageHandle is a remote reference to one storage node's data-read
// interface. Clients resolve a path with the naming server, then contact
// this address to read or write the file's bytes.
type StorageHandle struct {
	Host string
	Port uint32
}

// CommandHandle is a remote reference to one storage node's directive
// interface. The naming server uses it to order the node to create or
// delete files on its local disk.
type CommandHandle struct {
	Host string
	Port uint32
}

// Pair couples the two interfaces of a single storage node. A node always
// registers both together, and every file entry in the namespace records
// the pair of its hosting node.
type Pair struct {
	Storage StorageHandle
	Command CommandHandle
}

func (h StorageHandle) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(int(h.Port)))
}

func (h StorageHandle) String() string {
	return "storage://" + h.Addr()
}

func (h CommandHandle) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(int(h.Port)))
}

func (h CommandHandle) String() string {
	return "command://" + h.Addr()
}

// IsZero reports whether the handle is unset.
func (h StorageHandle) IsZero() bool {
	return h.Host == "" && h.Port == 0
}

func (h CommandHandle) IsZero() bool {
	return h.Host == "" && h.Port == 0
}

func (p Pair) String() string {
	return fmt.Sprintf("node(%s, %s)", p.Storage.Addr(), p.Command.Addr())
}
