package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/corfid/namingd/internal/protocol/command"
	"github.com/corfid/namingd/internal/protocol/rpc"
	"github.com/corfid/namingd/pkg/dfs"
)

// ClientConfig tunes the outbound command client.
type ClientConfig struct {
	// DialTimeout bounds connection establishment to a storage node.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	// CallTimeout bounds a single directive call end to end.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// DefaultClientConfig returns the client tuning used when the configuration
// does not override it.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DialTimeout: 10 * time.Second,
		CallTimeout: 30 * time.Second,
	}
}

// CommandClient issues create/delete directives to storage nodes over the
// storage command RPC program. A client is stateless: every call dials the
// node's command address, performs one exchange, and closes the connection.
// Directive traffic is rare (one call per namespace mutation), so a
// connection cache would buy little and would have to track node liveness.
type CommandClient struct {
	config ClientConfig
	xid    atomic.Uint32
}

func NewCommandClient(config ClientConfig) *CommandClient {
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultClientConfig().DialTimeout
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = DefaultClientConfig().CallTimeout
	}
	return &CommandClient{config: config}
}

// Create orders the node behind handle to create an empty file at path.
func (c *CommandClient) Create(ctx context.Context, handle CommandHandle, path dfs.Path) (bool, error) {
	return c.call(ctx, handle, command.ProcCreate, path)
}

// Delete orders the node behind handle to delete the file or directory
// at path.
func (c *CommandClient) Delete(ctx context.Context, handle CommandHandle, path dfs.Path) (bool, error) {
	return c.call(ctx, handle, command.ProcDelete, path)
}

func (c *CommandClient) call(ctx context.Context, handle CommandHandle, procedure uint32, path dfs.Path) (bool, error) {
	args, err := command.Encode(&command.PathArgs{Path: path.String()})
	if err != nil {
		return false, err
	}

	xid := c.xid.Add(1)
	message, err := rpc.MakeCall(xid, rpc.ProgramStorageCommand, rpc.ProgramVersion, procedure, args)
	if err != nil {
		return false, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	dialer := net.Dialer{Timeout: c.config.DialTimeout}
	conn, err := dialer.DialContext(callCtx, "tcp", handle.Addr())
	if err != nil {
		return false, fmt.Errorf("dial storage node %s: %w", handle.Addr(), err)
	}
	defer conn.Close()

	if deadline, ok := callCtx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(message); err != nil {
		return false, fmt.Errorf("send directive to %s: %w", handle.Addr(), err)
	}

	payload, err := readFragment(conn)
	if err != nil {
		return false, fmt.Errorf("read reply from %s: %w", handle.Addr(), err)
	}

	reply, data, err := rpc.ReadReply(payload)
	if err != nil {
		return false, fmt.Errorf("parse reply from %s: %w", handle.Addr(), err)
	}
	if reply.XID != xid {
		return false, fmt.Errorf("reply from %s carries XID 0x%x, want 0x%x", handle.Addr(), reply.XID, xid)
	}

	var result command.BoolReply
	if err := command.Decode(data, &result); err != nil {
		return false, fmt.Errorf("decode reply from %s: %w", handle.Addr(), err)
	}
	if result.Status != command.StatusOK {
		return false, fmt.Errorf("storage node %s rejected directive: status %d", handle.Addr(), result.Status)
	}
	return result.Value, nil
}

// readFragment reads one record-marked message. Storage nodes answer in a
// single fragment.
func readFragment(conn net.Conn) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return nil, err
	}

	raw := binary.BigEndian.Uint32(header[:])
	length := raw & 0x7FFFFFFF
	if raw&0x80000000 == 0 {
		return nil, fmt.Errorf("multi-fragment reply not supported")
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
