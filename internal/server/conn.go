package server

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/corfid/namingd/internal/logger"
	protocol "github.com/corfid/namingd/internal/protocol/naming"
	"github.com/corfid/namingd/internal/protocol/rpc"
	"github.com/corfid/namingd/internal/ratelimiter"
)

// conn serves one client connection. Each listener tags its connections
// with the single program it speaks; calls for any other program are
// answered with PROG_UNAVAIL.
type conn struct {
	server  *Server
	conn    net.Conn
	program uint32
	limiter *ratelimiter.RateLimiter
}

func (s *Server) newConn(tcpConn net.Conn, program uint32) *conn {
	rl := s.cfg.RateLimit
	return &conn{
		server:  s,
		conn:    tcpConn,
		program: program,
		limiter: ratelimiter.New(rl.RequestsPerSecond, rl.Burst),
	}
}

func (c *conn) serve(ctx context.Context) {
	defer c.conn.Close()
	logger.Debug("new connection from %s", c.conn.RemoteAddr())

	// Unblock pending reads when the server shuts down.
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return
		}

		if err := c.handleRequest(ctx); err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				logger.Debug("connection %s: %v", c.conn.RemoteAddr(), err)
			}
			return
		}
	}
}

func (c *conn) handleRequest(ctx context.Context) error {
	// The gap between requests is bounded by the idle timeout; reading the
	// body of a request that has started arriving by the read timeout.
	_ = c.conn.SetReadDeadline(time.Now().Add(c.server.cfg.IdleTimeout))

	header, err := c.readFragmentHeader()
	if err != nil {
		return err
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(c.server.cfg.ReadTimeout))

	message := make([]byte, header.length)
	if _, err := io.ReadFull(c.conn, message); err != nil {
		return fmt.Errorf("read RPC message: %w", err)
	}

	call, err := rpc.ReadCall(message)
	if err != nil {
		return fmt.Errorf("parse RPC call: %w", err)
	}

	logger.Debug("RPC call: XID=0x%x program=%d procedure=%d from %s",
		call.XID, call.Program, call.Procedure, c.conn.RemoteAddr())

	data, err := rpc.ReadData(message, call)
	if err != nil {
		return fmt.Errorf("extract procedure data: %w", err)
	}

	// A LOCK wait may legitimately outlive every connection deadline;
	// clear the read deadline while the handler runs.
	_ = c.conn.SetReadDeadline(time.Time{})

	reply, err := c.dispatch(ctx, call, data)
	if err != nil {
		return err
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout))
	if _, err := c.conn.Write(reply); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

// dispatch routes one call to the program handler and frames the reply.
// RPC-level failures (wrong program, wrong version, unknown procedure) are
// answered with the corresponding accept status and an empty body.
func (c *conn) dispatch(ctx context.Context, call *rpc.CallMessage, data []byte) ([]byte, error) {
	if call.Program != c.program {
		return rpc.MakeReply(call.XID, rpc.AcceptProgUnavail, nil)
	}
	if call.Version != rpc.ProgramVersion {
		return rpc.MakeReply(call.XID, rpc.AcceptProgMismatch, nil)
	}

	var result []byte
	var err error
	switch c.program {
	case rpc.ProgramNamingService:
		result, err = c.server.serviceHandler.Handle(ctx, call.Procedure, data)
	case rpc.ProgramNamingRegistration:
		result, err = c.server.registrationHandler.Handle(ctx, call.Procedure, data)
	default:
		return rpc.MakeReply(call.XID, rpc.AcceptProgUnavail, nil)
	}

	if errors.Is(err, protocol.ErrUnknownProcedure) {
		return rpc.MakeReply(call.XID, rpc.AcceptProcUnavail, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("handle procedure %d: %w", call.Procedure, err)
	}
	return rpc.MakeSuccessReply(call.XID, result)
}

type fragmentHeader struct {
	isLast bool
	length uint32
}

func (c *conn) readFragmentHeader() (*fragmentHeader, error) {
	var buf [4]byte
	if _, err := io.ReadFull(c.conn, buf[:]); err != nil {
		return nil, err
	}

	header := binary.BigEndian.Uint32(buf[:])
	h := &fragmentHeader{
		isLast: header&0x80000000 != 0,
		length: header & 0x7FFFFFFF,
	}
	if !h.isLast {
		return nil, fmt.Errorf("multi-fragment requests not supported")
	}
	return h, nil
}
