package server

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	protocol "github.com/corfid/namingd/internal/protocol/naming"
	"github.com/corfid/namingd/internal/protocol/rpc"
	"github.com/corfid/namingd/pkg/config"
	"github.com/corfid/namingd/pkg/dfs"
	"github.com/corfid/namingd/pkg/naming"
	"github.com/corfid/namingd/pkg/naming/lock"
	"github.com/corfid/namingd/pkg/naming/tree"
	"github.com/corfid/namingd/pkg/storage"
)

type acceptAllInvoker struct{}

func (acceptAllInvoker) Create(context.Context, storage.CommandHandle, dfs.Path) (bool, error) {
	return true, nil
}

func (acceptAllInvoker) Delete(context.Context, storage.CommandHandle, dfs.Path) (bool, error) {
	return true, nil
}

func freePort(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return uint16(port)
}

func testConfig(t *testing.T) config.ServerConfig {
	cfg := config.ServerConfig{
		BindAddress:      "127.0.0.1",
		ServicePort:      freePort(t),
		RegistrationPort: freePort(t),
		ReadTimeout:      5 * time.Second,
		WriteTimeout:     5 * time.Second,
		IdleTimeout:      5 * time.Second,
		ShutdownTimeout:  5 * time.Second,
	}
	return cfg
}

func startServer(t *testing.T, cfg config.ServerConfig) *Server {
	t.Helper()
	locks := lock.NewManager()
	namespace := tree.New()
	registry := naming.NewRegistry()
	service := naming.NewService(locks, namespace, registry, acceptAllInvoker{}, nil)
	registration := naming.NewRegistration(locks, namespace, registry, nil)

	srv := New(
		cfg,
		service,
		protocol.NewServiceHandler(service, nil),
		protocol.NewRegistrationHandler(registration, nil),
		nil,
	)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

// call performs one RPC exchange against addr and decodes the result into
// reply.
func call(t *testing.T, addr string, program, procedure uint32, args, reply any) {
	t.Helper()

	argData, err := protocol.Encode(args)
	require.NoError(t, err)
	message, err := rpc.MakeCall(1, program, rpc.ProgramVersion, procedure, argData)
	require.NoError(t, err)

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = conn.Write(message)
	require.NoError(t, err)

	var header [4]byte
	_, err = io.ReadFull(conn, header[:])
	require.NoError(t, err)
	length := binary.BigEndian.Uint32(header[:]) & 0x7FFFFFFF
	payload := make([]byte, length)
	_, err = io.ReadFull(conn, payload)
	require.NoError(t, err)

	_, data, err := rpc.ReadReply(payload)
	require.NoError(t, err)
	require.NoError(t, protocol.Decode(data, reply))
}

func TestServerEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	srv := startServer(t, cfg)
	defer srv.Stop()

	serviceAddr := net.JoinHostPort("127.0.0.1", itoa(cfg.ServicePort))
	registrationAddr := net.JoinHostPort("127.0.0.1", itoa(cfg.RegistrationPort))

	// Register a node over the wire.
	var regReply protocol.RegisterReply
	call(t, registrationAddr, rpc.ProgramNamingRegistration, protocol.RegistrationProcRegister,
		&protocol.RegisterArgs{
			StorageHost: "127.0.0.1", StoragePort: 7000,
			CommandHost: "127.0.0.1", CommandPort: 8000,
			Files: []string{"/a/b", "/c"},
		}, &regReply)
	require.Equal(t, uint32(protocol.StatusOK), regReply.Status)
	assert.Empty(t, regReply.Duplicates)

	// Browse the namespace over the wire.
	var listReply protocol.ListReply
	call(t, serviceAddr, rpc.ProgramNamingService, protocol.ServiceProcList,
		&protocol.PathArgs{Path: "/"}, &listReply)
	require.Equal(t, uint32(protocol.StatusOK), listReply.Status)
	assert.Equal(t, []string{"a", "c"}, listReply.Entries)

	var handleReply protocol.HandleReply
	call(t, serviceAddr, rpc.ProgramNamingService, protocol.ServiceProcGetStorage,
		&protocol.PathArgs{Path: "/a/b"}, &handleReply)
	require.Equal(t, uint32(protocol.StatusOK), handleReply.Status)
	assert.Equal(t, uint32(7000), handleReply.Port)

	// The registration program is not served on the service port.
	argData, err := protocol.Encode(&protocol.PathArgs{Path: "/"})
	require.NoError(t, err)
	message, err := rpc.MakeCall(2, rpc.ProgramNamingRegistration, rpc.ProgramVersion,
		protocol.RegistrationProcNull, argData)
	require.NoError(t, err)
	conn, err := net.DialTimeout("tcp", serviceAddr, time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	_, err = conn.Write(message)
	require.NoError(t, err)
	var header [4]byte
	_, err = io.ReadFull(conn, header[:])
	require.NoError(t, err)
	payload := make([]byte, binary.BigEndian.Uint32(header[:])&0x7FFFFFFF)
	_, err = io.ReadFull(conn, payload)
	require.NoError(t, err)
	_, _, err = rpc.ReadReply(payload)
	assert.Error(t, err, "PROG_UNAVAIL replies must not parse as success")
}

func TestStartFailsWhenPortTaken(t *testing.T) {
	cfg := testConfig(t)

	// Occupy the registration port so the second bind fails.
	blocker, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", itoa(cfg.RegistrationPort)))
	require.NoError(t, err)
	defer blocker.Close()

	locks := lock.NewManager()
	namespace := tree.New()
	registry := naming.NewRegistry()
	service := naming.NewService(locks, namespace, registry, acceptAllInvoker{}, nil)
	registration := naming.NewRegistration(locks, namespace, registry, nil)
	srv := New(cfg, service,
		protocol.NewServiceHandler(service, nil),
		protocol.NewRegistrationHandler(registration, nil), nil)

	require.Error(t, srv.Start())

	// Neither listener is left behind, and the server cannot be restarted.
	conn, err := net.DialTimeout("tcp",
		net.JoinHostPort("127.0.0.1", itoa(cfg.ServicePort)), 100*time.Millisecond)
	if err == nil {
		conn.Close()
		t.Fatal("service listener still accepting after failed Start")
	}
	assert.ErrorIs(t, srv.Start(), ErrAlreadyStarted)
}

func TestStopInvokesShutdownHook(t *testing.T) {
	cfg := testConfig(t)
	srv := startServer(t, cfg)

	var hookCalls atomic.Int32
	var hookCause error
	srv.OnStopped = func(cause error) {
		hookCalls.Add(1)
		hookCause = cause
	}

	srv.Stop()
	srv.Stop() // second call must not re-fire the hook

	assert.Equal(t, int32(1), hookCalls.Load())
	assert.NoError(t, hookCause)
}

func itoa(port uint16) string {
	return strconv.Itoa(int(port))
}
