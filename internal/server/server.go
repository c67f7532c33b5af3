// Package server binds the naming server's two RPC listeners and runs the
// per-connection request loops. The service program (lock, list, create,
// delete, getStorage) and the registration program are exposed on separate
// well-known ports, each with its own listener and accept loop.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corfid/namingd/internal/logger"
	protocol "github.com/corfid/namingd/internal/protocol/naming"
	"github.com/corfid/namingd/internal/protocol/rpc"
	"github.com/corfid/namingd/pkg/config"
	"github.com/corfid/namingd/pkg/metrics"
	"github.com/corfid/namingd/pkg/naming"
)

// ErrAlreadyStarted is returned by Start on a server that has run before.
// A naming server cannot be restarted; create a new one instead.
var ErrAlreadyStarted = errors.New("server already started")

// Server owns both listeners and the lifecycle of the naming facades.
type Server struct {
	cfg     config.ServerConfig
	service *naming.Service
	metrics metrics.NamingMetrics

	serviceHandler      *protocol.ServiceHandler
	registrationHandler *protocol.RegistrationHandler

	// OnStopped, if set, is invoked exactly once when the server has shut
	// down: with nil after a clean Stop, or with the error that took the
	// server down.
	OnStopped func(error)

	mu             sync.Mutex
	started        bool
	stopped        bool
	serviceLn      net.Listener
	registrationLn net.Listener
	cancel         context.CancelFunc

	wg          sync.WaitGroup
	activeConns atomic.Int32
	stopOnce    sync.Once
}

func New(cfg config.ServerConfig, service *naming.Service, serviceHandler *protocol.ServiceHandler, registrationHandler *protocol.RegistrationHandler, m metrics.NamingMetrics) *Server {
	if m == nil {
		m = metrics.NewNamingMetrics()
	}
	return &Server{
		cfg:                 cfg,
		service:             service,
		metrics:             m,
		serviceHandler:      serviceHandler,
		registrationHandler: registrationHandler,
	}
}

// Start binds both listeners and begins accepting connections. If either
// bind fails, nothing is left listening and the server is unusable.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return ErrAlreadyStarted
	}

	serviceAddr := net.JoinHostPort(s.cfg.BindAddress, strconv.Itoa(int(s.cfg.ServicePort)))
	serviceLn, err := net.Listen("tcp", serviceAddr)
	if err != nil {
		s.stopped = true
		return fmt.Errorf("bind service listener on %s: %w", serviceAddr, err)
	}

	registrationAddr := net.JoinHostPort(s.cfg.BindAddress, strconv.Itoa(int(s.cfg.RegistrationPort)))
	registrationLn, err := net.Listen("tcp", registrationAddr)
	if err != nil {
		serviceLn.Close()
		s.stopped = true
		return fmt.Errorf("bind registration listener on %s: %w", registrationAddr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.serviceLn = serviceLn
	s.registrationLn = registrationLn
	s.cancel = cancel
	s.started = true

	logger.Info("naming service listening on %s", serviceAddr)
	logger.Info("registration listening on %s", registrationAddr)

	s.wg.Add(2)
	go s.acceptLoop(ctx, serviceLn, rpc.ProgramNamingService)
	go s.acceptLoop(ctx, registrationLn, rpc.ProgramNamingRegistration)

	return nil
}

// Stop closes both listeners, cancels every in-flight request and queued
// lock waiter, waits for connection goroutines to drain, and invokes the
// shutdown hook. Safe to call more than once; only the first call acts.
func (s *Server) Stop() {
	s.stop(nil)
}

func (s *Server) stop(cause error) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		var errs []error
		if s.serviceLn != nil {
			if err := s.serviceLn.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if s.registrationLn != nil {
			if err := s.registrationLn.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()

		// Waiters queued in the lock manager fail with Cancelled.
		s.service.Close()

		drained := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(s.cfg.ShutdownTimeout):
			logger.Warn("shutdown timeout elapsed with connections still draining")
		}

		if cause == nil && len(errs) > 0 {
			cause = errors.Join(errs...)
		}
		if s.OnStopped != nil {
			s.OnStopped(cause)
		}
		logger.Info("naming server stopped")
	})
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, program uint32) {
	defer s.wg.Done()

	for {
		tcpConn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Debug("accept on %s: %v", ln.Addr(), err)
				continue
			}
		}

		if max := s.cfg.MaxConnections; max > 0 && uint(s.activeConns.Load()) >= max {
			logger.Warn("connection limit reached, refusing %s", tcpConn.RemoteAddr())
			tcpConn.Close()
			continue
		}

		s.metrics.RecordConnectionAccepted()
		s.metrics.SetActiveConnections(s.activeConns.Add(1))

		c := s.newConn(tcpConn, program)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.serve(ctx)
			s.metrics.RecordConnectionClosed()
			s.metrics.SetActiveConnections(s.activeConns.Add(-1))
		}()
	}
}
