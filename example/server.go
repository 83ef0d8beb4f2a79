//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/Zereker/waybind"
)

// connHandler handles accepted client connections.
type connHandler interface {
	// Handle is called on its own goroutine for each new connection and
	// owns it until it returns.
	Handle(ctx context.Context, conn *net.UnixConn)
}

// server listens on a Wayland display socket.
type server struct {
	listener        *net.UnixListener
	logger          waybind.Logger
	shutdownTimeout time.Duration

	mu          sync.Mutex
	shutdown    bool
	shutdownNow chan struct{} // signals immediate shutdown, bypassing timeout
	conns       sync.WaitGroup
}

type serverOption func(*server)

func serverLoggerOption(logger waybind.Logger) serverOption {
	return func(s *server) {
		s.logger = logger
	}
}

// serverShutdownTimeoutOption sets how long Serve keeps the listener open
// after its context is canceled. Default is 0 (immediate shutdown).
func serverShutdownTimeoutOption(timeout time.Duration) serverOption {
	return func(s *server) {
		s.shutdownTimeout = timeout
	}
}

// newServer binds the display socket at path. A stale socket left by a
// dead compositor is replaced; a live one is an error.
func newServer(path string, opts ...serverOption) (*server, error) {
	if err := removeStaleSocket(path); err != nil {
		return nil, err
	}

	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, err
	}
	listener.SetUnlinkOnClose(true)

	s := &server{
		listener:    listener,
		logger:      slog.Default(),
		shutdownNow: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func removeStaleSocket(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if conn, err := net.Dial("unix", path); err == nil {
		conn.Close()
		return fmt.Errorf("display socket %s is in use", path)
	}
	return os.Remove(path)
}

// Serve accepts connections and hands each one to handler. It blocks until
// the context is canceled or accepting fails, then waits for the handlers.
func (s *server) Serve(ctx context.Context, handler connHandler) error {
	s.logger.Info("server started", "addr", s.listener.Addr())

	go func() {
		<-ctx.Done()

		// Wait for shutdown timeout if configured, but allow early exit via Close()
		if s.shutdownTimeout > 0 {
			s.logger.Info("graceful shutdown initiated", "timeout", s.shutdownTimeout)
			select {
			case <-time.After(s.shutdownTimeout):
			case <-s.shutdownNow:
				s.logger.Debug("shutdown timeout bypassed via Close()")
			}
		}

		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		// Set a deadline to unblock Accept
		_ = s.listener.SetDeadline(time.Now())
	}()

	defer s.conns.Wait()

	for {
		conn, err := s.listener.AcceptUnix()
		if err != nil {
			s.mu.Lock()
			isShutdown := s.shutdown
			s.mu.Unlock()

			if isShutdown {
				s.logger.Info("server stopped", "addr", s.listener.Addr())
				s.listener.Close()
				return ctx.Err()
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("accept error", "error", err)
			return err
		}

		s.logger.Debug("accepted connection")
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			handler.Handle(ctx, conn)
		}()
	}
}

// Close stops the server and removes the socket file.
// If a shutdown timeout is configured, Close bypasses the remaining timeout.
func (s *server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	select {
	case s.shutdownNow <- struct{}{}:
	default:
	}

	return s.listener.Close()
}

// Addr returns the listener's socket path.
func (s *server) Addr() net.Addr {
	return s.listener.Addr()
}
