package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/keytune/internal/bulksync"
	"github.com/muurk/keytune/internal/logging"
	"github.com/muurk/keytune/internal/session"
	"github.com/muurk/keytune/internal/snapshot"
	"github.com/muurk/keytune/internal/transport"
)

// DefaultPort is the bridge's listening port.
const DefaultPort = 7878

// Config holds the server configuration
type Config struct {
	Host     string
	Port     int
	CertPath string // TLS is enabled when both paths are set
	KeyPath  string
}

// Device is the session surface the bridge drives. *session.Session
// implements it.
type Device interface {
	Status() session.Status
	Subscribe(o session.Observer) func()
	AutoConnect(ctx context.Context) (*transport.DeviceInfo, error)
	Disconnect() error
}

// Syncer runs bulk exports and imports. *bulksync.Engine implements it.
type Syncer interface {
	Export(ctx context.Context) (*snapshot.Snapshot, *bulksync.Report, error)
	Import(ctx context.Context, snap *snapshot.Snapshot) (*bulksync.Report, error)
}

// Server is the keytune bridge: a small HTTP API plus a WebSocket status
// feed for remote UIs.
type Server struct {
	config    *Config
	dev       Device
	sync      Syncer
	hub       *Hub
	tlsConfig *tls.Config
	handler   http.Handler
	started   time.Time

	mu          sync.Mutex
	httpSrv     *http.Server
	listener    net.Listener
	unsubscribe func()
}

// New creates a new Server instance and subscribes its hub to dev.
func New(config *Config, dev Device, syncer Syncer) (*Server, error) {
	var tlsConfig *tls.Config
	if config.CertPath != "" && config.KeyPath != "" {
		var err error
		tlsConfig, err = NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	s := &Server{
		config:    config,
		dev:       dev,
		sync:      syncer,
		hub:       NewHub(),
		tlsConfig: tlsConfig,
		started:   time.Now(),
	}
	s.handler = logRequests(s.routes())
	s.hub.OnStatus(dev.Status())
	s.unsubscribe = dev.Subscribe(s.hub)
	return s, nil
}

// Handler returns the bridge's HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Listen opens the listening socket. Port 0 picks a free port; Addr reports it.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	var (
		ln  net.Listener
		err error
	)
	if s.tlsConfig != nil {
		ln, err = tls.Listen("tcp", addr, s.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.httpSrv = &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}
	s.mu.Unlock()

	logging.Info("Bridge listening",
		zap.String("addr", ln.Addr().String()),
		zap.Any("tls_info", GetTLSInfo(s.tlsConfig)),
	)
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound TCP port, or 0 before Listen.
func (s *Server) Port() int {
	if a, ok := s.Addr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}

// Serve serves until ctx is done, SIGINT/SIGTERM arrives or the listener
// fails, then shuts down.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	srv, ln := s.httpSrv, s.listener
	s.mu.Unlock()
	if srv == nil {
		return errors.New("server is not listening")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		logging.Info("Shutdown requested, stopping bridge...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Start listens and serves.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down bridge...")

	s.mu.Lock()
	srv := s.httpSrv
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.hub.Close()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
		if err != nil {
			logging.Warn("Shutdown timeout, forcing close", zap.Error(err))
			_ = srv.Close()
		}
	}
	logging.Sync()
	return err
}

// ActiveClients returns the number of connected WebSocket clients.
func (s *Server) ActiveClients() int {
	return s.hub.Clients()
}
