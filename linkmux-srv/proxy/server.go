package proxy

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"golang.org/x/net/netutil"

	"github.com/linkmux/linkmux/linkmux-srv/config"
	"github.com/linkmux/linkmux/linkmux-srv/logger"
	"github.com/linkmux/linkmux/linkmux-srv/netiface"
	"github.com/linkmux/linkmux/linkmux-srv/stats"
)

// Server accepts client connections and runs one session per connection.
type Server struct {
	config    *config.Config
	engine    *netiface.Engine
	collector stats.Collector

	mu       sync.Mutex
	listener net.Listener
	closed   bool

	sessions sync.WaitGroup
}

// NewServer creates a proxy server over the given selection engine and
// statistics collector.
func NewServer(cfg *config.Config, engine *netiface.Engine, collector stats.Collector) *Server {
	if collector == nil {
		collector = stats.NewDummyCollector()
	}
	return &Server{
		config:    cfg,
		engine:    engine,
		collector: collector,
	}
}

// Engine returns the server's interface selection engine.
func (s *Server) Engine() *netiface.Engine {
	return s.engine
}

// Collector returns the server's statistics collector.
func (s *Server) Collector() stats.Collector {
	return s.collector
}

// Start binds the listen address and serves until Stop is called. The
// listener is capped at the configured maximum concurrent connections.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.ListenAddress())
	if err != nil {
		return NewProxyError(ErrCodeListenerCreateFailed,
			"failed to listen on "+s.config.ListenAddress(), err)
	}
	return s.StartWithListener(listener)
}

// StartWithListener serves on an existing listener. Used by tests to bind
// an ephemeral port.
func (s *Server) StartWithListener(listener net.Listener) error {
	listener = netutil.LimitListener(listener, s.config.MaxConcurrentConnections)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = listener.Close()
		return errors.New("server already stopped")
	}
	s.listener = listener
	s.mu.Unlock()

	logger.Info("Proxy server started on %s", listener.Addr())
	for _, iface := range s.engine.Interfaces() {
		logger.Info("  - %s", iface)
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if isClosedConnError(err) {
				break
			}
			logger.Error("Failed to accept connection: %v", err)
			continue
		}

		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			newSession(s, conn).handle()
		}()
	}

	s.sessions.Wait()
	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener. In-flight sessions finish on their own; Start
// returns once they have.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	if err != nil && !isClosedConnError(err) {
		return fmt.Errorf("failed to close listener: %w", err)
	}
	return nil
}

func isClosedConnError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, net.ErrClosed) ||
		strings.Contains(err.Error(), "use of closed network connection")
}
