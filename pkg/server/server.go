// Package server implements the chat server: the accept loop, the
// connection registry, and the action router that executes client
// requests.
package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mwhitney/parley/pkg/database"
	"github.com/mwhitney/parley/pkg/protocol"
	"github.com/mwhitney/parley/pkg/transport"
)

var (
	errorLog = log.New(os.Stderr, "ERROR: ", log.LstdFlags)
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)
)

// EnableDebugLogging turns on debug output to stderr.
func EnableDebugLogging() {
	debugLog = log.New(os.Stderr, "DEBUG: ", log.LstdFlags)
}

// nameGenerator hands out placeholder display names (user_00000,
// user_00001, ...) off a monotonic counter, so generated names never
// collide with each other.
type nameGenerator struct {
	ctr atomic.Uint64
}

func (g *nameGenerator) Next() string {
	return fmt.Sprintf("user_%05d", g.ctr.Add(1)-1)
}

// Server is the chat server: one acceptor goroutine plus one worker
// goroutine per accepted connection.
type Server struct {
	config   Config
	codec    *protocol.Codec
	registry *Registry
	router   *Router
	store    *database.Store
	metrics  *Metrics
	names    *nameGenerator

	listener net.Listener
	mgmtConn net.PacketConn

	shutdown chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewServer opens the account store and wires the server components. The
// codec is shared by every encode on the server side, giving all outbound
// frames one sequence counter.
func NewServer(config Config) (*Server, error) {
	store, err := database.Open(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open account store: %w", err)
	}

	codec := protocol.NewCodec()
	registry := NewRegistry()
	metrics := NewMetrics()
	names := &nameGenerator{}

	return &Server{
		config:   config,
		codec:    codec,
		registry: registry,
		router:   NewRouter(codec, registry, store, metrics, names),
		store:    store,
		metrics:  metrics,
		names:    names,
		shutdown: make(chan struct{}),
	}, nil
}

// Metrics exposes the server's instrumentation (for the HTTP handler and
// tests).
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addr returns the bound chat listener address, useful when the
// configured port was 0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds the listeners and launches the background goroutines. It
// does not block; call Stop to shut down.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.BindAddr, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	log.Printf("Chat listener on %s", listener.Addr())

	s.store.AddLog(database.LogInfo, "server started")

	// Internal metrics endpoint. Never expose publicly.
	if s.config.MetricsPort > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", s.metrics.Handler())
			mux.HandleFunc("/health", s.healthHandler)
			maddr := fmt.Sprintf("%s:%d", s.config.BindAddr, s.config.MetricsPort)
			log.Printf("Metrics server on %s (/metrics, /health) - INTERNAL ONLY", maddr)
			if err := http.ListenAndServe(maddr, mux); err != nil {
				errorLog.Printf("metrics server: %v", err)
			}
		}()
	}

	// Same wire protocol over WebSocket, for clients that cannot open a
	// raw TCP socket.
	if s.config.WebSocketPort > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.HandleFunc("/ws", s.handleWebSocket)
			waddr := fmt.Sprintf("%s:%d", s.config.BindAddr, s.config.WebSocketPort)
			log.Printf("WebSocket server on %s (/ws)", waddr)
			if err := http.ListenAndServe(waddr, mux); err != nil {
				errorLog.Printf("websocket server: %v", err)
			}
		}()
	}

	// Management port: reserved. Bound so the port stays claimed, traffic
	// discarded.
	if s.config.ManagementPort > 0 {
		if err := s.startManagementStub(); err != nil {
			errorLog.Printf("management stub: %v", err)
		}
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "ok %d connections\n", s.registry.Len())
}

// startManagementStub binds the UDP management port and discards incoming
// datagrams. Remote management is a future feature; the port is specified
// as no-op for now.
func (s *Server) startManagementStub() error {
	addr := fmt.Sprintf("%s:%d", s.config.BindAddr, s.config.ManagementPort)
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind management port %s: %w", addr, err)
	}
	s.mgmtConn = conn

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		buf := make([]byte, 64)
		for {
			select {
			case <-s.shutdown:
				return
			default:
			}
			conn.SetReadDeadline(time.Now().Add(time.Second))
			n, from, err := conn.ReadFrom(buf)
			if err != nil {
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					continue
				}
				return
			}
			debugLog.Printf("management: discarded %d bytes from %s", n, from)
		}
	}()
	return nil
}

// acceptLoop accepts connections, registers them under a placeholder name
// and hands each to its own worker goroutine.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		netConn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				errorLog.Printf("accept: %v", err)
				continue
			}
		}

		if tcpConn, ok := netConn.(*net.TCPConn); ok {
			tcpConn.SetNoDelay(true)
		}

		s.startSession(netConn)
	}
}

// startSession wraps an established socket (TCP or WebSocket bridge) in a
// Conn, registers it and spawns its worker.
func (s *Server) startSession(netConn net.Conn) {
	name := s.names.Next()
	conn := transport.New(netConn, s.codec, name)
	conn.SetTimeouts(
		time.Duration(s.config.ReadTimeoutSeconds)*time.Second,
		time.Duration(s.config.WriteTimeoutSeconds)*time.Second,
	)

	s.registry.Add(name, conn)
	s.metrics.RecordConnect(s.registry.Len())
	s.store.AddLog(database.LogInfo, fmt.Sprintf("%s connected as %s", netConn.RemoteAddr(), name))
	debugLog.Printf("%s connected as %s", netConn.RemoteAddr(), name)

	s.wg.Add(1)
	go s.handleClient(conn)
}

// handleClient is the per-connection worker: announce the session, then
// alternate between receiving frames and draining the queue through the
// router until the connection starts closing.
func (s *Server) handleClient(conn *transport.Conn) {
	defer s.wg.Done()

	s.router.OnConnect(conn, s.config.MOTD)

	for !conn.Closing() {
		select {
		case <-s.shutdown:
			conn.Close()
		default:
		}

		if _, err := conn.Receive(); err != nil {
			debugLog.Printf("%s receive: %v", conn.Name(), err)
		}
		s.router.DrainQueue(conn)
	}

	s.router.OnDisconnect(conn)
	s.metrics.RecordDisconnect(s.registry.Len())
}

// Stop shuts the server down: closes the listeners, notifies clients,
// closes every connection and waits (bounded by the configured grace
// period) for the workers to drain.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		log.Println("Graceful shutdown initiated...")
		close(s.shutdown)

		if s.listener != nil {
			s.listener.Close()
		}
		if s.mgmtConn != nil {
			s.mgmtConn.Close()
		}

		// Best-effort shutdown notice; the workers close the sockets.
		if data, err := s.codec.ServerNotice("Server closing..."); err == nil {
			for _, conn := range s.registry.Snapshot() {
				conn.Send(data)
			}
		}
		for _, conn := range s.registry.Snapshot() {
			conn.Close()
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Duration(s.config.ShutdownGraceSeconds) * time.Second):
			errorLog.Printf("shutdown grace period expired with workers outstanding")
		}

		s.store.AddLog(database.LogInfo, "server shut down")
		if err := s.store.Close(); err != nil {
			errorLog.Printf("closing store: %v", err)
		}
		log.Println("Graceful shutdown complete")
	})
}
