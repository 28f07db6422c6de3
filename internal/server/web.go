package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/warpdl/keypool/pkg/logger"
	"github.com/warpdl/keypool/pkg/scheduler"
)

// WebServer serves the JSON-RPC bridge on /jsonrpc and WebSocket sessions on
// /jsonrpc/ws, both behind bearer authentication.
type WebServer struct {
	port      int
	listenAll bool
	secret    string
	log       logger.Logger
	rpc       *RPCServer
	server    *http.Server
	mu        sync.Mutex
}

// NewWebServer creates a server whose handlers run on loop.
func NewWebServer(l logger.Logger, loop *scheduler.Loop, cfg *RPCConfig, port int) *WebServer {
	l = logger.OrNop(l)
	return &WebServer{
		port:      port,
		listenAll: cfg.ListenAll,
		secret:    cfg.Secret,
		log:       l,
		rpc:       NewRPCServer(cfg, loop, l),
	}
}

// RPC returns the method handlers.
func (s *WebServer) RPC() *RPCServer {
	return s.rpc
}

func (s *WebServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/jsonrpc", requireToken(s.secret, s.rpc.bridge))
	mux.Handle("/jsonrpc/ws", requireToken(s.secret, s.rpc.serveWS(s.rpc.methods)))
	return mux
}

// Addr is the listen address: loopback only unless ListenAll is set.
func (s *WebServer) Addr() string {
	host := "127.0.0.1"
	if s.listenAll {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, fmt.Sprint(s.port))
}

// Start listens on Addr and serves until Shutdown.
func (s *WebServer) Start() error {
	l, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve serves on l until Shutdown. It returns nil after a clean shutdown.
func (s *WebServer) Serve(l net.Listener) error {
	s.mu.Lock()
	s.server = &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.ToStdLogger(s.log),
	}
	srv := s.server
	s.mu.Unlock()

	s.log.Info("serving JSON-RPC on %s", l.Addr())
	err := srv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections, waits for in-flight requests and
// closes the RPC server.
func (s *WebServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	if cerr := s.rpc.Close(); err == nil {
		err = cerr
	}
	return err
}
