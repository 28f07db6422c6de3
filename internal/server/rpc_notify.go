package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/creachadair/jrpc2"
	"github.com/warpdl/keypool/pkg/keypool"
	"github.com/warpdl/keypool/pkg/logger"
)

// RPCNotifier tracks the connected WebSocket sessions and pushes
// notifications to all of them.
type RPCNotifier struct {
	mu      sync.RWMutex
	servers map[*jrpc2.Server]struct{}
	log     logger.Logger
}

// NewRPCNotifier creates an empty notifier.
func NewRPCNotifier(l logger.Logger) *RPCNotifier {
	return &RPCNotifier{
		servers: make(map[*jrpc2.Server]struct{}),
		log:     logger.OrNop(l),
	}
}

func (n *RPCNotifier) Register(srv *jrpc2.Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.servers[srv] = struct{}{}
}

func (n *RPCNotifier) Unregister(srv *jrpc2.Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.servers, srv)
}

// Broadcast pushes method to every session. Sessions failing to receive it
// are dropped.
func (n *RPCNotifier) Broadcast(method string, params any) {
	n.mu.RLock()
	servers := make([]*jrpc2.Server, 0, len(n.servers))
	for srv := range n.servers {
		servers = append(servers, srv)
	}
	n.mu.RUnlock()

	for _, srv := range servers {
		if err := srv.Notify(context.Background(), method, params); err != nil {
			n.log.Warning("RPC push %s failed: %v", method, err)
			n.Unregister(srv)
		}
	}
}

// StopAll ends every registered session.
func (n *RPCNotifier) StopAll() {
	n.mu.Lock()
	servers := n.servers
	n.servers = make(map[*jrpc2.Server]struct{})
	n.mu.Unlock()
	for srv := range servers {
		srv.Stop()
	}
}

// Count returns the number of registered sessions.
func (n *RPCNotifier) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.servers)
}

// TimerFiredNotification is pushed as timer.fired on every firing.
type TimerFiredNotification struct {
	Handle  keypool.Handle  `json:"handle"`
	Tag     string          `json:"tag"`
	Count   int             `json:"count"`
	Limit   int             `json:"limit"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
