package server

import (
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/handler"
	"github.com/warpdl/keypool/pkg/logger"
)

// newTestServer starts a push-enabled jrpc2 server on an io.Pipe channel.
// The returned client channel must be drained or closed so pushes do not
// block.
func newTestServer(t *testing.T) (channel.Channel, *jrpc2.Server, func()) {
	t.Helper()
	cr, sw := io.Pipe()
	sr, cw := io.Pipe()
	cli := channel.Line(cr, cw)
	srvCh := channel.Line(sr, sw)

	srv := jrpc2.NewServer(handler.Map{}, &jrpc2.ServerOptions{AllowPush: true})
	srv.Start(srvCh)

	cleanup := func() {
		cli.Close()
		_ = srv.Wait()
	}
	return cli, srv, cleanup
}

func TestRPCNotifier_RegisterUnregister(t *testing.T) {
	n := NewRPCNotifier(nil)
	_, srv, cleanup := newTestServer(t)
	defer cleanup()

	n.Register(srv)
	n.Register(srv)
	if n.Count() != 1 {
		t.Fatalf("expected 1 server, got %d", n.Count())
	}
	n.Unregister(srv)
	n.Unregister(srv)
	if n.Count() != 0 {
		t.Fatalf("expected 0 servers, got %d", n.Count())
	}
}

func TestRPCNotifier_BroadcastTimerFired(t *testing.T) {
	n := NewRPCNotifier(nil)
	cli, srv, cleanup := newTestServer(t)
	defer cleanup()
	n.Register(srv)

	done := make(chan []byte, 1)
	go func() {
		data, _ := cli.Recv()
		done <- data
	}()

	n.Broadcast("timer.fired", &TimerFiredNotification{
		Handle:  3,
		Tag:     "poll",
		Count:   2,
		Limit:   5,
		Payload: json.RawMessage(`{"slot":1}`),
	})

	var msg struct {
		Method string                 `json:"method"`
		Params TimerFiredNotification `json:"params"`
	}
	if err := json.Unmarshal(<-done, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Method != "timer.fired" {
		t.Fatalf("expected timer.fired, got %q", msg.Method)
	}
	if msg.Params.Handle != 3 || msg.Params.Count != 2 || string(msg.Params.Payload) != `{"slot":1}` {
		t.Fatalf("unexpected params %+v", msg.Params)
	}
	if n.Count() != 1 {
		t.Fatalf("expected server kept after a successful push, got %d", n.Count())
	}
}

func TestRPCNotifier_DropsDisconnected(t *testing.T) {
	mock := logger.NewMockLogger()
	n := NewRPCNotifier(mock)
	cli, srv, _ := newTestServer(t)
	n.Register(srv)

	cli.Close()
	_ = srv.Wait()

	n.Broadcast("timer.fired", &TimerFiredNotification{Handle: 1})
	if n.Count() != 0 {
		t.Fatalf("expected disconnected server dropped, got %d", n.Count())
	}
	if len(mock.Warnings()) != 1 {
		t.Fatalf("expected one warning, got %v", mock.Warnings())
	}
}

func TestRPCNotifier_PartialFailure(t *testing.T) {
	n := NewRPCNotifier(nil)
	cliOK, srvOK, cleanup := newTestServer(t)
	defer cleanup()
	cliGone, srvGone, _ := newTestServer(t)
	n.Register(srvOK)
	n.Register(srvGone)

	cliGone.Close()
	_ = srvGone.Wait()

	go func() { _, _ = cliOK.Recv() }()
	n.Broadcast("timer.fired", &TimerFiredNotification{Handle: 0})
	if n.Count() != 1 {
		t.Fatalf("expected only the live server kept, got %d", n.Count())
	}
}

func TestRPCNotifier_StopAll(t *testing.T) {
	n := NewRPCNotifier(nil)
	_, srv1, _ := newTestServer(t)
	_, srv2, _ := newTestServer(t)
	n.Register(srv1)
	n.Register(srv2)

	n.StopAll()
	if n.Count() != 0 {
		t.Fatalf("expected registry emptied, got %d", n.Count())
	}
	srv1.Wait()
	srv2.Wait()
}

func TestRPCNotifier_ConcurrentRegister(t *testing.T) {
	n := NewRPCNotifier(nil)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, srv, cleanup := newTestServer(t)
			defer cleanup()
			n.Register(srv)
			_ = n.Count()
			n.Unregister(srv)
		}()
	}
	wg.Wait()
	if n.Count() != 0 {
		t.Fatalf("expected 0 servers, got %d", n.Count())
	}
}
