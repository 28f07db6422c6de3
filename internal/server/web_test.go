package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestWebServer_Addr(t *testing.T) {
	ws := newTestWebServer(t, nil)
	ws.port = 4790
	if got := ws.Addr(); got != "127.0.0.1:4790" {
		t.Fatalf("expected loopback address, got %s", got)
	}
	ws.listenAll = true
	if got := ws.Addr(); got != "0.0.0.0:4790" {
		t.Fatalf("expected wildcard address, got %s", got)
	}
}

func TestWebServer_ServeAndShutdown(t *testing.T) {
	ws := newTestWebServer(t, nil)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- ws.Serve(l) }()

	body := strings.NewReader(`{"jsonrpc":"2.0","method":"system.getVersion","id":1}`)
	req, _ := http.NewRequest(http.MethodPost, "http://"+l.Addr().String()+"/jsonrpc", body)
	req.Header.Set("Authorization", "Bearer "+testSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ws.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("expected clean Serve return, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func TestWebServer_ShutdownBeforeStart(t *testing.T) {
	ws := newTestWebServer(t, nil)
	if err := ws.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
