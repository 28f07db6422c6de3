package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cws "github.com/coder/websocket"
)

// dialWS starts an httptest server for ws and opens an authenticated
// WebSocket session to /jsonrpc/ws.
func dialWS(t *testing.T, ws *WebServer, token string) (*cws.Conn, *http.Response, error) {
	t.Helper()
	srv := httptest.NewServer(ws.handler())
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/jsonrpc/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	opts := &cws.DialOptions{}
	if token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + token}}
	}
	return cws.Dial(ctx, wsURL, opts)
}

func wsSend(t *testing.T, ctx context.Context, conn *cws.Conn, id int, method string, params any) {
	t.Helper()
	req := map[string]any{"jsonrpc": "2.0", "method": method, "id": id}
	if params != nil {
		req["params"] = params
	}
	data, _ := json.Marshal(req)
	if err := conn.Write(ctx, cws.MessageText, data); err != nil {
		t.Fatalf("write %s: %v", method, err)
	}
}

func wsRead(t *testing.T, ctx context.Context, conn *cws.Conn) map[string]any {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

func TestWebSocket_AuthRequired(t *testing.T) {
	ws := newTestWebServer(t, nil)
	for _, token := range []string{"", "wrong-token"} {
		_, resp, err := dialWS(t, ws, token)
		if err == nil {
			t.Fatalf("expected dial with token %q to fail", token)
		}
		if resp != nil && resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	}
}

func TestWebSocket_Requests(t *testing.T) {
	ws := newTestWebServer(t, nil)
	conn, _, err := dialWS(t, ws, testSecret)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(cws.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 1; i <= 3; i++ {
		wsSend(t, ctx, conn, i, "pool.allocate", map[string]any{})
		resp := wsRead(t, ctx, conn)
		if int(resp["id"].(float64)) != i {
			t.Fatalf("expected id %d, got %v", i, resp["id"])
		}
		result, _ := resp["result"].(map[string]any)
		if result["handle"] != float64(i-1) {
			t.Fatalf("expected handle %d, got %v", i-1, resp)
		}
	}

	wsSend(t, ctx, conn, 9, "no.such.method", nil)
	resp := wsRead(t, ctx, conn)
	errObj, ok := resp["error"].(map[string]any)
	if !ok || errObj["code"].(float64) != -32601 {
		t.Fatalf("expected method not found, got %v", resp)
	}
}

func TestWebSocket_TimerFiredPush(t *testing.T) {
	ws := newTestWebServer(t, nil)
	conn, _, err := dialWS(t, ws, testSecret)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(cws.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsSend(t, ctx, conn, 1, "timer.schedule", map[string]any{
		"durationMs": 20,
		"repeat":     2,
		"tag":        "poll",
		"payload":    map[string]any{"slot": 4},
	})

	var counts []float64
	for len(counts) < 2 {
		msg := wsRead(t, ctx, conn)
		if msg["id"] != nil {
			if msg["error"] != nil {
				t.Fatalf("schedule failed: %v", msg["error"])
			}
			continue
		}
		if msg["method"] != "timer.fired" {
			t.Fatalf("unexpected push %v", msg)
		}
		params := msg["params"].(map[string]any)
		if params["tag"] != "poll" || params["handle"] != 0.0 || params["limit"] != 2.0 {
			t.Fatalf("unexpected params %v", params)
		}
		if payload, _ := params["payload"].(map[string]any); payload["slot"] != 4.0 {
			t.Fatalf("unexpected payload %v", params["payload"])
		}
		counts = append(counts, params["count"].(float64))
	}
	if counts[0] != 1 || counts[1] != 2 {
		t.Fatalf("expected firings 1 and 2 in order, got %v", counts)
	}

	wsSend(t, ctx, conn, 2, "timer.list", nil)
	for {
		msg := wsRead(t, ctx, conn)
		if msg["id"] == nil {
			continue
		}
		result := msg["result"].(map[string]any)
		if timers := result["timers"].([]any); len(timers) != 0 {
			t.Fatalf("expected finished timer released, got %v", timers)
		}
		break
	}
}

func TestWebSocket_SessionRegistered(t *testing.T) {
	ws := newTestWebServer(t, nil)
	conn, _, err := dialWS(t, ws, testSecret)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for ws.rpc.Notifier().Count() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("session was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	conn.Close(cws.StatusNormalClosure, "")
	for ws.rpc.Notifier().Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session was not unregistered after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
