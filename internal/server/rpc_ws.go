package server

import (
	"context"
	"net/http"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/warpdl/keypool/pkg/logger"
)

// wsChannel carries one JSON-RPC message per WebSocket text frame.
type wsChannel struct {
	conn *cws.Conn
	ctx  context.Context
}

func (c *wsChannel) Send(data []byte) error {
	return c.conn.Write(c.ctx, cws.MessageText, data)
}

func (c *wsChannel) Recv() ([]byte, error) {
	_, data, err := c.conn.Read(c.ctx)
	return data, err
}

func (c *wsChannel) Close() error {
	return c.conn.Close(cws.StatusNormalClosure, "")
}

// serveWS upgrades the request and serves the method map over it until the
// peer disconnects. The connection receives timer.fired pushes meanwhile.
func (rs *RPCServer) serveWS(methods handler.Map) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := cws.Accept(w, r, nil)
		if err != nil {
			rs.log.Warning("websocket accept: %v", err)
			return
		}
		srv := jrpc2.NewServer(methods, &jrpc2.ServerOptions{
			AllowPush: true,
			Logger:    jrpc2.StdLogger(logger.ToStdLogger(rs.log)),
		})
		srv.Start(&wsChannel{conn: conn, ctx: r.Context()})
		rs.notifier.Register(srv)
		defer rs.notifier.Unregister(srv)
		if err := srv.Wait(); err != nil {
			rs.log.Debug("websocket session ended: %v", err)
		}
	}
}
