package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// webServer hosts the WebSocket transport and the metrics endpoint on a
// single HTTP listener.
type webServer struct {
	srv  *Server
	http *http.Server
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  maxLineLen,
	WriteBufferSize: maxLineLen,
	// The game protocol carries no credentials until the in-band login
	// flow runs, so cross-origin web clients are acceptable.
	CheckOrigin: func(*http.Request) bool { return true },
}

func newWebServer(s *Server) *webServer {
	ws := &webServer{srv: s}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ws.handleWS)
	if s.Game.Metrics != nil {
		mux.Handle("/metrics", s.Game.Metrics.Handler())
	}

	ws.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Conf.HTTPPort),
		Handler: mux,
	}
	return ws
}

func (w *webServer) start() error {
	log.Printf("WebSocket/metrics listening on port %d", w.srv.Conf.HTTPPort)
	if err := w.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func (w *webServer) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.http.Shutdown(ctx)
}

// handleWS upgrades the request and feeds the socket into the same
// connection handler the TCP listener uses. WebSocket clients therefore
// get identical framing, authentication, and broadcast behavior.
func (w *webServer) handleWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Printf("websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	go w.srv.HandleConnection(newWSConn(conn))
}

// wsConn adapts a websocket.Conn to net.Conn. Each inbound text message
// becomes one newline-terminated chunk of the byte stream; each Write
// becomes one outbound text message.
type wsConn struct {
	ws  *websocket.Conn
	buf []byte
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(p []byte) (int, error) {
	if len(c.buf) == 0 {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return 0, err
		}
		c.buf = append(data, '\n')
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }

var _ net.Conn = (*wsConn)(nil)
