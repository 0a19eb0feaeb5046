package server

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emberfall-mud/emberfall/pkg/store"
	"github.com/emberfall-mud/emberfall/pkg/world"
)

// testWorld builds a three-room world:
//
//	square <-north/south-> market
//	square <-down/up-> cellar
func testWorld(t *testing.T) *world.World {
	t.Helper()
	w := world.New()
	w.AddRoom(&world.Room{ID: "square", Name: "Town Square", Description: "The heart of town."})
	w.AddRoom(&world.Room{ID: "market", Name: "Market Row"})
	w.AddRoom(&world.Room{ID: "cellar", Name: "Cellar"})
	for _, e := range []struct{ from, dir, to string }{
		{"square", "north", "market"},
		{"market", "south", "square"},
		{"square", "down", "cellar"},
		{"cellar", "up", "square"},
	} {
		if err := w.AddExit(e.from, e.dir, e.to); err != nil {
			t.Fatal(err)
		}
	}
	return w
}

func testConfig() Config {
	conf := DefaultConfig()
	conf.StartRoom = "square"
	conf.IdleTimeout = 0 // timers fire deterministically in tests, never on a clock
	conf.AuthTimeout = 60
	conf.LoginMaxAttempts = 3
	conf.LoginCooldown = 30
	return conf
}

// newTestServer creates a full server (game, store, world) without any
// listeners running.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewServer(testConfig(), testWorld(t), st)
}

func newTestGame(t *testing.T) *Game {
	t.Helper()
	return newTestServer(t).Game
}

// pipeConn buffers writes so Session.Send never blocks on the synchronous
// net.Pipe, while tests read the buffered output at their leisure.
type pipeConn struct {
	conn net.Conn

	mu  sync.Mutex
	buf strings.Builder
}

func (p *pipeConn) Read(b []byte) (int, error) {
	return 0, fmt.Errorf("read not supported on server side")
}

func (p *pipeConn) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf.Write(b)
	return len(b), nil
}

func (p *pipeConn) Close() error                       { return p.conn.Close() }
func (p *pipeConn) LocalAddr() net.Addr                { return p.conn.LocalAddr() }
func (p *pipeConn) RemoteAddr() net.Addr               { return p.conn.RemoteAddr() }
func (p *pipeConn) SetDeadline(t time.Time) error      { return nil }
func (p *pipeConn) SetReadDeadline(t time.Time) error  { return nil }
func (p *pipeConn) SetWriteDeadline(t time.Time) error { return nil }

// newTestSession registers a fresh pre-auth session backed by a pipeConn.
func newTestSession(t *testing.T, g *Game) *Session {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	s := NewSession(&pipeConn{conn: serverConn})
	g.Sessions.Add(s)
	t.Cleanup(func() {
		serverConn.Close()
		clientConn.Close()
	})
	return s
}

// authTestSession creates an account and promotes a fresh session into the
// starting room under the given display name.
func authTestSession(t *testing.T, g *Game, name string) *Session {
	t.Helper()
	acct, err := g.Store.CreateAccount(name, "Passw0rd")
	if err != nil {
		t.Fatalf("CreateAccount(%s): %v", name, err)
	}
	s := newTestSession(t, g)
	if err := g.Sessions.Authenticate(s, acct.ID, acct.Name, g.Conf.StartRoom); err != nil {
		t.Fatalf("Authenticate(%s): %v", name, err)
	}
	return s
}

// getOutput returns all buffered output for a session and clears it.
func getOutput(s *Session) string {
	p, ok := s.Conn.(*pipeConn)
	if !ok {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.buf.String()
	p.buf.Reset()
	return strings.TrimRight(out, "\r\n")
}

// clearOutput discards any buffered output.
func clearOutput(s *Session) {
	getOutput(s)
}

// wantContains fails the test unless the session's pending output contains
// the given substring. It consumes the output.
func wantContains(t *testing.T, s *Session, substr string) string {
	t.Helper()
	out := getOutput(s)
	if !strings.Contains(out, substr) {
		t.Fatalf("output %q does not contain %q", out, substr)
	}
	return out
}
