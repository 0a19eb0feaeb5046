package server

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/emberfall-mud/emberfall/pkg/events"
	"github.com/emberfall-mud/emberfall/pkg/store"
	"github.com/emberfall-mud/emberfall/pkg/world"
)

// Server is the TCP (and optionally WebSocket) game server.
type Server struct {
	Conf Config
	Game *Game

	mu       sync.Mutex
	listener net.Listener
	web      *webServer
}

// NewServer creates a server around an opened store and a loaded world.
func NewServer(conf Config, w *world.World, st *store.Store) *Server {
	srv := &Server{
		Conf: conf,
		Game: NewGame(conf, w, st),
	}
	srv.Game.Metrics = NewMetrics(srv.Game)
	srv.Game.Sessions.metrics = srv.Game.Metrics
	return srv
}

// Start listens for connections and blocks until the listeners close.
func (s *Server) Start() error {
	if s.Game.World.Room(s.Conf.StartRoom) == nil {
		return fmt.Errorf("server: start room %q does not exist", s.Conf.StartRoom)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.Conf.Port))
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	log.Printf("%s listening on port %d (world: %d rooms)",
		s.Conf.MudName, s.Conf.Port, s.Game.World.Size())

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	if s.Conf.HTTPPort > 0 {
		web := newWebServer(s)
		s.mu.Lock()
		s.web = web
		s.mu.Unlock()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := web.start(); err != nil {
				errCh <- err
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.acceptLoop(ln)
	}()

	wg.Wait()
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// acceptLoop accepts connections until the listener is closed.
func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("accept error: %v", err)
			continue
		}
		go s.HandleConnection(conn)
	}
}

// Stop closes the listeners and tells connected clients the server is
// going down.
func (s *Server) Stop() {
	s.mu.Lock()
	ln, web := s.listener, s.web
	s.mu.Unlock()

	s.Game.Sessions.BroadcastAll(events.Event{
		Type: events.EvSystem,
		Text: "The server is shutting down.",
	}, "")
	if ln != nil {
		ln.Close()
	}
	if web != nil {
		web.stop()
	}
}

// HandleConnection runs one client connection from accept to teardown.
// It is the per-connection goroutine body for both the TCP listener and
// the WebSocket transport.
func (s *Server) HandleConnection(conn net.Conn) {
	sess := NewSession(conn)
	s.Game.Sessions.Add(sess)
	if s.Game.Metrics != nil {
		s.Game.Metrics.connectionsTotal.Inc()
	}
	log.Printf("[%s] new connection from %s", sess.ID, sess.Addr)

	defer s.disconnect(sess, "connection closed")

	sess.ArmIdleTimer(s.Conf.IdleTimeoutDur(), func() {
		if sess.IsClosed() {
			return
		}
		sess.Send("You have been idle too long. Goodbye!")
		s.disconnect(sess, "idle timeout")
	})

	sess.SendNoNewline(s.Conf.WelcomeText)

	for {
		line, err := sess.ReadLine()
		if err != nil {
			return
		}
		sess.Touch(s.Conf.IdleTimeoutDur())

		if sess.State() == StateAuthenticating {
			s.Game.Auth.HandleLine(sess, line)
		} else {
			s.Game.Dispatch.Dispatch(sess, line)
		}

		if sess.IsClosed() {
			return
		}
	}
}

// disconnect tears a session down: registry and presence removal first,
// then a single departure announcement, then the socket close. Calling it
// twice for the same session is a no-op the second time, so the idle
// timer, a read error, and an explicit quit can all race into it safely.
func (s *Server) disconnect(sess *Session, reason string) {
	name, room, wasAuthenticated, found := s.Game.Sessions.Remove(sess.ID)
	if !found {
		return
	}
	s.Game.Auth.Forget(sess.ID)
	sess.Close()

	if wasAuthenticated && room != "" {
		s.Game.Sessions.BroadcastToRoom(room, events.Event{
			Type:   events.EvDisconnect,
			Source: name,
			Text:   name + " has left the game.",
		}, sess.ID)
	}
	log.Printf("[%s] disconnected (%s) from %s", sess.ID, reason, sess.Addr)
}
