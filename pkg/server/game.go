package server

import (
	"github.com/emberfall-mud/emberfall/pkg/events"
	"github.com/emberfall-mud/emberfall/pkg/store"
	"github.com/emberfall-mud/emberfall/pkg/world"
)

// Game ties the live pieces together: configuration, the room graph, the
// persistence layer, the session registry, command dispatch, and the
// authentication controller.
type Game struct {
	Conf     Config
	World    *world.World
	Store    *store.Store
	Sessions *SessionManager
	Dispatch *Dispatcher
	Auth     *AuthController
	Metrics  *Metrics
}

// NewGame wires a game around an opened store and a loaded world.
func NewGame(conf Config, w *world.World, st *store.Store) *Game {
	g := &Game{
		Conf:     conf,
		World:    w,
		Store:    st,
		Sessions: NewSessionManager(events.NewBus()),
	}
	g.Dispatch = NewDispatcher(g)
	registerCommands(g.Dispatch)
	g.Auth = NewAuthController(g)
	return g
}
