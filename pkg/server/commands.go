package server

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/emberfall-mud/emberfall/pkg/events"
	"github.com/emberfall-mud/emberfall/pkg/world"
)

// registerCommands fills the dispatcher with the game's command table.
// Direction words and their shortcuts are registered as standalone
// commands so "north" and "n" work without typing "move".
func registerCommands(d *Dispatcher) {
	d.Register(&Command{Name: "signup", Handler: cmdSignup, Help: "signup - create a new character"})
	d.Register(&Command{Name: "login", Handler: cmdLogin, Help: "login - connect to an existing character"})
	d.Register(&Command{Name: "look", Handler: cmdLook, AuthOnly: true, Help: "look - describe your surroundings"})
	d.Register(&Command{Name: "where", Handler: cmdWhere, AuthOnly: true, Help: "where - show where you are"})
	d.Register(&Command{Name: "move", Handler: cmdMove, AuthOnly: true, Help: "move <direction> - walk through an exit"})
	d.Register(&Command{Name: "say", Handler: cmdSay, AuthOnly: true, Help: "say <text> - speak to the room"})
	d.Register(&Command{Name: "shout", Handler: cmdShout, AuthOnly: true, Help: "shout <text> - speak to the whole game"})
	d.Register(&Command{Name: "who", Handler: cmdWho, Help: "who - list connected players"})
	d.Register(&Command{Name: "help", Handler: cmdHelp, Help: "help - this list"})
	d.Register(&Command{Name: "quit", Handler: cmdQuit, Help: "quit - disconnect"})

	d.Alias("l", "look")
	d.Alias("\"", "say")
	d.Alias("'", "say")
	d.Alias("go", "move")

	for _, dir := range world.Directions() {
		dir := dir
		d.Register(&Command{
			Name:     dir,
			AuthOnly: true,
			Handler: func(g *Game, s *Session, _ []string) {
				doMove(g, s, dir)
			},
		})
	}
	for short, full := range world.Shortcuts() {
		d.Alias(short, full)
	}
}

func cmdSignup(g *Game, s *Session, _ []string) {
	g.Auth.BeginSignup(s)
}

func cmdLogin(g *Game, s *Session, _ []string) {
	g.Auth.BeginLogin(s)
}

func cmdLook(g *Game, s *Session, _ []string) {
	renderRoom(g, s)
}

func cmdWhere(g *Game, s *Session, _ []string) {
	room := g.World.Room(s.Room())
	if room == nil {
		s.Send("You are nowhere at all.")
		return
	}
	s.Sendf("You are in %s.", room.Name)
	if others := occupantNames(g, s); len(others) > 0 {
		s.Sendf("Also here: %s.", strings.Join(others, ", "))
	}
}

func cmdMove(g *Game, s *Session, args []string) {
	if len(args) == 0 {
		s.Send("Move where?")
		return
	}
	doMove(g, s, args[0])
}

// doMove walks a session through an exit: departure announcement, the
// registry move, a best-effort room save, arrival announcement, then a
// fresh render for the mover. A failed save never rolls the move back;
// the live session state stays authoritative.
func doMove(g *Game, s *Session, direction string) {
	from := s.Room()
	if s.State() != StateAuthenticated || from == "" {
		s.Send("You must log in first. (Type \"login\" or \"signup\".)")
		return
	}

	dir := world.Normalize(direction)
	dest, ok := g.World.FindExit(from, dir)
	if !ok {
		s.Send("You can't go that way.")
		return
	}

	name := s.Name()
	g.Sessions.BroadcastToRoom(from, events.Event{
		Type:   events.EvMove,
		Source: name,
		Text:   fmt.Sprintf("%s goes %s.", name, dir),
	}, s.ID)

	g.Sessions.Move(s, dest)

	if err := g.Store.SetRoom(s.AccountID(), dest); err != nil {
		log.Printf("[%s] save room %q for %s: %v", s.ID, dest, name, err)
	}

	arrival := fmt.Sprintf("%s arrives.", name)
	switch opp := world.Opposite(dir); opp {
	case "":
	case "above", "below":
		arrival = fmt.Sprintf("%s arrives from %s.", name, opp)
	default:
		arrival = fmt.Sprintf("%s arrives from the %s.", name, opp)
	}
	g.Sessions.BroadcastToRoom(dest, events.Event{
		Type:   events.EvMove,
		Source: name,
		Text:   arrival,
	}, s.ID)

	renderRoom(g, s)
}

func cmdSay(g *Game, s *Session, args []string) {
	text := strings.Join(args, " ")
	if text == "" {
		s.Send("Say what?")
		return
	}
	name := s.Name()
	s.Sendf("You say, \"%s\"", text)
	g.Sessions.BroadcastToRoom(s.Room(), events.Event{
		Type:   events.EvSay,
		Source: name,
		Text:   fmt.Sprintf("%s says, \"%s\"", name, text),
	}, s.ID)
}

func cmdShout(g *Game, s *Session, args []string) {
	text := strings.Join(args, " ")
	if text == "" {
		s.Send("Shout what?")
		return
	}
	name := s.Name()
	s.Sendf("You shout, \"%s\"", text)
	g.Sessions.BroadcastToAuthenticated(events.Event{
		Type:   events.EvShout,
		Source: name,
		Text:   fmt.Sprintf("%s shouts, \"%s\"", name, text),
	}, s.ID)
}

func cmdWho(g *Game, s *Session, _ []string) {
	sessions := g.Sessions.AuthenticatedSessions()
	if len(sessions) == 0 {
		s.Send("Nobody is connected.")
		return
	}
	now := time.Now()
	s.Sendf("%-20s %-10s %s", "Name", "On For", "Idle")
	for _, p := range sessions {
		s.Sendf("%-20s %-10s %s", p.Name(),
			FormatConnTime(now.Sub(p.ConnTime)),
			FormatIdleTime(now.Sub(p.LastCmd())))
	}
	s.Sendf("%d player(s) connected.", len(sessions))
}

func cmdHelp(g *Game, s *Session, _ []string) {
	cmds := g.Dispatch.Commands()
	names := make([]string, 0, len(cmds))
	for name, cmd := range cmds {
		if cmd.Help != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	s.Send("Commands:")
	for _, name := range names {
		s.Send("  " + cmds[name].Help)
	}
	s.Send("Directions (also as commands): " + strings.Join(world.Directions(), ", "))
}

func cmdQuit(g *Game, s *Session, _ []string) {
	s.Send("Goodbye!")
	s.Close()
}

// renderRoom shows the session's current room: name, description, other
// occupants, and open exits. Handlers that need a room view (look, the
// tail of a move, the post-login welcome) call this directly rather than
// re-entering the dispatcher.
func renderRoom(g *Game, s *Session) {
	room := g.World.Room(s.Room())
	if room == nil {
		s.Send("You are nowhere at all.")
		return
	}
	s.Send(room.Name)
	if room.Description != "" {
		s.Send(room.Description)
	}
	if others := occupantNames(g, s); len(others) > 0 {
		s.Sendf("Also here: %s.", strings.Join(others, ", "))
	}
	exits := g.World.OpenExits(room.ID)
	if len(exits) == 0 {
		s.Send("There are no obvious exits.")
		return
	}
	dirs := make([]string, len(exits))
	for i, e := range exits {
		dirs[i] = e.Direction
	}
	s.Send("Obvious exits: " + strings.Join(dirs, ", "))
}

// occupantNames lists the other players in the session's room, sorted.
func occupantNames(g *Game, s *Session) []string {
	var names []string
	for _, other := range g.Sessions.SessionsInRoom(s.Room()) {
		if other.ID != s.ID {
			names = append(names, other.Name())
		}
	}
	return names
}
