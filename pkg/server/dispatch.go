package server

import (
	"fmt"
	"log"
	"runtime/debug"
	"strings"
)

// HandlerFunc is the signature for command implementations. args holds
// the whitespace-split tokens after the command name, case preserved.
type HandlerFunc func(g *Game, s *Session, args []string)

// Command is one registered command.
type Command struct {
	Name     string
	Handler  HandlerFunc
	AuthOnly bool   // refused with a login hint before authentication
	Help     string // one-line usage shown by "help"
}

// Dispatcher is a per-server command registry with an alias table.
// It holds no lock of its own: registration happens once at construction,
// and Dispatch touches only per-session state.
type Dispatcher struct {
	game     *Game
	commands map[string]*Command
	aliases  map[string]string
}

// NewDispatcher creates an empty dispatcher bound to a game.
func NewDispatcher(g *Game) *Dispatcher {
	return &Dispatcher{
		game:     g,
		commands: make(map[string]*Command),
		aliases:  make(map[string]string),
	}
}

// Register adds a command under its lower-cased name.
func (d *Dispatcher) Register(cmd *Command) {
	d.commands[strings.ToLower(cmd.Name)] = cmd
}

// Alias maps an alternate name onto a registered command. Aliasing an
// unregistered target is a programming error, so it panics at startup
// rather than surfacing at dispatch time.
func (d *Dispatcher) Alias(alias, target string) {
	target = strings.ToLower(target)
	if _, ok := d.commands[target]; !ok {
		panic(fmt.Sprintf("dispatcher: alias %q targets unregistered command %q", alias, target))
	}
	d.aliases[strings.ToLower(alias)] = target
}

// Commands returns the registered commands keyed by canonical name.
func (d *Dispatcher) Commands() map[string]*Command {
	return d.commands
}

// Dispatch parses one input line and runs the matching handler. Runs of
// whitespace collapse to single separators; an empty line is ignored. A
// panicking handler is contained here: the session gets one generic line
// and stays connected.
func (d *Dispatcher) Dispatch(s *Session, rawLine string) {
	fields := strings.Fields(rawLine)
	if len(fields) == 0 {
		return
	}

	token := fields[0]
	name := strings.ToLower(token)
	if target, ok := d.aliases[name]; ok {
		name = target
	}

	cmd, ok := d.commands[name]
	if !ok {
		s.Sendf("Huh? Unknown command %q. (Type \"help\" for help.)", token)
		return
	}
	if cmd.AuthOnly && s.State() != StateAuthenticated {
		s.Send("You must log in first. (Type \"login\" or \"signup\".)")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[%s] PANIC in command %q: %v\n%s", s.ID, cmd.Name, r, debug.Stack())
			s.Send("Something went wrong running that command.")
		}
	}()

	if d.game != nil && d.game.Metrics != nil {
		d.game.Metrics.commandsTotal.Inc()
	}
	cmd.Handler(d.game, s, fields[1:])
}
