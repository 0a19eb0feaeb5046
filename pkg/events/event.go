// Package events carries structured game events from command handlers to
// connected clients. The session manager resolves recipients; the bus only
// fans out. Subscribers other than sessions (log taps, metrics) can attach
// globally.
package events

// EventType classifies events for subscribers that care about more than text.
type EventType int

const (
	EvText       EventType = iota // Plain text line
	EvSay                         // Room speech
	EvShout                       // Game-wide speech
	EvMove                        // Arrive/depart announcement
	EvConnect                     // Player joined the game
	EvDisconnect                  // Player left the game
	EvRoom                        // Room rendering
	EvSystem                      // Server notices (timeouts, shutdown)
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EvText:
		return "text"
	case EvSay:
		return "say"
	case EvShout:
		return "shout"
	case EvMove:
		return "move"
	case EvConnect:
		return "connect"
	case EvDisconnect:
		return "disconnect"
	case EvRoom:
		return "room"
	case EvSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Event is one delivery unit. Text is what a line-oriented client sees;
// Source and Room give global subscribers enough context to log or count.
type Event struct {
	Type    EventType
	Session string // Recipient session ID ("" until routed)
	Source  string // Display name of the originator, if any
	Room    string // Room context, if any
	Text    string
}
