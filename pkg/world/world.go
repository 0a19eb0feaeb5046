// Package world holds the room graph: rooms, named exits between them,
// and the direction vocabulary used by movement commands.
package world

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Room is a single location in the world.
type Room struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Exit is a directed, named connection from one room to another.
type Exit struct {
	From      string
	To        string
	Direction string
}

// shortcuts maps one- and two-letter direction tokens to full words.
var shortcuts = map[string]string{
	"n":  "north",
	"s":  "south",
	"e":  "east",
	"w":  "west",
	"ne": "northeast",
	"nw": "northwest",
	"se": "southeast",
	"sw": "southwest",
	"u":  "up",
	"d":  "down",
}

// opposites maps each canonical direction to the direction a watcher in the
// destination room would see the mover arrive from.
var opposites = map[string]string{
	"north":     "south",
	"south":     "north",
	"east":      "west",
	"west":      "east",
	"northeast": "southwest",
	"southwest": "northeast",
	"northwest": "southeast",
	"southeast": "northwest",
	"up":        "below",
	"down":      "above",
}

// Normalize lower-cases a direction token and expands shortcut forms.
// Unrecognized tokens pass through lowercased; they simply won't match
// any exit. Normalizing an already-canonical direction is a no-op.
func Normalize(token string) string {
	lower := strings.ToLower(strings.TrimSpace(token))
	if full, ok := shortcuts[lower]; ok {
		return full
	}
	return lower
}

// Opposite returns the arrival-side label for a canonical direction,
// or "" if the direction has no defined opposite.
func Opposite(direction string) string {
	return opposites[direction]
}

// Directions returns all canonical direction names, sorted.
func Directions() []string {
	out := make([]string, 0, len(opposites))
	for d := range opposites {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Shortcuts returns the shortcut table (token -> canonical direction).
func Shortcuts() map[string]string {
	out := make(map[string]string, len(shortcuts))
	for k, v := range shortcuts {
		out[k] = v
	}
	return out
}

// World is the directed room graph. It is populated once at boot and
// read-only afterwards, so no locking is required.
type World struct {
	rooms map[string]*Room
	exits map[string]map[string]string // room -> direction -> destination
}

// New creates an empty world.
func New() *World {
	return &World{
		rooms: make(map[string]*Room),
		exits: make(map[string]map[string]string),
	}
}

// AddRoom registers a room. Re-adding an existing ID replaces it.
func (w *World) AddRoom(r *Room) {
	w.rooms[r.ID] = r
}

// AddExit registers a one-way exit. At most one exit may exist per
// (room, direction) pair; a second registration is an error.
func (w *World) AddExit(from, direction, to string) error {
	direction = Normalize(direction)
	if _, ok := w.rooms[from]; !ok {
		return fmt.Errorf("world: exit %s from unknown room %q", direction, from)
	}
	if _, ok := w.rooms[to]; !ok {
		return fmt.Errorf("world: exit %s from %q to unknown room %q", direction, from, to)
	}
	if w.exits[from] == nil {
		w.exits[from] = make(map[string]string)
	}
	if _, dup := w.exits[from][direction]; dup {
		return fmt.Errorf("world: duplicate exit %s from room %q", direction, from)
	}
	w.exits[from][direction] = to
	return nil
}

// Room returns the room with the given ID, or nil.
func (w *World) Room(id string) *Room {
	return w.rooms[id]
}

// FindExit resolves a room + direction pair to a destination room ID.
// The direction is normalized before lookup.
func (w *World) FindExit(roomID, direction string) (string, bool) {
	dest, ok := w.exits[roomID][Normalize(direction)]
	return dest, ok
}

// OpenExits lists the exits leading out of a room, sorted by direction.
func (w *World) OpenExits(roomID string) []Exit {
	dirs := w.exits[roomID]
	out := make([]Exit, 0, len(dirs))
	for dir, dest := range dirs {
		out = append(out, Exit{From: roomID, To: dest, Direction: dir})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Direction < out[j].Direction })
	return out
}

// Rooms returns all rooms, sorted by ID.
func (w *World) Rooms() []*Room {
	out := make([]*Room, 0, len(w.rooms))
	for _, r := range w.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Size returns the number of rooms.
func (w *World) Size() int {
	return len(w.rooms)
}

// worldFile is the YAML on-disk shape of a world definition.
type worldFile struct {
	Rooms []struct {
		Room  `yaml:",inline"`
		Exits map[string]string `yaml:"exits"` // direction -> destination room ID
	} `yaml:"rooms"`
}

// LoadFile parses a YAML world file into a World. All rooms are created
// before exits so exits may reference rooms defined later in the file.
func LoadFile(path string) (*World, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("world: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a World from YAML bytes.
func Parse(data []byte) (*World, error) {
	var wf worldFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("world: parse: %w", err)
	}

	w := New()
	for i := range wf.Rooms {
		r := wf.Rooms[i].Room
		if r.ID == "" {
			return nil, fmt.Errorf("world: room %d has no id", i)
		}
		w.AddRoom(&Room{ID: r.ID, Name: r.Name, Description: r.Description})
	}
	for i := range wf.Rooms {
		from := wf.Rooms[i].ID
		for dir, dest := range wf.Rooms[i].Exits {
			if err := w.AddExit(from, dir, dest); err != nil {
				return nil, err
			}
		}
	}
	return w, nil
}
