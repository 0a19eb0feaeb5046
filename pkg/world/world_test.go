package world

import "testing"

func testWorld(t *testing.T) *World {
	t.Helper()
	w := New()
	w.AddRoom(&Room{ID: "square", Name: "Town Square"})
	w.AddRoom(&Room{ID: "market", Name: "Market Row"})
	w.AddRoom(&Room{ID: "cellar", Name: "Cellar"})
	for _, e := range []struct{ from, dir, to string }{
		{"square", "north", "market"},
		{"market", "south", "square"},
		{"square", "d", "cellar"},
		{"cellar", "up", "square"},
	} {
		if err := w.AddExit(e.from, e.dir, e.to); err != nil {
			t.Fatalf("AddExit(%s, %s, %s): %v", e.from, e.dir, e.to, err)
		}
	}
	return w
}

func TestNormalizeShortcuts(t *testing.T) {
	tests := []struct{ in, want string }{
		{"n", "north"},
		{"NE", "northeast"},
		{"u", "up"},
		{"d", "down"},
		{"North", "north"},
		{"  sw ", "southwest"},
		{"sideways", "sideways"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for token := range Shortcuts() {
		once := Normalize(token)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize(%q) = %q, but Normalize(%q) = %q", token, once, once, twice)
		}
	}
}

func TestOppositeRoundTrip(t *testing.T) {
	// Compass opposites invert; up/down map to the arrival-side labels.
	for _, d := range []string{"north", "south", "east", "west", "northeast", "southwest", "northwest", "southeast"} {
		if got := Opposite(Opposite(d)); got != d {
			t.Errorf("Opposite(Opposite(%q)) = %q", d, got)
		}
	}
	if Opposite("up") != "below" || Opposite("down") != "above" {
		t.Errorf("vertical opposites wrong: up=%q down=%q", Opposite("up"), Opposite("down"))
	}
	if Opposite("sideways") != "" {
		t.Errorf("expected no opposite for unknown direction")
	}
}

func TestFindExit(t *testing.T) {
	w := testWorld(t)

	dest, ok := w.FindExit("square", "n")
	if !ok || dest != "market" {
		t.Fatalf("FindExit(square, n) = %q, %v", dest, ok)
	}
	dest, ok = w.FindExit("square", "DOWN")
	if !ok || dest != "cellar" {
		t.Fatalf("FindExit(square, DOWN) = %q, %v", dest, ok)
	}
	if _, ok := w.FindExit("square", "west"); ok {
		t.Error("expected no west exit from square")
	}
	if _, ok := w.FindExit("nowhere", "north"); ok {
		t.Error("expected no exits from unknown room")
	}
}

func TestDuplicateExitRejected(t *testing.T) {
	w := testWorld(t)
	if err := w.AddExit("square", "n", "cellar"); err == nil {
		t.Error("expected duplicate (room, direction) exit to be rejected")
	}
}

func TestOpenExitsSorted(t *testing.T) {
	w := testWorld(t)
	exits := w.OpenExits("square")
	if len(exits) != 2 {
		t.Fatalf("expected 2 exits from square, got %d", len(exits))
	}
	if exits[0].Direction != "down" || exits[1].Direction != "north" {
		t.Errorf("exits not sorted by direction: %v", exits)
	}
}

func TestParseWorldFile(t *testing.T) {
	data := []byte(`
rooms:
  - id: gate
    name: City Gate
    description: A heavy iron gate.
    exits:
      e: yard
  - id: yard
    name: Courtyard
    exits:
      west: gate
`)
	w, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if w.Size() != 2 {
		t.Fatalf("expected 2 rooms, got %d", w.Size())
	}
	if w.Room("gate").Description != "A heavy iron gate." {
		t.Errorf("description not parsed: %q", w.Room("gate").Description)
	}
	// Shortcut directions in the file are normalized at load time.
	if dest, ok := w.FindExit("gate", "east"); !ok || dest != "yard" {
		t.Errorf("FindExit(gate, east) = %q, %v", dest, ok)
	}
}

func TestParseRejectsDanglingExit(t *testing.T) {
	_, err := Parse([]byte("rooms:\n  - id: a\n    exits:\n      north: missing\n"))
	if err == nil {
		t.Error("expected error for exit to unknown room")
	}
}
