package server

import (
	"strings"
	"testing"

	"github.com/emberfall-mud/emberfall/pkg/events"
)

// assertPresence checks that a session appears in exactly the given room's
// presence set and nowhere else.
func assertPresence(t *testing.T, m *SessionManager, s *Session, room string) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for r, set := range m.presence {
		_, in := set[s.ID]
		if r == room && !in {
			t.Errorf("session %s missing from presence[%s]", s.Name(), room)
		}
		if r != room && in {
			t.Errorf("session %s unexpectedly present in %s", s.Name(), r)
		}
	}
	if room != "" && m.presence[room] == nil {
		t.Errorf("presence[%s] is empty, want %s in it", room, s.Name())
	}
}

func TestAuthenticateBindsIdentityAndPresence(t *testing.T) {
	g := newTestGame(t)
	alice := authTestSession(t, g, "alice")

	if alice.State() != StateAuthenticated {
		t.Fatalf("state = %v, want authenticated", alice.State())
	}
	if alice.Room() != "square" {
		t.Errorf("room = %q, want square", alice.Room())
	}
	if got := g.Sessions.GetByName("ALICE"); got != alice {
		t.Error("GetByName is not case-insensitive")
	}
	if got := g.Sessions.GetByAccount(alice.AccountID()); got != alice {
		t.Error("GetByAccount did not return the session")
	}
	assertPresence(t, g.Sessions, alice, "square")
}

func TestAuthenticateRefusesSecondSessionForAccount(t *testing.T) {
	g := newTestGame(t)
	alice := authTestSession(t, g, "alice")

	second := newTestSession(t, g)
	err := g.Sessions.Authenticate(second, alice.AccountID(), "alice", "square")
	if err != ErrAccountInUse {
		t.Fatalf("err = %v, want ErrAccountInUse", err)
	}
	if second.State() != StateConnected {
		t.Errorf("refused session state = %v, want connected", second.State())
	}
	if alice.State() != StateAuthenticated {
		t.Error("existing session was disturbed by the refused login")
	}
	if g.Sessions.AuthenticatedCount() != 1 {
		t.Errorf("AuthenticatedCount = %d, want 1", g.Sessions.AuthenticatedCount())
	}
}

func TestMoveIsAtomicInPresence(t *testing.T) {
	g := newTestGame(t)
	alice := authTestSession(t, g, "alice")

	g.Sessions.Move(alice, "market")
	if alice.Room() != "market" {
		t.Errorf("room = %q, want market", alice.Room())
	}
	assertPresence(t, g.Sessions, alice, "market")

	if got := g.Sessions.SessionsInRoom("square"); len(got) != 0 {
		t.Errorf("square still has %d sessions after move", len(got))
	}
	if got := g.Sessions.SessionsInRoom("market"); len(got) != 1 || got[0] != alice {
		t.Errorf("market sessions = %v, want [alice]", got)
	}
}

func TestRemoveClearsEveryIndex(t *testing.T) {
	g := newTestGame(t)
	alice := authTestSession(t, g, "alice")
	acct := alice.AccountID()

	name, room, wasAuth, found := g.Sessions.Remove(alice.ID)
	if !found || !wasAuth || name != "alice" || room != "square" {
		t.Fatalf("Remove = (%q, %q, %v, %v), want (alice, square, true, true)", name, room, wasAuth, found)
	}
	if alice.State() != StateDisconnected {
		t.Errorf("state = %v after Remove, want disconnected", alice.State())
	}
	if g.Sessions.GetByAccount(acct) != nil || g.Sessions.GetByName("alice") != nil {
		t.Error("identity indexes still reference the removed session")
	}
	if got := g.Sessions.SessionsInRoom("square"); len(got) != 0 {
		t.Error("presence still references the removed session")
	}

	// The account is free again for a fresh session.
	fresh := newTestSession(t, g)
	if err := g.Sessions.Authenticate(fresh, acct, "alice", "square"); err != nil {
		t.Fatalf("re-authenticate after Remove: %v", err)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	g := newTestGame(t)
	alice := authTestSession(t, g, "alice")

	if _, _, _, found := g.Sessions.Remove(alice.ID); !found {
		t.Fatal("first Remove reported found=false")
	}
	if _, _, _, found := g.Sessions.Remove(alice.ID); found {
		t.Fatal("second Remove reported found=true")
	}
}

func TestBroadcastToRoomExcludesSourceAndOtherRooms(t *testing.T) {
	g := newTestGame(t)
	alice := authTestSession(t, g, "alice")
	bob := authTestSession(t, g, "bob")
	carol := authTestSession(t, g, "carol")
	g.Sessions.Move(carol, "market")
	for _, s := range []*Session{alice, bob, carol} {
		clearOutput(s)
	}

	g.Sessions.BroadcastToRoom("square", events.Event{Type: events.EvText, Text: "ping"}, alice.ID)

	if out := getOutput(alice); out != "" {
		t.Errorf("excluded source received %q", out)
	}
	wantContains(t, bob, "ping")
	if out := getOutput(carol); out != "" {
		t.Errorf("session in another room received %q", out)
	}
}

func TestBroadcastOrderPreserved(t *testing.T) {
	g := newTestGame(t)
	_ = authTestSession(t, g, "alice")
	bob := authTestSession(t, g, "bob")
	clearOutput(bob)

	g.Sessions.BroadcastToRoom("square", events.Event{Type: events.EvText, Text: "first"}, "")
	g.Sessions.BroadcastToRoom("square", events.Event{Type: events.EvText, Text: "second"}, "")

	out := getOutput(bob)
	i, j := strings.Index(out, "first"), strings.Index(out, "second")
	if i < 0 || j < 0 || i > j {
		t.Errorf("broadcasts out of order: %q", out)
	}
}

func TestBroadcastAllReachesUnauthenticated(t *testing.T) {
	g := newTestGame(t)
	_ = authTestSession(t, g, "alice")
	guest := newTestSession(t, g)
	clearOutput(guest)

	g.Sessions.BroadcastAll(events.Event{Type: events.EvSystem, Text: "maintenance soon"}, "")
	wantContains(t, guest, "maintenance soon")

	clearOutput(guest)
	g.Sessions.BroadcastToAuthenticated(events.Event{Type: events.EvShout, Text: "players only"}, "")
	if out := getOutput(guest); out != "" {
		t.Errorf("unauthenticated session received authenticated broadcast %q", out)
	}
}
