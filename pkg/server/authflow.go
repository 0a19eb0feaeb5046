package server

import (
	"errors"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/emberfall-mud/emberfall/pkg/events"
	"github.com/emberfall-mud/emberfall/pkg/store"
)

type flowKind int

const (
	flowSignup flowKind = iota
	flowLogin
)

type flowStep int

const (
	stepUsername flowStep = iota
	stepPassword
	stepConfirm
)

// promptRetries is how many invalid answers a single flow step tolerates
// before the whole flow is abandoned.
const promptRetries = 3

// pendingFlow is the transient multi-step input state for one session's
// signup or login. It exists only while the session is authenticating and
// is destroyed on completion, success or not.
type pendingFlow struct {
	kind     flowKind
	step     flowStep
	username string
	password string
	retries  int
}

// rateRecord tracks consecutive failed logins for one session.
type rateRecord struct {
	failures int
	last     time.Time
}

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

const (
	msgServiceDown    = "Account service is unavailable. Please try again later."
	msgBadCredentials = "Invalid username or password."
	msgFlowExpired    = "Your login session expired. Please start over."
)

// AuthController owns all signup/login flow state and the failed-login
// rate limiter. It is an explicit per-server instance; nothing here is
// package-level, so flow state cannot leak across servers or test runs.
type AuthController struct {
	game *Game

	mu    sync.Mutex
	flows map[string]*pendingFlow // session ID -> flow
	rate  map[string]*rateRecord  // session ID -> failures
}

// NewAuthController creates a controller bound to a game.
func NewAuthController(g *Game) *AuthController {
	return &AuthController{
		game:  g,
		flows: make(map[string]*pendingFlow),
		rate:  make(map[string]*rateRecord),
	}
}

// BeginSignup starts the account-creation flow for a session.
func (a *AuthController) BeginSignup(s *Session) {
	if s.State() == StateAuthenticated {
		s.Send("You are already logged in.")
		return
	}
	a.startFlow(s, flowSignup)
	s.Send("Choose a character name (3-20 letters, digits, or underscores):")
}

// BeginLogin starts the login flow for a session. A rate-limited session
// is refused before any input is collected.
func (a *AuthController) BeginLogin(s *Session) {
	if s.State() == StateAuthenticated {
		s.Send("You are already logged in.")
		return
	}
	if wait, limited := a.limited(s.ID); limited {
		s.Sendf("Too many failed logins. Try again in %d seconds.", int(wait.Seconds())+1)
		return
	}
	a.startFlow(s, flowLogin)
	s.Send("Character name:")
}

func (a *AuthController) startFlow(s *Session, kind flowKind) {
	a.mu.Lock()
	a.flows[s.ID] = &pendingFlow{kind: kind, step: stepUsername, retries: promptRetries}
	a.mu.Unlock()

	s.SetState(StateAuthenticating)
	s.ArmAuthTimer(a.game.Conf.AuthTimeoutDur(), func() { a.expire(s) })
}

// expire fires when an auth flow outlives the configured timeout.
func (a *AuthController) expire(s *Session) {
	a.mu.Lock()
	_, had := a.flows[s.ID]
	delete(a.flows, s.ID)
	a.mu.Unlock()
	if !had {
		return
	}
	if s.State() == StateAuthenticating {
		s.Send("Login timed out. Please start over.")
		s.SetState(StateConnected)
	}
}

// Forget drops any flow and rate state for a session. Called on disconnect.
func (a *AuthController) Forget(sessionID string) {
	a.mu.Lock()
	delete(a.flows, sessionID)
	delete(a.rate, sessionID)
	a.mu.Unlock()
}

// HandleLine consumes one input line from a session in StateAuthenticating.
// A session in that state with no pending flow (for example after flow
// state was lost) is told to start over rather than left hanging.
func (a *AuthController) HandleLine(s *Session, line string) {
	line = strings.TrimSpace(line)

	a.mu.Lock()
	flow, ok := a.flows[s.ID]
	a.mu.Unlock()
	if !ok {
		s.Send(msgFlowExpired)
		s.SetState(StateConnected)
		return
	}

	if flow.kind == flowSignup {
		a.handleSignupLine(s, flow, line)
	} else {
		a.handleLoginLine(s, flow, line)
	}
}

func (a *AuthController) handleSignupLine(s *Session, flow *pendingFlow, line string) {
	switch flow.step {
	case stepUsername:
		if !usernameRe.MatchString(line) {
			a.reprompt(s, flow, "Names are 3-20 characters: letters, digits, and underscores. Try again:")
			return
		}
		flow.username = line
		flow.step = stepPassword
		flow.retries = promptRetries
		s.Send("Choose a password (at least 8 characters, with an upper-case letter, a lower-case letter, and a digit):")

	case stepPassword:
		if msg, ok := checkPasswordShape(line); !ok {
			a.reprompt(s, flow, msg+" Try again:")
			return
		}
		flow.password = line
		flow.step = stepConfirm
		s.Send("Confirm password:")

	case stepConfirm:
		if line != flow.password {
			// Back to the password step, not the username step.
			flow.password = ""
			flow.step = stepPassword
			a.reprompt(s, flow, "Passwords do not match. Choose a password:")
			return
		}
		a.completeSignup(s, flow)
	}
}

func (a *AuthController) completeSignup(s *Session, flow *pendingFlow) {
	a.endFlow(s)

	acct, err := a.game.Store.CreateAccount(flow.username, flow.password)
	switch {
	case errors.Is(err, store.ErrDuplicateName):
		s.Send("That name is already taken.")
		s.SetState(StateConnected)
		return
	case err != nil:
		log.Printf("[%s] signup for %q failed: %v", s.ID, flow.username, err)
		s.Send(msgServiceDown)
		s.SetState(StateConnected)
		return
	}

	room := a.game.Conf.StartRoom
	if err := a.game.Sessions.Authenticate(s, acct.ID, acct.Name, room); err != nil {
		log.Printf("[%s] promote after signup failed: %v", s.ID, err)
		s.Send(msgServiceDown)
		s.SetState(StateConnected)
		return
	}

	// Best effort; the account record is the durable home of the room.
	if err := a.game.Store.SetRoom(acct.ID, room); err != nil {
		log.Printf("[%s] save start room for %s: %v", s.ID, acct.Name, err)
	}

	log.Printf("[%s] new character %s created from %s", s.ID, acct.Name, s.Addr)
	s.Sendf("Welcome to %s, %s! Your character has been created.", a.game.Conf.MudName, acct.Name)
	a.game.announceJoin(s)
}

func (a *AuthController) handleLoginLine(s *Session, flow *pendingFlow, line string) {
	switch flow.step {
	case stepUsername:
		if line == "" {
			a.reprompt(s, flow, "Character name:")
			return
		}
		flow.username = line
		flow.step = stepPassword
		s.Send("Password:")

	case stepPassword:
		a.completeLogin(s, flow, line)
	}
}

func (a *AuthController) completeLogin(s *Session, flow *pendingFlow, password string) {
	a.endFlow(s)

	// Re-check the limiter at the moment of the credential check: the
	// threshold may have been crossed after this flow started.
	if wait, limited := a.limited(s.ID); limited {
		s.Sendf("Too many failed logins. Try again in %d seconds.", int(wait.Seconds())+1)
		s.SetState(StateConnected)
		return
	}

	acct, err := a.game.Store.VerifyCredential(flow.username, password)
	switch {
	case errors.Is(err, store.ErrInvalidCredentials):
		a.recordFailure(s.ID)
		if a.game.Metrics != nil {
			a.game.Metrics.authFailuresTotal.Inc()
		}
		s.Send(msgBadCredentials)
		s.SetState(StateConnected)
		return
	case err != nil:
		log.Printf("[%s] login for %q failed: %v", s.ID, flow.username, err)
		s.Send(msgServiceDown)
		s.SetState(StateConnected)
		return
	}

	room, err := a.game.Store.GetLastRoom(acct.ID)
	if err != nil {
		log.Printf("[%s] last room for %s: %v", s.ID, acct.Name, err)
		room = ""
	}
	if room == "" || a.game.World.Room(room) == nil {
		room = a.game.Conf.StartRoom
	}

	// The registry enforces one live session per account; the existing
	// session is refused company, never evicted.
	if err := a.game.Sessions.Authenticate(s, acct.ID, acct.Name, room); err != nil {
		if errors.Is(err, ErrAccountInUse) {
			s.Send("That character is already logged in elsewhere.")
		} else {
			log.Printf("[%s] promote after login failed: %v", s.ID, err)
			s.Send(msgServiceDown)
		}
		s.SetState(StateConnected)
		return
	}

	a.clearRate(s.ID)
	log.Printf("[%s] %s logged in from %s", s.ID, acct.Name, s.Addr)
	s.Sendf("Welcome back, %s!", acct.Name)
	a.game.announceJoin(s)
}

// endFlow destroys the pending flow and stops the auth timer. Every
// completion path runs through here before any side effects, so a replayed
// line after completion hits the no-pending-flow case instead of the flow.
func (a *AuthController) endFlow(s *Session) {
	a.mu.Lock()
	delete(a.flows, s.ID)
	a.mu.Unlock()
	s.StopAuthTimer()
}

// reprompt burns one retry on the current step; an exhausted step aborts
// the whole flow.
func (a *AuthController) reprompt(s *Session, flow *pendingFlow, msg string) {
	flow.retries--
	if flow.retries <= 0 {
		a.endFlow(s)
		s.Send("Too many invalid attempts. Start over when you are ready.")
		s.SetState(StateConnected)
		return
	}
	s.Send(msg)
}

// limited reports whether the session is inside the failed-login cooldown
// window, and how long remains.
func (a *AuthController) limited(sessionID string) (time.Duration, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.rate[sessionID]
	if !ok || rec.failures < a.game.Conf.LoginMaxAttempts {
		return 0, false
	}
	elapsed := time.Since(rec.last)
	cooldown := a.game.Conf.LoginCooldownDur()
	if elapsed >= cooldown {
		return 0, false
	}
	return cooldown - elapsed, true
}

func (a *AuthController) recordFailure(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.rate[sessionID]
	if !ok {
		rec = &rateRecord{}
		a.rate[sessionID] = rec
	}
	rec.failures++
	rec.last = time.Now()
}

func (a *AuthController) clearRate(sessionID string) {
	a.mu.Lock()
	delete(a.rate, sessionID)
	a.mu.Unlock()
}

// checkPasswordShape validates a candidate password, returning a
// user-facing reason when it fails.
func checkPasswordShape(pw string) (string, bool) {
	if len(pw) < 8 {
		return "Passwords need at least 8 characters.", false
	}
	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return "Passwords need an upper-case letter, a lower-case letter, and a digit.", false
	}
	return "", true
}

// announceJoin broadcasts a join notice to the session's room and shows
// the room to the newly arrived player.
func (g *Game) announceJoin(s *Session) {
	name, room := s.Name(), s.Room()
	g.Sessions.BroadcastToRoom(room, events.Event{
		Type:   events.EvConnect,
		Source: name,
		Text:   name + " has connected.",
	}, s.ID)
	if g.Conf.MOTD != "" {
		s.Send(g.Conf.MOTD)
	}
	renderRoom(g, s)
}
