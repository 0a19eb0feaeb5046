package server

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emberfall-mud/emberfall/pkg/events"
)

// SessionState tracks the lifecycle of a connection.
type SessionState int

const (
	StateConnected      SessionState = iota // Accepted, not yet in an auth flow
	StateAuthenticating                     // Mid signup/login flow
	StateAuthenticated                      // Bound to an account, present in a room
	StateDisconnected                       // Terminal
)

// String returns a human-readable name for the state.
func (st SessionState) String() string {
	switch st {
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// maxLineLen bounds a single input line. Anything longer is truncated
// and the overflow discarded.
const maxLineLen = 4096

// lineReader frames a byte stream into text lines. It tolerates CRLF and
// bare LF, strips telnet IAC sequences and control bytes, and skips blank
// lines entirely.
type lineReader struct {
	r *bufio.Reader
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, maxLineLen)}
}

// ReadLine returns the next non-blank line without its terminator. A final
// unterminated line before EOF is returned first; the EOF surfaces on the
// following call.
func (lr *lineReader) ReadLine() (string, error) {
	for {
		raw, err := lr.r.ReadSlice('\n')
		line := string(raw)
		if err == bufio.ErrBufferFull {
			// Keep the first bufferful, throw away the rest of the line.
			for err == bufio.ErrBufferFull {
				_, err = lr.r.ReadSlice('\n')
			}
			if err == io.EOF {
				err = nil
			}
		}

		line = stripTelnet(strings.TrimRight(line, "\r\n"))
		if strings.TrimSpace(line) == "" {
			if err != nil {
				return "", err
			}
			continue
		}
		if err == io.EOF {
			err = nil
		}
		return line, err
	}
}

// stripTelnet removes telnet IAC command sequences and stray control bytes.
func stripTelnet(s string) string {
	var buf strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == 0xFF && i+2 < len(s) {
			i += 3 // IAC + command + option
			continue
		}
		if s[i] == 0xFF && i+1 < len(s) {
			i += 2
			continue
		}
		if s[i] < 32 && s[i] != '\t' {
			i++
			continue
		}
		buf.WriteByte(s[i])
		i++
	}
	return buf.String()
}

// Session is the live, stateful representation of one connected client.
// It implements events.Subscriber so the session manager's broadcasts
// reach it through the bus.
type Session struct {
	ID       string
	Conn     net.Conn
	Addr     string
	ConnTime time.Time

	reader *lineReader

	// Armed by the server/auth controller; callbacks re-check state, so a
	// stale fire against a session that already moved on is harmless.
	idleTimer *time.Timer
	authTimer *time.Timer

	mu        sync.Mutex
	state     SessionState
	accountID string
	name      string
	room      string
	lastCmd   time.Time
	closed    bool
	bytesSent int
}

// NewSession wraps a net.Conn into a Session in StateConnected.
func NewSession(conn net.Conn) *Session {
	now := time.Now()
	return &Session{
		ID:       uuid.NewString(),
		Conn:     conn,
		Addr:     conn.RemoteAddr().String(),
		ConnTime: now,
		reader:   newLineReader(conn),
		state:    StateConnected,
		lastCmd:  now,
	}
}

// ReadLine blocks for the next input line.
func (s *Session) ReadLine() (string, error) {
	return s.reader.ReadLine()
}

// Send writes a line to the client, appending \r\n if missing.
// Writes after Close are silently dropped.
func (s *Session) Send(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if !strings.HasSuffix(msg, "\n") {
		msg += "\r\n"
	}
	s.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	n, _ := s.Conn.Write([]byte(msg))
	s.bytesSent += n
}

// Sendf is Send with formatting.
func (s *Session) Sendf(format string, args ...any) {
	s.Send(fmt.Sprintf(format, args...))
}

// SendNoNewline writes a string without appending a terminator (banners).
func (s *Session) SendNoNewline(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	n, _ := s.Conn.Write([]byte(msg))
	s.bytesSent += n
}

// Close shuts down the connection and stops the session's timers. Safe to
// call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()
	if already {
		return
	}
	s.StopTimers()
	s.Conn.Close()
}

// IsClosed reports whether the connection has been closed.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Receive implements events.Subscriber.
func (s *Session) Receive(ev events.Event) {
	if ev.Text != "" {
		s.Send(ev.Text)
	}
}

// Closed implements events.Subscriber.
func (s *Session) Closed() bool {
	return s.IsClosed()
}

var _ events.Subscriber = (*Session)(nil)

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState transitions the lifecycle state.
func (s *Session) SetState(st SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// AccountID returns the bound account ID ("" before authentication).
func (s *Session) AccountID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountID
}

// Name returns the display name ("" before authentication).
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Room returns the current room ID ("" before authentication).
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Touch records input activity and resets the idle timer.
func (s *Session) Touch(idleTimeout time.Duration) {
	s.mu.Lock()
	s.lastCmd = time.Now()
	t := s.idleTimer
	s.mu.Unlock()
	if t != nil && idleTimeout > 0 {
		t.Reset(idleTimeout)
	}
}

// LastCmd returns the time of the last received line.
func (s *Session) LastCmd() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCmd
}

// ArmIdleTimer installs the idle-disconnect timer.
func (s *Session) ArmIdleTimer(d time.Duration, onFire func()) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idleTimer = time.AfterFunc(d, onFire)
}

// ArmAuthTimer installs the authentication-flow timer, replacing any
// previous one.
func (s *Session) ArmAuthTimer(d time.Duration, onFire func()) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	if s.authTimer != nil {
		s.authTimer.Stop()
	}
	s.authTimer = time.AfterFunc(d, onFire)
	s.mu.Unlock()
}

// StopAuthTimer clears the authentication-flow timer.
func (s *Session) StopAuthTimer() {
	s.mu.Lock()
	t := s.authTimer
	s.authTimer = nil
	s.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

// StopTimers clears both timers.
func (s *Session) StopTimers() {
	s.mu.Lock()
	it, at := s.idleTimer, s.authTimer
	s.idleTimer, s.authTimer = nil, nil
	s.mu.Unlock()
	if it != nil {
		it.Stop()
	}
	if at != nil {
		at.Stop()
	}
}

// promote binds the session to an account. Called only by the session
// manager inside its own critical section.
func (s *Session) promote(accountID, name, room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateAuthenticated
	s.accountID = accountID
	s.name = name
	s.room = room
}

// setRoom updates the current room. Called only by the session manager.
func (s *Session) setRoom(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = room
}

// FormatIdleTime formats a duration as a compact idle time.
func FormatIdleTime(d time.Duration) string {
	secs := int(d.Seconds())
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%dh", secs/3600)
	default:
		return fmt.Sprintf("%dd", secs/86400)
	}
}

// FormatConnTime formats a duration as hours:minutes connection time.
func FormatConnTime(d time.Duration) string {
	secs := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", secs/3600, (secs%3600)/60)
}
