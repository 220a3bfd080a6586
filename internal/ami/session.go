package ami

import (
	"errors"
	"fmt"
	"strings"

	"github.com/acme/predictive-dialer/internal/config"
)

var (
	// ErrBannerMismatch indicates the peer greeting did not identify an
	// Asterisk manager; treated as a failed connect.
	ErrBannerMismatch = errors.New("ami: server banner is not an Asterisk Call Manager")
	// ErrLoginFailed indicates rejected credentials.
	ErrLoginFailed = errors.New("ami: login rejected")
	// ErrNotAuthenticated indicates a command was issued before Login
	// succeeded on this session.
	ErrNotAuthenticated = errors.New("ami: session not authenticated")
)

// bannerPrefix is the greeting substring that identifies a manager port.
const bannerPrefix = "Asterisk Call Manager"

// wire is the transport surface the session depends on. Narrowed to an
// interface so the handshake and command flow are testable without a socket.
type wire interface {
	ReadLine() (string, error)
	ReadMessage() ([]string, error)
	WriteString(s string) error
	Close() error
}

// Session is one authenticated command/response conversation with the
// manager. It moves Disconnected -> Connected -> Authenticated and never
// back: any failure means the caller builds a fresh session. Events are
// switched off at login; this client is strictly command/response.
type Session struct {
	transport     wire
	authenticated bool
	closed        bool
}

// Connect opens the transport and validates the manager banner. On a banner
// mismatch the socket is closed and no session is returned.
func Connect(cfg config.AMIConfig) (*Session, error) {
	transport, err := DialTransport(cfg.Host, cfg.Port, cfg.ConnectTimeout, cfg.ReadTimeout)
	if err != nil {
		return nil, err
	}
	return handshake(transport)
}

func handshake(transport wire) (*Session, error) {
	banner, err := transport.ReadLine()
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("ami: read banner: %w", err)
	}
	if !strings.Contains(banner, bannerPrefix) {
		_ = transport.Close()
		return nil, fmt.Errorf("%w: got %q", ErrBannerMismatch, banner)
	}
	return &Session{transport: transport}, nil
}

// Login authenticates the session. Events are disabled so the read side
// only ever sees direct responses to commands we send.
func (s *Session) Login(username, secret string) error {
	action := NewAction("Login").
		Add("Username", username).
		Add("Secret", secret).
		Add("Events", "off")

	resp, err := s.roundTrip(action)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		if msg := resp.Get("Message"); msg != "" {
			return fmt.Errorf("%w: %s", ErrLoginFailed, msg)
		}
		return ErrLoginFailed
	}
	s.authenticated = true
	return nil
}

// Send issues one action and reads its single response message.
func (s *Session) Send(action *Action) (Response, error) {
	if !s.authenticated {
		return Response{}, ErrNotAuthenticated
	}
	return s.roundTrip(action)
}

// SendList issues an EventList-style action (CoreShowChannels and friends):
// the acknowledgment is followed by one event per list member and a named
// completion event. A list that never completes surfaces as a read error
// rather than a silently short result.
func (s *Session) SendList(action *Action, completeEvent string) (Response, []Response, error) {
	if !s.authenticated {
		return Response{}, nil, ErrNotAuthenticated
	}

	ack, err := s.roundTrip(action)
	if err != nil {
		return Response{}, nil, err
	}
	if !ack.IsSuccess() {
		return ack, nil, nil
	}

	var events []Response
	for {
		lines, err := s.transport.ReadMessage()
		if err != nil {
			return ack, events, fmt.Errorf("ami: read %s list: %w", action.Name(), err)
		}
		msg := parseMessage(lines)
		if msg.EventName() == completeEvent {
			return ack, events, nil
		}
		events = append(events, msg)
	}
}

// Logoff sends Action: Logoff if the session is authenticated. Calling it
// on an unauthenticated or already logged-out session is a no-op.
func (s *Session) Logoff() error {
	if !s.authenticated || s.closed {
		return nil
	}
	s.authenticated = false
	if err := s.transport.WriteString(NewAction("Logoff").Serialize()); err != nil {
		return err
	}
	// The goodbye message is read and discarded; a peer that hangs up
	// first is not an error at this point.
	_, _ = s.transport.ReadMessage()
	return nil
}

// Disconnect logs off best-effort and closes the transport. Idempotent: a
// second call neither errors nor sends a second Logoff.
func (s *Session) Disconnect() error {
	if s.closed {
		return nil
	}
	_ = s.Logoff()
	s.closed = true
	return s.transport.Close()
}

// Authenticated reports whether Login has succeeded on this session.
func (s *Session) Authenticated() bool {
	return s.authenticated && !s.closed
}

func (s *Session) roundTrip(action *Action) (Response, error) {
	if s.closed {
		return Response{}, fmt.Errorf("%w: session closed", ErrConnection)
	}
	if err := s.transport.WriteString(action.Serialize()); err != nil {
		return Response{}, fmt.Errorf("ami: send %s: %w", action.Name(), err)
	}
	lines, err := s.transport.ReadMessage()
	if err != nil {
		return Response{}, fmt.Errorf("ami: response to %s: %w", action.Name(), err)
	}
	return parseMessage(lines), nil
}
