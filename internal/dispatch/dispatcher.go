// Package dispatch implements the talk_to_ai contract: it validates tool
// calls, routes their messages to HUMAN or AI and owns the continue/stop
// state of every conversation session.
package dispatch

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"talkbot/internal/logger"
)

const (
	ReasonCompleted = "completed"
	ReasonTurnLimit = "turn limit"
	ReasonViolation = "too many schema violations"
	ReasonShutdown  = "shutdown"
	ReasonFailure   = "failure"
)

// Archiver receives the final state of every session that closes.
type Archiver interface {
	ArchiveSession(id string, opened time.Time, state ConversationState, reason string) error
}

// Outcome is the result of one accepted call. Routed is nil when routing was
// skipped for a continuation-only call.
type Outcome struct {
	Call   ToolCall
	Routed *RoutedMessage
	State  ConversationState
}

func (o Outcome) Skipped() bool {
	return o.Routed == nil
}

type session struct {
	mu     sync.Mutex
	state  ConversationState
	opened time.Time
}

// Dispatcher is an arena of sessions keyed by id. Calls for one session are
// serialized; different sessions never block each other past the map lookup.
type Dispatcher struct {
	mu       sync.RWMutex
	sessions map[string]*session
	archiver Archiver
	now      func() time.Time
}

type Option func(*Dispatcher)

func WithArchiver(a Archiver) Option {
	return func(d *Dispatcher) {
		d.archiver = a
	}
}

func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sessions: make(map[string]*session),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewSessionID returns a random id suitable for Open.
func NewSessionID() string {
	return uuid.NewString()
}

// Open starts a session in the INIT state. Ids are used exactly as given,
// so blank ids and ids with surrounding whitespace are rejected.
func (d *Dispatcher) Open(id string) (ConversationState, error) {
	if id == "" || strings.TrimSpace(id) != id {
		return ConversationState{}, ErrInvalidSessionID
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.sessions[id]; exists {
		return ConversationState{}, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	state := NewConversationState()
	d.sessions[id] = &session{state: state, opened: d.now()}
	logger.DispatchDebugf("Session %s opened", id)
	return state, nil
}

func (d *Dispatcher) lookup(id string) (*session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return s, nil
}

// Handle validates, routes and applies one decoded call for a session.
// On any error the session state is left untouched and returned as is.
func (d *Dispatcher) Handle(id string, raw map[string]interface{}) (Outcome, error) {
	return d.handle(id, func() (ToolCall, error) {
		return Validate(raw)
	})
}

// HandleJSON is Handle for raw tool arguments as emitted by a model.
func (d *Dispatcher) HandleJSON(id string, data []byte) (Outcome, error) {
	return d.handle(id, func() (ToolCall, error) {
		return ValidateJSON(data)
	})
}

func (d *Dispatcher) handle(id string, validate func() (ToolCall, error)) (Outcome, error) {
	s, err := d.lookup(id)
	if err != nil {
		return Outcome{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Active {
		logger.DispatchDebugf("Session %s: call rejected, session is closed", id)
		return Outcome{State: s.state}, fmt.Errorf("%w: %s", ErrSessionClosed, id)
	}

	call, err := validate()
	if err != nil {
		logger.DispatchDebugf("Session %s: %v", id, err)
		return Outcome{State: s.state}, err
	}

	out := Outcome{Call: call}
	if routed, ok := Route(call, s.state); ok {
		out.Routed = &routed
	}
	s.state = Advance(call, s.state)
	out.State = s.state

	if out.Routed != nil {
		logger.DispatchDebugf("Session %s turn %d: routed to %s (%d chars), continue=%t",
			id, s.state.TurnCount, out.Routed.To, len(out.Routed.Message), call.Continue)
	} else {
		logger.DispatchDebugf("Session %s turn %d: routing skipped, continue=%t",
			id, s.state.TurnCount, call.Continue)
	}

	if !s.state.Active {
		d.archive(id, s, ReasonCompleted)
	}
	return out, nil
}

// State returns a snapshot of a session's state.
func (d *Dispatcher) State(id string) (ConversationState, error) {
	s, err := d.lookup(id)
	if err != nil {
		return ConversationState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

// Abandon closes a session without accepting a call, e.g. when the host gives
// up on it. The turn counter is not advanced.
func (d *Dispatcher) Abandon(id, reason string) (ConversationState, error) {
	s, err := d.lookup(id)
	if err != nil {
		return ConversationState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Active {
		return s.state, fmt.Errorf("%w: %s", ErrSessionClosed, id)
	}
	s.state.Active = false
	logger.DispatchDebugf("Session %s abandoned after %d turns: %s", id, s.state.TurnCount, reason)
	d.archive(id, s, reason)
	return s.state, nil
}

// Forget drops a session record. Later calls with the id get ErrUnknownSession.
func (d *Dispatcher) Forget(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	delete(d.sessions, id)
	return nil
}

func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// archive must be called with s.mu held.
func (d *Dispatcher) archive(id string, s *session, reason string) {
	logger.Infof("Session %s closed after %d turns (%s)", id, s.state.TurnCount, reason)
	if d.archiver == nil {
		return
	}
	if err := d.archiver.ArchiveSession(id, s.opened, s.state, reason); err != nil {
		logger.Errorf("Failed to archive session %s: %v", id, err)
	}
}
