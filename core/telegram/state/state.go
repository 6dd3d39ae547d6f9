package state

import (
	"log/slog"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/walletbot/core/logger"
	tghelpers "github.com/m3rciful/walletbot/core/telegram/helpers"
)

// State identifies a finite-state-machine step used in conversations.
type State string

// StateIdle indicates there is no active conversation with the user.
const StateIdle State = "idle"

// Session stores conversation state and typed data for a user.
type Session[T any] struct {
	State State
	Data  T
}

// Manager orchestrates user sessions and FSM state transitions. At most one
// session exists per user; the Telegram transport serializes updates per chat,
// so handlers never race on the same session.
type Manager[T any] struct {
	mu       sync.RWMutex
	sessions map[int64]*Session[T]
	handlers map[State]tele.HandlerFunc
}

// NewManager constructs an in-memory Manager.
func NewManager[T any]() *Manager[T] {
	return &Manager[T]{
		sessions: make(map[int64]*Session[T]),
		handlers: make(map[State]tele.HandlerFunc),
	}
}

// Begin creates or replaces the session for a user with the given state and data.
func (m *Manager[T]) Begin(userID int64, st State, data T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = &Session[T]{State: st, Data: data}
}

// Get returns the session for a user if it exists.
func (m *Manager[T]) Get(userID int64) (*Session[T], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// SetState sets the FSM state for the given user's existing session.
func (m *Manager[T]) SetState(userID int64, st State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		s.State = st
	}
}

// GetState returns the current FSM state of a user, or StateIdle if none exists.
func (m *Manager[T]) GetState(userID int64) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[userID]; ok {
		return s.State
	}
	return StateIdle
}

// Update mutates the user's session under the manager lock.
func (m *Manager[T]) Update(userID int64, fn func(*Session[T])) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		fn(s)
	}
}

// Clear removes the entire session for a user.
func (m *Manager[T]) Clear(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// InProgress reports whether the user currently has an active FSM state.
func (m *Manager[T]) InProgress(userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	return ok && s.State != StateIdle
}

// RegisterHandler associates a state with its resumption handler.
func (m *Manager[T]) RegisterHandler(st State, h tele.HandlerFunc) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[st] = h
}

// Resume executes the handler registered for the user's current state, if any.
// It is the single entry point through which a suspended conversation receives
// its next inbound message.
func (m *Manager[T]) Resume(c tele.Context) error {
	userID := c.Sender().ID
	current := m.GetState(userID)
	ctx := tghelpers.BuildContext(c)
	logger.TG.LogAttrs(ctx, slog.LevelDebug, "fsm.resume",
		slog.Int64("user_id", userID),
		slog.String("state", string(current)),
	)

	m.mu.RLock()
	handler, ok := m.handlers[current]
	m.mu.RUnlock()
	if ok {
		return handler(c)
	}
	return nil
}
