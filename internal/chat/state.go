// Package chat implements the bot conversation engine: command dispatch,
// the guided add/edit flow and confirmation of free-text extractions.
package chat

import (
	"sync"
	"time"

	"github.com/subtrack/subtrack/internal/domain"
)

// Step is a position in the guided flow.
type Step string

// Guided flow steps, in order.
const (
	StepIdle        Step = "idle"
	StepName        Step = "name"
	StepPrice       Step = "price"
	StepDate        Step = "date"
	StepDescription Step = "description"
	StepBilling     Step = "billing"
)

// ConversationState is the per-session progress of a guided flow or a
// pending confirmation.
type ConversationState struct {
	Step Step
	// Data accumulates the subscription being built. In edit and review
	// mode it starts as a copy of Original.
	Data domain.Subscription
	// EditingID is set when the flow updates an existing subscription.
	EditingID string
	// Original holds the values offered as "keep current".
	Original            *domain.Subscription
	PendingConfirmation bool
	UpdatedAt           time.Time
}

// Active reports whether the state represents an ongoing conversation.
func (s *ConversationState) Active() bool {
	return s != nil && (s.Step != StepIdle || s.PendingConfirmation)
}

// Editing reports whether prompts offer to keep current values.
func (s *ConversationState) Editing() bool {
	return s.Original != nil
}

// StateStore keeps at most one ConversationState per session key.
type StateStore interface {
	Get(key string) (*ConversationState, bool)
	Set(key string, state *ConversationState)
	Delete(key string)
}

// MemoryStateStore is an in-process StateStore. States idle for longer
// than ttl are dropped on read.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]ConversationState
	ttl    time.Duration
	now    func() time.Time
}

// NewMemoryStateStore creates an empty store. A zero ttl keeps states forever.
func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	return &MemoryStateStore{
		states: make(map[string]ConversationState),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Get returns a copy of the state stored for key.
func (m *MemoryStateStore) Get(key string) (*ConversationState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[key]
	if !ok {
		return nil, false
	}
	if m.ttl > 0 && m.now().Sub(st.UpdatedAt) > m.ttl {
		delete(m.states, key)
		return nil, false
	}
	return &st, true
}

// Set stores a copy of state under key.
func (m *MemoryStateStore) Set(key string, state *ConversationState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := *state
	st.UpdatedAt = m.now()
	m.states[key] = st
}

// Delete removes the state for key.
func (m *MemoryStateStore) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, key)
}

// Len returns the number of stored states.
func (m *MemoryStateStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}

// SessionLocker serializes work per session key.
type SessionLocker struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewSessionLocker creates a SessionLocker.
func NewSessionLocker() *SessionLocker {
	return &SessionLocker{locks: make(map[string]*sessionLock)}
}

// Lock blocks until the session is free and returns the unlock function.
func (l *SessionLocker) Lock(key string) func() {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &sessionLock{}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()

	return func() {
		lk.mu.Unlock()

		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
