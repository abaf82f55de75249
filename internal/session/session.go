// Package session owns per-chat conversation state: the ledger of bot messages
// eligible for cleanup, the last requested query, the active flag used by the
// idle reminder and the language-selection state.
package session

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
)

// State is the conversation state of a chat.
type State int

const (
	StateIdle State = iota
	StateAwaitingLanguage
	StateReady
)

func (s State) String() string {
	switch s {
	case StateAwaitingLanguage:
		return "awaiting_language"
	case StateReady:
		return "ready"
	default:
		return "idle"
	}
}

// Verdict is the outcome of the dedup check.
type Verdict int

const (
	Accepted Verdict = iota
	Duplicate
)

// Deleter removes a single message from a chat.
type Deleter interface {
	Delete(ctx context.Context, chatID int64, messageID int) error
}

type chatSession struct {
	// work serializes update processing for the chat.
	work sync.Mutex

	// mu guards the fields below.
	mu        sync.Mutex
	active    bool
	lastQuery *string
	tracked   []int
	state     State
}

// Manager holds every chat session. It is safe for concurrent use.
type Manager struct {
	mu    sync.RWMutex
	chats map[int64]*chatSession
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{chats: make(map[int64]*chatSession)}
}

func (m *Manager) session(chatID int64) *chatSession {
	m.mu.RLock()
	s, ok := m.chats[chatID]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.chats[chatID]; ok {
		return s
	}
	s = &chatSession{}
	m.chats[chatID] = s
	return s
}

// Acquire blocks until the caller owns the chat's processing slot and returns
// the function that releases it.
func (m *Manager) Acquire(chatID int64) (release func()) {
	s := m.session(chatID)
	s.work.Lock()
	return s.work.Unlock
}

// RecordSent appends a bot message to the chat's ledger.
func (m *Manager) RecordSent(chatID int64, messageID int) {
	s := m.session(chatID)
	s.mu.Lock()
	s.tracked = append(s.tracked, messageID)
	s.mu.Unlock()
}

// ClearExcept replaces the ledger with keep and then deletes every
// previously tracked message that is not in keep. Deletes run without holding
// the chat's state lock; ids recorded meanwhile stay in the ledger. Delete
// failures are ignored.
func (m *Manager) ClearExcept(ctx context.Context, chatID int64, d Deleter, keep ...int) {
	s := m.session(chatID)
	s.mu.Lock()
	stale := s.tracked
	s.tracked = slices.Clone(keep)
	s.mu.Unlock()

	for _, id := range stale {
		if slices.Contains(keep, id) {
			continue
		}
		if err := d.Delete(ctx, chatID, id); err != nil {
			log.Debug().Err(err).Int64("chat_id", chatID).Int("message_id", id).Msg("delete tracked message")
		}
	}
}

// Tracked returns a copy of the chat's ledger.
func (m *Manager) Tracked(chatID int64) []int {
	s := m.session(chatID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tracked)
}

// CheckAndSet reports Duplicate when query equals the previous query of the
// chat exactly. Otherwise query becomes the remembered one.
func (m *Manager) CheckAndSet(chatID int64, query string) Verdict {
	s := m.session(chatID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastQuery != nil && *s.lastQuery == query {
		return Duplicate
	}
	s.lastQuery = &query
	return Accepted
}

// MarkActive makes the chat eligible for idle reminders.
func (m *Manager) MarkActive(chatID int64) {
	s := m.session(chatID)
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
}

// Deactivate removes the chat from the reminder set.
func (m *Manager) Deactivate(chatID int64) {
	s := m.session(chatID)
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// IsActive reports whether the chat receives idle reminders.
func (m *Manager) IsActive(chatID int64) bool {
	s := m.session(chatID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ActiveChats returns a sorted snapshot of the active chat ids.
func (m *Manager) ActiveChats() []int64 {
	m.mu.RLock()
	chats := make(map[int64]*chatSession, len(m.chats))
	maps.Copy(chats, m.chats)
	m.mu.RUnlock()

	out := make([]int64, 0, len(chats))
	for id, s := range chats {
		s.mu.Lock()
		if s.active {
			out = append(out, id)
		}
		s.mu.Unlock()
	}
	slices.Sort(out)
	return out
}

// SetState moves the chat to st.
func (m *Manager) SetState(chatID int64, st State) {
	s := m.session(chatID)
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// State returns the chat's conversation state.
func (m *Manager) State(chatID int64) State {
	s := m.session(chatID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
