// Package store is the authoritative in-memory model of all conversations.
// Every mutation goes through one of its operations; readers only ever see
// deep-copied snapshots. State is written through an injectable kv.Driver on
// every mutation and loaded once at construction.
package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/kgchat/store/kv"
)

// Persistence keys. The conversation set and the active conversation id are
// serialized independently so activating a conversation does not rewrite the
// whole set on drivers that care.
const (
	keyConversations = "chats"
	keyActiveID      = "activeChatId"
)

// Store provides access to all conversation state.
type Store struct {
	mu     sync.RWMutex
	driver kv.Driver

	conversations []*Conversation
	activeID      string

	now   func() time.Time
	newID func() string
}

// Option customizes a Store, mainly to inject deterministic clocks and id
// generators in tests.
type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// New creates a Store backed by driver, loading persisted state or falling
// back to the seeded default conversation set.
func New(driver kv.Driver, opts ...Option) *Store {
	s := &Store{
		driver: driver,
		now:    time.Now,
		newID:  shortuuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.load()
	return s
}

func (s *Store) load() {
	ctx := context.Background()

	raw, ok, err := s.driver.Get(ctx, keyConversations)
	if err != nil {
		slog.Warn("failed to load conversations, using seed data", "error", err)
	}
	if err == nil && ok {
		var conversations []*Conversation
		if err := json.Unmarshal(raw, &conversations); err != nil {
			slog.Warn("unparsable conversation state, using seed data", "error", err)
		} else {
			s.conversations = conversations
		}
	}
	if s.conversations == nil {
		s.conversations = seedConversations(s.now, s.newID)
	}

	if raw, ok, err := s.driver.Get(ctx, keyActiveID); err == nil && ok {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			slog.Warn("unparsable active conversation id", "error", err)
		} else {
			s.activeID = id
		}
	}
	if s.findLocked(s.activeID) < 0 {
		s.activeID = ""
		if len(s.conversations) > 0 {
			s.activeID = s.conversations[0].ID
		}
	}
}

// persistLocked writes both keys through the driver. Persistence is
// best-effort: a failing driver degrades to in-memory operation with a log,
// it never blocks a mutation.
func (s *Store) persistLocked() {
	ctx := context.Background()
	raw, err := json.Marshal(s.conversations)
	if err != nil {
		slog.Warn("failed to marshal conversations", "error", err)
		return
	}
	if err := s.driver.Set(ctx, keyConversations, raw); err != nil {
		slog.Warn("failed to persist conversations", "error", err)
	}
	// Values are JSON on every driver, so the id is stored as a JSON string.
	rawID, err := json.Marshal(s.activeID)
	if err != nil {
		return
	}
	if err := s.driver.Set(ctx, keyActiveID, rawID); err != nil {
		slog.Warn("failed to persist active conversation id", "error", err)
	}
}

func (s *Store) findLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, c := range s.conversations {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// CreateConversation inserts a new conversation at the front of the set with
// the seeded welcome message, makes it active and returns its id.
func (s *Store) CreateConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	conversation := &Conversation{
		ID:        s.newID(),
		Title:     DefaultTitle(now),
		CreatedAt: now,
		Messages: []Message{
			{Role: RoleAssistant, Content: WelcomeMessage, Timestamp: FormatTime(now)},
		},
	}
	s.conversations = append([]*Conversation{conversation}, s.conversations...)
	s.activeID = conversation.ID
	s.persistLocked()
	return conversation.ID
}

// DeleteConversation removes the conversation. Deleting the active one
// activates the first remaining conversation, or none if the set is empty.
// An unknown id is a no-op.
func (s *Store) DeleteConversation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findLocked(id)
	if idx < 0 {
		return
	}
	s.conversations = append(s.conversations[:idx], s.conversations[idx+1:]...)
	if s.activeID == id {
		s.activeID = ""
		if len(s.conversations) > 0 {
			s.activeID = s.conversations[0].ID
		}
	}
	s.persistLocked()
}

// RenameConversation applies the trimmed title; a blank title keeps the
// previous one.
func (s *Store) RenameConversation(id, title string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findLocked(id)
	if idx < 0 {
		return
	}
	s.conversations[idx].Title = title
	s.persistLocked()
}

// AppendMessage appends to the conversation's message sequence. The
// conversation may have been deleted while a send was in flight; that
// degrades to a logged no-op rather than an error.
func (s *Store) AppendMessage(conversationID string, message Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findLocked(conversationID)
	if idx < 0 {
		slog.Warn("dropping message for missing conversation", "conversation", conversationID, "role", message.Role)
		return
	}
	s.conversations[idx].Messages = append(s.conversations[idx].Messages, message)
	s.persistLocked()
}

// AppendTrace prepends to the conversation's trace sequence (newest first).
func (s *Store) AppendTrace(conversationID string, trace Trace) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findLocked(conversationID)
	if idx < 0 {
		slog.Warn("dropping trace for missing conversation", "conversation", conversationID)
		return
	}
	s.conversations[idx].Traces = append([]Trace{trace}, s.conversations[idx].Traces...)
	s.persistLocked()
}

// SetActive activates the given conversation. Unknown ids are ignored.
func (s *Store) SetActive(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLocked(id) < 0 {
		slog.Warn("cannot activate missing conversation", "conversation", id)
		return
	}
	s.activeID = id
	s.persistLocked()
}

// ActiveID returns the id of the active conversation, or "" when the set is
// empty.
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// ActiveConversation returns a snapshot of the active conversation.
func (s *Store) ActiveConversation() (*Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.findLocked(s.activeID)
	if idx < 0 {
		return nil, false
	}
	return s.conversations[idx].Clone(), true
}

// Get returns a snapshot of one conversation.
func (s *Store) Get(id string) (*Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.findLocked(id)
	if idx < 0 {
		return nil, false
	}
	return s.conversations[idx].Clone(), true
}

// Conversations returns a snapshot of the whole set in current order.
func (s *Store) Conversations() []*Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]*Conversation, len(s.conversations))
	for i, c := range s.conversations {
		snapshot[i] = c.Clone()
	}
	return snapshot
}

// Search returns the conversations whose title contains query
// case-insensitively, preserving order. An empty or blank query returns all.
func (s *Store) Search(query string) []*Conversation {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return s.Conversations()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Conversation
	for _, c := range s.conversations {
		if strings.Contains(strings.ToLower(c.Title), query) {
			matched = append(matched, c.Clone())
		}
	}
	return matched
}

// Len returns the number of conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

func (s *Store) Close() error {
	return s.driver.Close()
}
