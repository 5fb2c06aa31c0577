package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/kgchat/store/kv"
)

func newTestStore(t *testing.T, driver kv.Driver) *Store {
	t.Helper()
	counter := 0
	return New(driver,
		WithClock(func() time.Time { return time.Date(2026, 8, 31, 10, 30, 0, 0, time.UTC) }),
		WithIDGenerator(func() string {
			counter++
			return fmt.Sprintf("conv-%d", counter)
		}),
	)
}

func TestNewStoreSeedsDefaultConversations(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())

	conversations := s.Conversations()
	require.Len(t, conversations, 4)
	assert.Equal(t, "教育市場週報", conversations[0].Title)
	assert.Equal(t, conversations[0].ID, s.ActiveID(), "first seeded conversation should be active")
}

func TestCreateConversation(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())

	id := s.CreateConversation()

	conversations := s.Conversations()
	require.Len(t, conversations, 5)
	assert.Equal(t, id, conversations[0].ID, "new conversation is prepended")
	assert.Equal(t, id, s.ActiveID(), "new conversation becomes active")
	assert.Equal(t, "新對話 10:30", conversations[0].Title)

	require.Len(t, conversations[0].Messages, 1, "new conversation is seeded with a welcome message")
	assert.Equal(t, RoleAssistant, conversations[0].Messages[0].Role)
	assert.Equal(t, WelcomeMessage, conversations[0].Messages[0].Content)
}

func TestActivationInvariant(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())

	// For any sequence of create/delete, a non-empty set has exactly one
	// active conversation; deleting the active one re-activates the first
	// remaining by current order.
	first := s.CreateConversation()
	second := s.CreateConversation()
	assert.Equal(t, second, s.ActiveID())

	s.DeleteConversation(second)
	assert.Equal(t, first, s.ActiveID(), "deleting the active conversation activates the first remaining")

	// Deleting a non-active conversation leaves the active id untouched.
	conversations := s.Conversations()
	s.DeleteConversation(conversations[len(conversations)-1].ID)
	assert.Equal(t, first, s.ActiveID())

	for _, c := range s.Conversations() {
		s.DeleteConversation(c.ID)
	}
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.ActiveID(), "empty set has no active conversation")

	// Deleting an unknown id on the empty set is a no-op.
	s.DeleteConversation("missing")
	assert.Equal(t, 0, s.Len())
}

func TestRenameConversation(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	id := s.CreateConversation()

	s.RenameConversation(id, "  季度規劃  ")
	conversation, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, "季度規劃", conversation.Title, "title is trimmed")

	s.RenameConversation(id, "   ")
	conversation, _ = s.Get(id)
	assert.Equal(t, "季度規劃", conversation.Title, "blank rename keeps the previous title")
}

func TestAppendMessageToMissingConversationIsNoop(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())

	assert.NotPanics(t, func() {
		s.AppendMessage("missing", Message{Role: RoleAssistant, Content: "late"})
		s.AppendTrace("missing", Trace{ID: "t1"})
	})
}

func TestAppendTracePrepends(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	id := s.CreateConversation()

	s.AppendTrace(id, Trace{ID: "t1"})
	s.AppendTrace(id, Trace{ID: "t2"})

	conversation, ok := s.Get(id)
	require.True(t, ok)
	require.Len(t, conversation.Traces, 2)
	assert.Equal(t, "t2", conversation.Traces[0].ID, "traces are newest-first")
}

func TestSearchByTitle(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())

	matched := s.Search("市場")
	require.Len(t, matched, 1)
	assert.Equal(t, "教育市場週報", matched[0].Title)

	assert.Len(t, s.Search(""), 4, "empty query returns all")
	assert.Len(t, s.Search("   "), 4, "blank query returns all")
	assert.Empty(t, s.Search("不存在的標題"))
}

func TestSearchIsCaseInsensitiveAndOrderPreserving(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	first := s.CreateConversation()
	second := s.CreateConversation()
	s.RenameConversation(first, "Roadmap Q3")
	s.RenameConversation(second, "roadmap q4")

	matched := s.Search("ROADMAP")
	require.Len(t, matched, 2)
	assert.Equal(t, second, matched[0].ID, "search preserves current ordering")
	assert.Equal(t, first, matched[1].ID)
}

func TestSnapshotsDoNotAliasStoreState(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	id := s.CreateConversation()

	snapshot, ok := s.Get(id)
	require.True(t, ok)
	snapshot.Title = "mutated"
	snapshot.Messages[0].Content = "mutated"

	fresh, _ := s.Get(id)
	assert.NotEqual(t, "mutated", fresh.Title)
	assert.Equal(t, WelcomeMessage, fresh.Messages[0].Content)
}

func TestStatePersistsAcrossReload(t *testing.T) {
	driver := kv.NewMemory()

	s := newTestStore(t, driver)
	id := s.CreateConversation()
	s.RenameConversation(id, "保留的對話")
	s.AppendMessage(id, Message{Role: RoleUser, Content: "hello", Timestamp: "2026/08/31 10:30"})

	reloaded := New(driver)
	assert.Equal(t, id, reloaded.ActiveID())
	conversation, ok := reloaded.Get(id)
	require.True(t, ok)
	assert.Equal(t, "保留的對話", conversation.Title)
	require.Len(t, conversation.Messages, 2)
	assert.Equal(t, "hello", conversation.Messages[1].Content)
}

func TestUnparsableStateFallsBackToSeed(t *testing.T) {
	driver := kv.NewMemory()
	require.NoError(t, driver.Set(context.Background(), "chats", []byte("{not json")))
	require.NoError(t, driver.Set(context.Background(), "activeChatId", []byte("ghost")))

	s := New(driver)
	assert.Equal(t, 4, s.Len(), "corrupt state falls back to the seed set")
	assert.Equal(t, s.Conversations()[0].ID, s.ActiveID(), "unknown active id falls back to the first conversation")
}

func TestSetActive(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	conversations := s.Conversations()

	s.SetActive(conversations[2].ID)
	assert.Equal(t, conversations[2].ID, s.ActiveID())

	s.SetActive("missing")
	assert.Equal(t, conversations[2].ID, s.ActiveID(), "unknown id keeps the current active conversation")
}
