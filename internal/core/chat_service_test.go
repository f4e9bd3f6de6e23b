package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidash/internal/store"
)

func newTestChatService(t *testing.T, f *fakeAssistants) (*ChatService, *store.SessionStore) {
	sessions, err := store.NewSessionStore(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sessions.Close() })

	s := NewChatService(f.client(), sessions, "asst-chat")
	s.pollInterval = time.Millisecond
	return s, sessions
}

// requireAlternating asserts the transcript starts with "user" and
// strictly alternates user/assistant.
func requireAlternating(t *testing.T, messages []store.ChatMessage) {
	t.Helper()
	require.Equal(t, 0, len(messages)%2, "transcript must hold complete turns")
	for i, msg := range messages {
		if i%2 == 0 {
			require.Equal(t, "user", msg.Sender, "message %d", i)
		} else {
			require.Equal(t, "assistant", msg.Sender, "message %d", i)
		}
	}
}

func TestOpenSessionCreatesShellOnce(t *testing.T) {
	f := newFakeAssistants(t)
	s, sessions := newTestChatService(t, f)

	first, err := s.OpenSession("thread-x", "file-x")
	require.NoError(t, err)
	assert.Equal(t, "thread-x", first.ID)
	assert.Equal(t, "thread-x", first.ThreadID)
	assert.Equal(t, "file-x", first.FileID)
	assert.Empty(t, first.Messages)
	assert.NotZero(t, first.CreatedAt)

	second, err := s.OpenSession("thread-x", "file-x")
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	all, err := sessions.ListAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSendTurnSuccess(t *testing.T) {
	f := newFakeAssistants(t)
	f.replyByAssistant["asst-chat"] = "Sure, here's more detail."
	s, sessions := newTestChatService(t, f)

	_, err := s.OpenSession("thread-x", "file-x")
	require.NoError(t, err)

	messages, err := s.SendTurn(context.Background(), "thread-x", "file-x", "Tell me more", nil)
	require.NoError(t, err)

	require.Len(t, messages, 2)
	assert.Equal(t, store.ChatMessage{Sender: "user", Content: "Tell me more"}, messages[0])
	assert.Equal(t, store.ChatMessage{Sender: "assistant", Content: "Sure, here's more detail."}, messages[1])
	requireAlternating(t, messages)

	// Second turn keeps the transcript alternating.
	messages, err = s.SendTurn(context.Background(), "thread-x", "file-x", "And then?", messages)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	requireAlternating(t, messages)

	// The persisted transcript matches what the caller got back.
	persisted, err := sessions.GetByID("thread-x")
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, messages, persisted.Messages)
}

func TestSendTurnSendFailure(t *testing.T) {
	f := newFakeAssistants(t)
	f.failMessage = true
	s, sessions := newTestChatService(t, f)

	previous := []store.ChatMessage{
		{Sender: "user", Content: "hi"},
		{Sender: "assistant", Content: "hello"},
	}
	messages, err := s.SendTurn(context.Background(), "thread-x", "file-x", "are you there?", previous)
	require.NoError(t, err)

	require.Len(t, messages, len(previous)+2)
	assert.Equal(t, "are you there?", messages[2].Content)
	assert.Equal(t, store.ChatMessage{Sender: "assistant", Content: "❌ Failed to send message."}, messages[3])
	requireAlternating(t, messages)

	// The remote pipeline stopped at the failed send.
	c := f.counts()
	assert.Equal(t, 0, c.runs)
	assert.Equal(t, 0, c.polls)

	// Both the user message and the placeholder reached the store.
	persisted, err := sessions.GetByID("thread-x")
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, messages, persisted.Messages)
}

func TestSendTurnRunStartFailure(t *testing.T) {
	f := newFakeAssistants(t)
	f.failRun = true
	s, _ := newTestChatService(t, f)

	messages, err := s.SendTurn(context.Background(), "thread-x", "", "hello", nil)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "❌ Run failed.", messages[1].Content)
}

func TestSendTurnPollTimeout(t *testing.T) {
	f := newFakeAssistants(t)
	f.runStatus = "in_progress"
	s, _ := newTestChatService(t, f)
	s.pollAttempts = 2

	messages, err := s.SendTurn(context.Background(), "thread-x", "file-x", "hello", nil)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "❌ No response from assistant.", messages[1].Content)
	assert.Equal(t, 2, f.counts().polls)
}

func TestSendTurnPreservesCreatedAt(t *testing.T) {
	f := newFakeAssistants(t)
	s, sessions := newTestChatService(t, f)

	opened, err := s.OpenSession("thread-x", "file-x")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = s.SendTurn(context.Background(), "thread-x", "file-x", "hello", nil)
	require.NoError(t, err)

	persisted, err := sessions.GetByID("thread-x")
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, opened.CreatedAt, persisted.CreatedAt)
	assert.GreaterOrEqual(t, persisted.UpdatedAt, opened.UpdatedAt)
}
