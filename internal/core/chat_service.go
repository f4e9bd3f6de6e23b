package core

import (
	"context"
	"fmt"
	"time"

	"aidash/internal/openai"
	"aidash/internal/store"
)

const (
	chatSessionTitle = "Chat with Assistant"

	sendFailedReply = "❌ Failed to send message."
	runFailedReply  = "❌ Run failed."
	noResponseReply = "❌ No response from assistant."
)

// ChatService drives multi-turn conversations on an existing thread
// and keeps the persisted transcript consistent across the
// asynchronous pipeline.
type ChatService struct {
	client       *openai.Client
	sessions     *store.SessionStore
	assistantID  string
	pollAttempts int
	pollInterval time.Duration
}

func NewChatService(client *openai.Client, sessions *store.SessionStore, assistantID string) *ChatService {
	return &ChatService{
		client:       client,
		sessions:     sessions,
		assistantID:  assistantID,
		pollAttempts: chatPollAttempts,
		pollInterval: defaultPollInterval,
	}
}

// OpenSession returns the persisted session for threadID, creating an
// empty shell on first open so the history list shows the chat
// immediately.
func (s *ChatService) OpenSession(threadID, fileID string) (*store.ChatSession, error) {
	existing, err := s.sessions.GetByID(threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", threadID, err)
	}
	if existing != nil {
		return existing, nil
	}

	return s.sessions.Upsert(store.ChatSession{
		ID:       threadID,
		Title:    chatSessionTitle,
		ThreadID: threadID,
		FileID:   fileID,
		Messages: []store.ChatMessage{},
	})
}

// SendTurn runs one chat exchange. The user message is persisted
// before any network call so it survives a remote failure; afterwards
// exactly one assistant message (the reply or a step-specific
// placeholder) is appended and persisted, on every path. The transcript
// therefore always alternates and is never left mid-turn. There is no
// retry within a turn.
func (s *ChatService) SendTurn(ctx context.Context, threadID, fileID, userText string, current []store.ChatMessage) ([]store.ChatMessage, error) {
	afterUser := append(append([]store.ChatMessage{}, current...), store.ChatMessage{
		Sender:  "user",
		Content: userText,
	})
	if err := s.persist(threadID, fileID, afterUser); err != nil {
		return nil, err
	}

	reply := s.assistantReply(ctx, threadID, fileID, userText)

	afterAssistant := append(afterUser, store.ChatMessage{
		Sender:  "assistant",
		Content: reply,
	})
	if err := s.persist(threadID, fileID, afterAssistant); err != nil {
		return afterAssistant, err
	}
	return afterAssistant, nil
}

// assistantReply runs message → run → poll → fetch and maps every
// failure to the placeholder for the step that broke.
func (s *ChatService) assistantReply(ctx context.Context, threadID, fileID, userText string) string {
	if err := s.client.PostMessage(ctx, threadID, openai.UserMessage{Text: userText}); err != nil {
		return sendFailedReply
	}

	var runFiles []string
	if fileID != "" {
		runFiles = []string{fileID}
	}
	runID, err := s.client.StartRun(ctx, threadID, s.assistantID, runFiles)
	if err != nil {
		return runFailedReply
	}

	switch s.client.PollRun(ctx, threadID, runID, s.pollAttempts, s.pollInterval) {
	case openai.RunCompleted:
	case openai.RunFailed:
		return runFailedReply
	default:
		return noResponseReply
	}

	reply, err := s.client.FetchLatestAssistantMessage(ctx, threadID)
	if err != nil {
		return noResponseReply
	}
	return reply
}

// persist upserts the whole session under its thread id. CreatedAt
// preservation and the id==threadId rewrite live in the store, so this
// can rebuild the record from scratch every time.
func (s *ChatService) persist(threadID, fileID string, messages []store.ChatMessage) error {
	_, err := s.sessions.Upsert(store.ChatSession{
		ID:       threadID,
		Title:    chatSessionTitle,
		ThreadID: threadID,
		FileID:   fileID,
		Messages: messages,
	})
	if err != nil {
		return fmt.Errorf("failed to persist session %s: %w", threadID, err)
	}
	return nil
}
