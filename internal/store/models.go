package store

type ChatMessage struct {
	Sender  string `json:"sender"` // "user" or "assistant"
	Content string `json:"content"`
}

// ChatSession pairs a remote thread with its locally persisted
// transcript. ID always equals ThreadID so lookups by either key hit
// the same record.
type ChatSession struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	ThreadID  string        `json:"threadId"`
	FileID    string        `json:"fileId"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt int64         `json:"createdAt"` // unix millis, set once on first persist
	UpdatedAt int64         `json:"updatedAt"` // unix millis, bumped on every persist
}
