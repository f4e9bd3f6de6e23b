package core

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"aidash/internal/openai"
)

// fakeAssistants is an in-process stand-in for the Assistants API. It
// records call counts and the last message/run payloads so tests can
// assert on pipeline sequencing and request shape.
type fakeAssistants struct {
	srv *httptest.Server

	mu       sync.Mutex
	uploads  int
	threads  int
	messages int
	runs     int
	polls    int

	failUpload  bool
	failMessage bool
	failRun     bool

	runStatus string // forced status; "" means completed

	replyText        string
	replyByAssistant map[string]string
	threadAssistant  map[string]string

	lastMessageBody []byte
	lastRunBody     []byte
}

func newFakeAssistants(t *testing.T) *fakeAssistants {
	f := &fakeAssistants{
		replyText:        "3 bullet points...",
		replyByAssistant: map[string]string{},
		threadAssistant:  map[string]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /files", f.handleUpload)
	mux.HandleFunc("POST /threads", f.handleCreateThread)
	mux.HandleFunc("POST /threads/{threadID}/messages", f.handlePostMessage)
	mux.HandleFunc("POST /threads/{threadID}/runs", f.handleStartRun)
	mux.HandleFunc("GET /threads/{threadID}/runs/{runID}", f.handleRunStatus)
	mux.HandleFunc("GET /threads/{threadID}/messages", f.handleListMessages)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAssistants) client() *openai.Client {
	return openai.NewClient("test-key", openai.WithBaseURL(f.srv.URL))
}

type fakeCounts struct {
	uploads, threads, messages, runs, polls int
}

func (f *fakeAssistants) counts() fakeCounts {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeCounts{f.uploads, f.threads, f.messages, f.runs, f.polls}
}

func (f *fakeAssistants) lastMessage() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastMessageBody
}

func (f *fakeAssistants) lastRun() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRunBody
}

// threadForAssistant returns the thread whose run used assistantID.
func (f *fakeAssistants) threadForAssistant(assistantID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for threadID, aid := range f.threadAssistant {
		if aid == assistantID {
			return threadID
		}
	}
	return ""
}

func (f *fakeAssistants) handleUpload(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpload {
		http.Error(w, "upload rejected", http.StatusInternalServerError)
		return
	}
	f.uploads++
	json.NewEncoder(w).Encode(map[string]string{"id": fmt.Sprintf("file-%d", f.uploads)})
}

func (f *fakeAssistants) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads++
	json.NewEncoder(w).Encode(map[string]string{"id": fmt.Sprintf("thread-%d", f.threads)})
}

func (f *fakeAssistants) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMessage {
		http.Error(w, "message rejected", http.StatusInternalServerError)
		return
	}
	f.messages++
	f.lastMessageBody = body
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"id":"msg-1"}`))
}

func (f *fakeAssistants) handleStartRun(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRun {
		http.Error(w, "run rejected", http.StatusInternalServerError)
		return
	}
	f.runs++
	f.lastRunBody = body

	var req struct {
		AssistantID string `json:"assistant_id"`
	}
	json.Unmarshal(body, &req)
	f.threadAssistant[r.PathValue("threadID")] = req.AssistantID

	json.NewEncoder(w).Encode(map[string]string{"id": fmt.Sprintf("run-%d", f.runs)})
}

func (f *fakeAssistants) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++

	status := "completed"
	if f.runStatus != "" {
		status = f.runStatus
	}
	json.NewEncoder(w).Encode(map[string]string{
		"id":     r.PathValue("runID"),
		"status": status,
	})
}

func (f *fakeAssistants) handleListMessages(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	text := f.replyText
	if aid, ok := f.threadAssistant[r.PathValue("threadID")]; ok {
		if reply, ok := f.replyByAssistant[aid]; ok {
			text = reply
		}
	}

	// Newest-first, the way the real API orders the list.
	resp := map[string]any{
		"data": []map[string]any{
			{
				"role": "assistant",
				"content": []map[string]any{
					{"type": "text", "text": map[string]string{"value": text}},
				},
			},
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": map[string]string{"value": "earlier user message"}},
				},
			},
		},
	}
	json.NewEncoder(w).Encode(resp)
}
