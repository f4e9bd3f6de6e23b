// Package openai is a typed client for the slice of the OpenAI
// Assistants v2 API this service depends on: file upload, thread
// lifecycle, message posting, run submission and polling, and message
// retrieval. Every call returns an explicit outcome; remote failures
// never escape as panics.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"

	// ToolCodeInterpreter tags an attachment for the code-execution tool.
	ToolCodeInterpreter = "code_interpreter"

	betaHeader            = "assistants=v2"
	filePurposeAssistants = "assistants"
	defaultUploadName     = "upload.dat"

	// maxResponseSize bounds how much of a remote response we read.
	maxResponseSize = 4 * 1024 * 1024
)

// ErrNoAssistantMessage is returned when a thread holds no assistant
// reply with text content.
var ErrNoAssistantMessage = errors.New("no assistant message in thread")

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second, // uploads and runs can be slow
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UploadFile uploads the contents of file under purpose=assistants and
// returns the remote file identifier. An empty filename falls back to
// a placeholder so the upload never depends on the caller deriving one.
func (c *Client) UploadFile(ctx context.Context, file io.Reader, filename string) (string, error) {
	if filename == "" {
		filename = defaultUploadName
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("purpose", filePurposeAssistants); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to read upload source: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize upload form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/files", &body, mw.FormDataContentType())
	if err != nil {
		return "", err
	}

	var resp fileResponse
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("file upload failed: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("file upload response missing id")
	}
	return resp.ID, nil
}

// CreateThread creates a fresh conversation thread on the remote
// service and returns its identifier.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/threads", bytes.NewReader([]byte("{}")), "application/json")
	if err != nil {
		return "", err
	}

	var resp threadResponse
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("thread creation failed: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("thread creation response missing id")
	}
	return resp.ID, nil
}

// Attachment references an uploaded file in a message. Tool defaults
// to the code interpreter when empty.
type Attachment struct {
	FileID string
	Tool   string
}

// UserMessage is the content of one user turn: plain text, an image
// reference, or text plus file attachments.
type UserMessage struct {
	Text        string
	ImageFileID string
	Attachments []Attachment
}

// PostMessage appends a user message to the thread.
func (c *Client) PostMessage(ctx context.Context, threadID string, msg UserMessage) error {
	body := messageRequest{Role: "user"}
	if msg.ImageFileID != "" {
		body.Content = append(body.Content, requestPart{
			Type:      "image_file",
			ImageFile: &imageFileRef{FileID: msg.ImageFileID},
		})
	}
	if msg.Text != "" {
		body.Content = append(body.Content, requestPart{Type: "text", Text: msg.Text})
	}
	if len(body.Content) == 0 {
		return fmt.Errorf("message has no content")
	}
	for _, a := range msg.Attachments {
		tool := a.Tool
		if tool == "" {
			tool = ToolCodeInterpreter
		}
		body.Attachments = append(body.Attachments, attachmentRequest{
			FileID: a.FileID,
			Tools:  []toolTag{{Type: tool}},
		})
	}

	req, err := c.newJSONRequest(ctx, http.MethodPost, "/threads/"+threadID+"/messages", body)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("message post failed: %w", err)
	}
	return nil
}

// StartRun submits an assistant run against the thread. When fileIDs
// is non-empty the run scopes the code interpreter to exactly those
// files.
func (c *Client) StartRun(ctx context.Context, threadID, assistantID string, fileIDs []string) (string, error) {
	body := runRequest{AssistantID: assistantID}
	if len(fileIDs) > 0 {
		body.ToolResources = &toolResources{
			CodeInterpreter: &codeInterpreterResources{FileIDs: fileIDs},
		}
	}

	req, err := c.newJSONRequest(ctx, http.MethodPost, "/threads/"+threadID+"/runs", body)
	if err != nil {
		return "", err
	}

	var resp runResponse
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("run submission failed: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("run submission response missing id")
	}
	return resp.ID, nil
}

// RunOutcome is the terminal result of polling a run.
type RunOutcome int

const (
	RunCompleted RunOutcome = iota
	RunFailed
	RunTimedOut
)

func (o RunOutcome) String() string {
	switch o {
	case RunCompleted:
		return "completed"
	case RunFailed:
		return "failed"
	default:
		return "timed_out"
	}
}

// PollRun re-checks the run status every interval, up to maxAttempts
// times, and returns as soon as a terminal state is observed.
// Exhausting the budget is a normal RunTimedOut, not an error. A
// request failure mid-poll is terminal: there is no in-turn retry
// anywhere in the pipelines, the user resends instead.
func (c *Client) PollRun(ctx context.Context, threadID, runID string, maxAttempts int, interval time.Duration) RunOutcome {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return RunTimedOut
		case <-ticker.C:
		}

		status, err := c.runStatus(ctx, threadID, runID)
		if err != nil {
			log.Printf("openai: run %s status check failed: %v", runID, err)
			return RunFailed
		}

		switch status {
		case "completed":
			return RunCompleted
		case "failed":
			return RunFailed
		}
		// queued, in_progress and anything unrecognized: keep polling
	}
	return RunTimedOut
}

func (c *Client) runStatus(ctx context.Context, threadID, runID string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, "")
	if err != nil {
		return "", err
	}

	var resp runResponse
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	if resp.Status == "" {
		return "", fmt.Errorf("run status response missing status")
	}
	return resp.Status, nil
}

// FetchLatestAssistantMessage returns the text of the newest assistant
// message in the thread. The message list comes back newest-first, so
// the first assistant entry with text content wins.
func (c *Client) FetchLatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/threads/"+threadID+"/messages", nil, "")
	if err != nil {
		return "", err
	}

	var resp messageListResponse
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("message fetch failed: %w", err)
	}

	for _, msg := range resp.Data {
		if msg.Role != "assistant" {
			continue
		}
		for _, part := range msg.Content {
			if part.Text != nil && part.Text.Value != "" {
				return part.Text.Value, nil
			}
		}
	}
	return "", ErrNoAssistantMessage
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return c.newRequest(ctx, method, path, bytes.NewReader(raw), "application/json")
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", betaHeader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// do executes the request and decodes the JSON response into out (when
// out is non-nil). Non-2xx statuses and transport errors are logged
// with a short correlation id and returned as errors.
func (c *Client) do(req *http.Request, out any) error {
	callID := uuid.NewString()[:8]

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("openai: %s %s [%s] transport error: %v", req.Method, req.URL.Path, callID, err)
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("openai: %s %s [%s] returned %d: %s", req.Method, req.URL.Path, callID, resp.StatusCode, truncate(raw, 512))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
