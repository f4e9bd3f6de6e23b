package core

import (
	"bytes"
	"context"
	"io"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"aidash/internal/openai"
)

const (
	// spreadsheetPrompt is the fixed analytic prompt for non-image
	// uploads; images are sent as-is and the assistant's vision input
	// takes over.
	spreadsheetPrompt = "This spreadsheet contains dashboard KPIs. Please analyze the key trends and provide a short 3–4 bullet point summary."

	analysisPollAttempts = 20
	chatPollAttempts     = 15
	defaultPollInterval  = 2 * time.Second
)

// AnalysisResult is what a one-shot analysis resolves to. ThreadID and
// FileID are kept so the caller can continue the conversation in chat.
type AnalysisResult struct {
	Text     string `json:"text"`
	ThreadID string `json:"thread_id"`
	FileID   string `json:"file_id"`
}

// Report bundles the two independent analysis variants. ThreadID and
// FileID come from the summary pipeline; that is the thread chat
// continuation reuses.
type Report struct {
	Summary  string `json:"summary"`
	Insights string `json:"insights"`
	ThreadID string `json:"thread_id"`
	FileID   string `json:"file_id"`
}

type AnalysisService struct {
	client             *openai.Client
	summaryAssistantID string
	insightAssistantID string
	pollAttempts       int
	pollInterval       time.Duration
}

func NewAnalysisService(client *openai.Client, summaryAssistantID, insightAssistantID string) *AnalysisService {
	return &AnalysisService{
		client:             client,
		summaryAssistantID: summaryAssistantID,
		insightAssistantID: insightAssistantID,
		pollAttempts:       analysisPollAttempts,
		pollInterval:       defaultPollInterval,
	}
}

// Analyze runs the one-shot pipeline: upload, thread, message, run,
// poll, fetch. Each step's success is a precondition for the next; the
// first failure short-circuits with a PipelineError naming the step.
func (s *AnalysisService) Analyze(ctx context.Context, file io.Reader, filename string, isImage bool, assistantID string) (*AnalysisResult, error) {
	fileID, err := s.client.UploadFile(ctx, file, filename)
	if err != nil {
		return nil, stepFailure("File upload failed.", err)
	}

	threadID, err := s.client.CreateThread(ctx)
	if err != nil {
		return nil, stepFailure("Thread creation failed.", err)
	}

	var msg openai.UserMessage
	if isImage {
		msg.ImageFileID = fileID
	} else {
		msg.Text = spreadsheetPrompt
		msg.Attachments = []openai.Attachment{{FileID: fileID}}
	}
	if err := s.client.PostMessage(ctx, threadID, msg); err != nil {
		return nil, stepFailure("Message send failed.", err)
	}

	// Only spreadsheet runs scope the file to the code interpreter;
	// image content reaches the assistant through the message itself.
	var runFiles []string
	if !isImage {
		runFiles = []string{fileID}
	}
	runID, err := s.client.StartRun(ctx, threadID, assistantID, runFiles)
	if err != nil {
		return nil, stepFailure("Assistant run failed.", err)
	}

	switch s.client.PollRun(ctx, threadID, runID, s.pollAttempts, s.pollInterval) {
	case openai.RunCompleted:
	case openai.RunFailed:
		return nil, stepFailure("Assistant run failed.", nil)
	default:
		return nil, stepFailure("Assistant run timed out.", nil)
	}

	text, err := s.client.FetchLatestAssistantMessage(ctx, threadID)
	if err != nil {
		return nil, stepFailure("Failed to fetch result.", err)
	}

	return &AnalysisResult{Text: text, ThreadID: threadID, FileID: fileID}, nil
}

// Report runs the summary and insights assistants concurrently, each
// through its own full pipeline with an independent upload and thread.
// A failed variant surfaces as that variant's text so the other result
// still reaches the user.
func (s *AnalysisService) Report(ctx context.Context, file []byte, filename string, isImage bool) *Report {
	var report Report

	// Plain errgroup.Group, not WithContext: one variant failing must
	// not cancel the other's in-flight pipeline.
	var g errgroup.Group
	g.Go(func() error {
		res, err := s.Analyze(ctx, bytes.NewReader(file), filename, isImage, s.summaryAssistantID)
		if err != nil {
			report.Summary = UserText(err)
			return err
		}
		report.Summary = res.Text
		report.ThreadID = res.ThreadID
		report.FileID = res.FileID
		return nil
	})
	g.Go(func() error {
		res, err := s.Analyze(ctx, bytes.NewReader(file), filename, isImage, s.insightAssistantID)
		if err != nil {
			report.Insights = UserText(err)
			return err
		}
		report.Insights = res.Text
		return nil
	})
	if err := g.Wait(); err != nil {
		// Already folded into the report text, log for diagnosis only.
		log.Printf("core: report variant failed: %v", err)
	}

	return &report
}
