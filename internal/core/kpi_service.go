package core

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"aidash/internal/openai"
)

// kpiPromptTemplate instructs the assistant to compute each KPI's
// current value, compare it to the same period last year and classify
// it against the BSC target. The output stays unstructured text; no
// client-side parsing of the KPI lines happens anywhere.
const kpiPromptTemplate = `You are an expert KPI prediction assistant. Two files are attached:
- One is the current month’s KPI for the %s department.
- The other contains last year’s trends for the same department.

Your job:
1. Calculate each KPI’s current value from raw data.
2. Compare it with the same KPI from the same month last year.
3. Use BSC targets to determine: Prediction = Meet | Not Meet
4. Explain the prediction based on trends and targets.

Output format:

KPI: <name>
Current Value: <value>
Last Year (Same Month): <value>
Target: <target>
Prediction: Meet | Not Meet
Reason: <reason>`

// historicalFileIDs maps a lowercased department name to the
// pre-uploaded reference file holding last year's KPI trends. Static
// configuration, maintained alongside the uploads themselves.
var historicalFileIDs = map[string]string{
	"marketing":        "file-TJYfXNfMKrPAttAKrUjmTk",
	"sales":            "file-N5tC9anVXgmgq41jDcnCjq",
	"tech":             "file-NPaZXz5EuToA2Pw24C1Ms5",
	"product":          "file-VRMzU8QMTasBxcyCPtDHZt",
	"finance":          "file-E7MQvXTgk1bRy4SBcttuwx",
	"operations":       "file-8KhZbBwixYyBcm5VpLBY8g",
	"customer support": "file-UZttM4zsKqoVGiTNMPnW5J",
}

// HistoricalFileID returns the reference file for a department, or ""
// when the department has no historical upload.
func HistoricalFileID(department string) string {
	return historicalFileIDs[strings.ToLower(strings.TrimSpace(department))]
}

type KPIService struct {
	client       *openai.Client
	assistantID  string
	pollAttempts int
	pollInterval time.Duration
}

func NewKPIService(client *openai.Client, assistantID string) *KPIService {
	return &KPIService{
		client:       client,
		assistantID:  assistantID,
		pollAttempts: analysisPollAttempts,
		pollInterval: defaultPollInterval,
	}
}

// AnalyzeKPI runs the KPI prediction pipeline for one department. It
// always attaches the caller's current file and, when available, the
// department's historical reference file. Failures come back as the
// "❌ ..." strings the client renders verbatim, never as errors.
func (s *KPIService) AnalyzeKPI(ctx context.Context, department string, file io.Reader, filename string, historicalFileID string) string {
	fileID, err := s.client.UploadFile(ctx, file, filename)
	if err != nil {
		return "❌ File upload failed."
	}

	threadID, err := s.client.CreateThread(ctx)
	if err != nil {
		return "❌ Thread creation failed."
	}

	attachments := []openai.Attachment{{FileID: fileID}}
	fileIDs := []string{fileID}
	if historicalFileID != "" {
		attachments = append(attachments, openai.Attachment{FileID: historicalFileID})
		fileIDs = append(fileIDs, historicalFileID)
	}

	msg := openai.UserMessage{
		Text:        fmt.Sprintf(kpiPromptTemplate, department),
		Attachments: attachments,
	}
	if err := s.client.PostMessage(ctx, threadID, msg); err != nil {
		return "❌ Message send failed."
	}

	runID, err := s.client.StartRun(ctx, threadID, s.assistantID, fileIDs)
	if err != nil {
		return "❌ Run failed."
	}

	if outcome := s.client.PollRun(ctx, threadID, runID, s.pollAttempts, s.pollInterval); outcome != openai.RunCompleted {
		log.Printf("core: KPI run %s for %s ended %s", runID, department, outcome)
		return "❌ Run failed or timed out."
	}

	report, err := s.client.FetchLatestAssistantMessage(ctx, threadID)
	if err != nil {
		return "❌ Failed to fetch response."
	}
	return report
}
