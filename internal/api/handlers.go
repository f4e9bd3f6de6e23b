package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"aidash/internal/auth"
	"aidash/internal/core"
	"aidash/internal/store"
)

// maxUploadSize bounds multipart analysis uploads (32 MiB).
const maxUploadSize = 32 << 20

type APIHandler struct {
	analysis  *core.AnalysisService
	kpi       *core.KPIService
	chat      *core.ChatService
	sessions  *store.SessionStore
	tokens    *auth.TokenManager
	accessKey string
}

func NewAPIHandler(analysis *core.AnalysisService, kpi *core.KPIService, chat *core.ChatService, sessions *store.SessionStore, tokens *auth.TokenManager, accessKey string) *APIHandler {
	return &APIHandler{
		analysis:  analysis,
		kpi:       kpi,
		chat:      chat,
		sessions:  sessions,
		tokens:    tokens,
		accessKey: accessKey,
	}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if _, err := h.tokens.Validate(tokenString); err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type LoginRequest struct {
	AccessKey string `json:"access_key"`
}

// LoginHandler exchanges the configured client access key for a JWT.
// The dashboard app is the only expected caller, so there is no user
// database behind this.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.AccessKey == "" || req.AccessKey != h.accessKey {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := h.tokens.Generate("dashboard-app")
	if err != nil {
		log.Printf("Error generating JWT: %v", err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// analysisUpload pulls the uploaded file out of a multipart request.
func analysisUpload(w http.ResponseWriter, r *http.Request) (io.ReadCloser, string, bool) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "Invalid multipart request: "+err.Error(), http.StatusBadRequest)
		return nil, "", false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "A file upload is required", http.StatusBadRequest)
		return nil, "", false
	}
	return file, header.Filename, true
}

type analyzeErrorResponse struct {
	Error string `json:"error"`
}

func (h *APIHandler) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	file, filename, ok := analysisUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	isImage := r.FormValue("is_image") == "true"
	assistantID := r.FormValue("assistant_id")
	if assistantID == "" {
		http.Error(w, "assistant_id is required", http.StatusBadRequest)
		return
	}

	result, err := h.analysis.Analyze(r.Context(), file, filename, isImage, assistantID)
	if err != nil {
		log.Printf("Analysis pipeline failed: %v", err)
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(analyzeErrorResponse{Error: core.UserText(err)})
		return
	}
	json.NewEncoder(w).Encode(result)
}

func (h *APIHandler) ReportHandler(w http.ResponseWriter, r *http.Request) {
	file, filename, ok := analysisUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	contents, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
	if err != nil {
		http.Error(w, "Failed to read upload", http.StatusBadRequest)
		return
	}

	isImage := r.FormValue("is_image") == "true"
	report := h.analysis.Report(r.Context(), contents, filename, isImage)
	json.NewEncoder(w).Encode(report)
}

type kpiResponse struct {
	Report string `json:"report"`
}

// KPIHandler runs the KPI prediction workflow. Failures surface inside
// the report text itself, so this always answers 200.
func (h *APIHandler) KPIHandler(w http.ResponseWriter, r *http.Request) {
	file, filename, ok := analysisUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	department := r.FormValue("department")
	if department == "" {
		http.Error(w, "department is required", http.StatusBadRequest)
		return
	}

	historicalID := core.HistoricalFileID(department)
	report := h.kpi.AnalyzeKPI(r.Context(), department, file, filename, historicalID)
	json.NewEncoder(w).Encode(kpiResponse{Report: report})
}

func (h *APIHandler) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListAll()
	if err != nil {
		log.Printf("Error listing sessions: %v", err)
		http.Error(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}

	// Most recently active first, the order the history view shows.
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt > sessions[j].UpdatedAt
	})
	if sessions == nil {
		sessions = []store.ChatSession{}
	}
	json.NewEncoder(w).Encode(sessions)
}

type OpenSessionRequest struct {
	ThreadID string `json:"thread_id"`
	FileID   string `json:"file_id"`
}

func (h *APIHandler) OpenSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ThreadID == "" {
		http.Error(w, "thread_id is required", http.StatusBadRequest)
		return
	}

	session, err := h.chat.OpenSession(req.ThreadID, req.FileID)
	if err != nil {
		log.Printf("Error opening session %s: %v", req.ThreadID, err)
		http.Error(w, "Failed to open session", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(session)
}

func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.sessions.GetByID(sessionID)
	if err != nil {
		log.Printf("Error getting session %s: %v", sessionID, err)
		http.Error(w, "Failed to get session", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(session)
}

func (h *APIHandler) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.sessions.Delete(sessionID); err != nil {
		log.Printf("Error deleting session %s: %v", sessionID, err)
		http.Error(w, "Failed to delete session", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ClearSessionsHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Clear(); err != nil {
		log.Printf("Error clearing sessions: %v", err)
		http.Error(w, "Failed to clear sessions", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type PostSessionMessageRequest struct {
	Content string `json:"content"`
}

func (h *APIHandler) PostSessionMessageHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req PostSessionMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		http.Error(w, "Message content cannot be empty", http.StatusBadRequest)
		return
	}

	session, err := h.sessions.GetByID(sessionID)
	if err != nil {
		log.Printf("Error loading session %s: %v", sessionID, err)
		http.Error(w, "Failed to load session", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	messages, err := h.chat.SendTurn(r.Context(), session.ThreadID, session.FileID, req.Content, session.Messages)
	if err != nil {
		log.Printf("Error persisting chat turn for session %s: %v", sessionID, err)
		http.Error(w, "Failed to record chat turn", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(messages)
}
