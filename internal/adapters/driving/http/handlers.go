package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/swaggo/swag"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driving"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// ReadyResponse reports each dependency checked by /ready
// @Description Readiness status per dependency
type ReadyResponse struct {
	Status string            `json:"status" example:"ready"`
	Checks map[string]string `json:"checks"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// SendMessageRequest is the body of a chat turn
// @Description Chat turn request
type SendMessageRequest struct {
	Message string `json:"message" example:"What does the contract say about termination?"`
}

// ClassifyResponse carries the suggested conversation mode
// @Description Intent classification result
type ClassifyResponse struct {
	Mode domain.ConversationMode `json:"conversation_mode" example:"DOCUMENT_QA"`
}

// UploadResponse lists the documents accepted for ingestion
// @Description Accepted uploads
type UploadResponse struct {
	Documents []*domain.Document `json:"documents"`
	Total     int                `json:"total"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Pings the database, task queue and vector index
// @Tags         Health
// @Produce      json
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name, p := range s.checks {
		if p != nil {
			names = append(names, name)
		}
	}
	errs := make([]error, len(names))

	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			errs[i] = s.checks[name].Ping(ctx)
			return nil
		})
	}
	_ = g.Wait()

	resp := ReadyResponse{Status: "ready", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for i, name := range names {
		if errs[i] != nil {
			resp.Checks[name] = errs[i].Error()
			resp.Status = "not ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	if status != http.StatusOK {
		s.logger.Warn("readiness check failed", "checks", resp.Checks)
	}
	writeJSON(w, status, resp)
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

// handleOpenAPI serves the registered swagger document, if the binary
// linked one in.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		writeError(w, http.StatusNotFound, "api docs not available")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// Conversation endpoints

// handleCreateConversation godoc
// @Summary      Create conversation
// @Description  Open a conversation. conversation_mode defaults to OPEN_CHAT.
// @Tags         Conversations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      driving.CreateConversationRequest  true  "Conversation details"
// @Success      201      {object}  domain.Conversation
// @Failure      400      {object}  ErrorResponse  "Invalid input"
// @Failure      401      {object}  ErrorResponse  "Unauthorized"
// @Router       /conversations [post]
func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req driving.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := s.conversations.Create(r.Context(), userID(r), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// handleListConversations godoc
// @Summary      List conversations
// @Description  Page through the caller's conversations, most recently active first
// @Tags         Conversations
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page number (1-based)"
// @Param        limit  query     int  false  "Page size"
// @Success      200    {object}  driving.ConversationPage
// @Failure      401    {object}  ErrorResponse  "Unauthorized"
// @Router       /conversations [get]
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	result, err := s.conversations.List(r.Context(), userID(r), page, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetConversation godoc
// @Summary      Get conversation
// @Tags         Conversations
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Conversation ID"
// @Success      200  {object}  domain.Conversation
// @Failure      404  {object}  ErrorResponse  "Conversation not found"
// @Router       /conversations/{id} [get]
func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.conversations.Get(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// handleDeleteConversation godoc
// @Summary      Delete conversation
// @Description  Remove the conversation with its messages, documents and index entries
// @Tags         Conversations
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Conversation ID"
// @Success      200  {object}  StatusResponse
// @Failure      404  {object}  ErrorResponse  "Conversation not found"
// @Router       /conversations/{id} [delete]
func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.conversations.Delete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "deleted"})
}

// handleListMessages godoc
// @Summary      List messages
// @Description  Page through a transcript. Page 1 holds the newest messages, each page in sequence order.
// @Tags         Conversations
// @Produce      json
// @Security     BearerAuth
// @Param        id     path      string  true   "Conversation ID"
// @Param        page   query     int     false  "Page number (1-based)"
// @Param        limit  query     int     false  "Page size"
// @Success      200    {object}  driving.MessagePage
// @Failure      404    {object}  ErrorResponse  "Conversation not found"
// @Router       /conversations/{id}/messages [get]
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	result, err := s.conversations.Messages(r.Context(), userID(r), r.PathValue("id"), page, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleStreamMessage godoc
// @Summary      Send a message
// @Description  Stream the answer as server-sent events: one "data" event per token, then "event: done" with "data: [DONE]". A stream that fails ends with "event: error" and no done event.
// @Tags         Conversations
// @Accept       json
// @Produce      text/event-stream
// @Security     BearerAuth
// @Param        id       path      string              true  "Conversation ID"
// @Param        request  body      SendMessageRequest  true  "Message"
// @Success      200      {string}  string              "event stream"
// @Failure      400      {object}  ErrorResponse       "Empty message, or no processed documents for a DOCUMENT_QA conversation"
// @Failure      404      {object}  ErrorResponse       "Conversation not found"
// @Failure      503      {object}  ErrorResponse       "Language model unavailable"
// @Router       /conversations/{id}/messages/stream [post]
func (s *Server) handleStreamMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	events, err := s.chat.HandleTurn(r.Context(), userID(r), r.PathValue("id"), req.Message)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	sse := newSSEWriter(w)
	for ev := range events {
		switch ev.Type {
		case domain.TurnEventToken:
			sse.data(ev.Token)
		case domain.TurnEventDone:
			sse.event("done", "[DONE]")
			// Drain so the relay goroutine can finish.
			for range events {
			}
			return
		}
	}
	sse.event("error", "stream failed")
}

// handleClassify godoc
// @Summary      Classify intent
// @Description  Suggest a conversation mode for a first message
// @Tags         Conversations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      SendMessageRequest  true  "Message"
// @Success      200      {object}  ClassifyResponse
// @Failure      400      {object}  ErrorResponse  "Empty message"
// @Failure      503      {object}  ErrorResponse  "Language model unavailable"
// @Router       /conversations/classify [post]
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mode, err := s.chat.ClassifyIntent(r.Context(), req.Message)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ClassifyResponse{Mode: mode})
}

// Document endpoints

// handleUploadDocuments godoc
// @Summary      Upload documents
// @Description  Store files for a conversation and queue their ingestion. Returns before ingestion finishes.
// @Tags         Documents
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id     path      string  true  "Conversation ID"
// @Param        files  formData  file    true  "Files to ingest"
// @Success      202    {object}  UploadResponse
// @Failure      400    {object}  ErrorResponse  "No files"
// @Failure      404    {object}  ErrorResponse  "Conversation not found"
// @Failure      413    {object}  ErrorResponse  "Upload too large"
// @Router       /conversations/{id}/documents [post]
func (s *Server) handleUploadDocuments(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	uploads := make([]driving.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable file "+fh.Filename)
			return
		}
		content, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable file "+fh.Filename)
			return
		}
		uploads = append(uploads, driving.Upload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Content:     content,
		})
	}

	docs, err := s.documents.Upload(r.Context(), userID(r), r.PathValue("id"), uploads)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, UploadResponse{Documents: docs, Total: len(docs)})
}

// handleListDocuments godoc
// @Summary      List documents
// @Tags         Documents
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Conversation ID"
// @Success      200  {object}  UploadResponse
// @Failure      404  {object}  ErrorResponse  "Conversation not found"
// @Router       /conversations/{id}/documents [get]
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.documents.ListByConversation(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UploadResponse{Documents: docs, Total: len(docs)})
}

// handleGetDocument godoc
// @Summary      Get document
// @Description  Get a document with its ingestion status
// @Tags         Documents
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  domain.Document
// @Failure      404  {object}  ErrorResponse  "Document not found"
// @Router       /documents/{id} [get]
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.documents.Get(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleDeleteDocument godoc
// @Summary      Delete document
// @Description  Remove a document, its stored file and its index entries
// @Tags         Documents
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  StatusResponse
// @Failure      404  {object}  ErrorResponse  "Document not found"
// @Router       /documents/{id} [delete]
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.documents.Delete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "deleted"})
}

// Helper functions

func pageParams(r *http.Request) (page, limit int) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	limit, _ = strconv.Atoi(q.Get("limit"))
	return page, limit
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrNoGroundingAvailable):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrTokenInvalid), errors.Is(err, domain.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrServiceUnavailable), errors.Is(err, domain.ErrEmbeddingUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrStreamFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
