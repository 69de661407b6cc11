package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/custodia-labs/sercha-chat/docs"
	"github.com/custodia-labs/sercha-chat/internal/adapters/driven/auth"
	"github.com/custodia-labs/sercha-chat/internal/adapters/driven/memory"
	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/sercha-chat/internal/core/services"
	"github.com/custodia-labs/sercha-chat/internal/runtime"
)

const testSecret = "test-secret"

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type testServer struct {
	*httptest.Server
	conversations *mocks.MockConversationStore
	documents     *mocks.MockDocumentStore
	queue         *mocks.MockTaskQueue
	llm           *mocks.MockLLMService
	verifier      *auth.Adapter
}

func newTestServer(t *testing.T, checks map[string]Pinger) *testServer {
	t.Helper()
	conversations := mocks.NewMockConversationStore()
	messages := mocks.NewMockMessageStore(conversations)
	documents := mocks.NewMockDocumentStore()
	files := mocks.NewMockFileStorage()
	queue := mocks.NewMockTaskQueue()
	index := memory.NewVectorIndex(0)
	llm := mocks.NewMockLLMService()

	rt := runtime.NewServices(domain.NewRuntimeConfig("postgres", "memory", "filesystem"))
	rt.SetEmbeddingService(mocks.NewMockEmbeddingService())
	rt.SetLLMService(llm)

	verifier := auth.NewAdapter(testSecret)
	srv := NewServer(Config{Version: "1.2.3", AllowedOrigins: []string{"https://app.example"}}, Deps{
		Conversations: services.NewConversationService(services.ConversationConfig{
			Conversations: conversations, Messages: messages, Documents: documents, Files: files, Index: index,
		}),
		Documents: services.NewDocumentService(services.DocumentConfig{
			Conversations: conversations, Documents: documents, Files: files, Index: index, Queue: queue,
		}),
		Chat: services.NewChatService(services.ChatConfig{
			Conversations: conversations,
			Messages:      messages,
			Documents:     documents,
			Retrieval:     services.NewRetrievalService(index, rt),
			Services:      rt,
		}),
		Verifier: verifier,
		Checks:   checks,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{
		Server:        ts,
		conversations: conversations,
		documents:     documents,
		queue:         queue,
		llm:           llm,
		verifier:      verifier,
	}
}

func (ts *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	now := time.Now()
	tok, err := ts.verifier.GenerateToken(&domain.TokenClaims{
		UserID:    userID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, userID string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, body)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token(t, userID))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (ts *testServer) doJSON(t *testing.T, method, path, userID string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		r = bytes.NewReader(raw)
	}
	return ts.do(t, method, path, userID, r, "application/json")
}

func (ts *testServer) createConversation(t *testing.T, userID, mode string) *domain.Conversation {
	t.Helper()
	resp := ts.doJSON(t, http.MethodPost, "/api/v1/conversations", userID, map[string]string{
		"title":             "chat",
		"conversation_mode": mode,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create conversation: status %d", resp.StatusCode)
	}
	var conv domain.Conversation
	decode(t, resp, &conv)
	return &conv
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, r io.Reader) []sseEvent {
	t.Helper()
	var (
		events []sseEvent
		cur    sseEvent
		lines  []string
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if lines != nil {
				cur.data = strings.Join(lines, "\n")
				events = append(events, cur)
			}
			cur, lines = sseEvent{}, nil
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			lines = append(lines, strings.TrimPrefix(line, "data: "))
		}
	}
	return events
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodGet, "/health", "", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health: expected 200, got %d", resp.StatusCode)
	}

	resp = ts.do(t, http.MethodGet, "/version", "", nil, "")
	var v VersionResponse
	decode(t, resp, &v)
	if v.Version != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %q", v.Version)
	}
}

func TestOpenAPI(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodGet, "/openapi.json", "", nil, "")
	var doc struct {
		BasePath string                    `json:"basePath"`
		Paths    map[string]map[string]any `json:"paths"`
	}
	decode(t, resp, &doc)
	if doc.BasePath != "/api/v1" {
		t.Errorf("expected basePath /api/v1, got %q", doc.BasePath)
	}
	if _, ok := doc.Paths["/conversations/{id}/messages/stream"]["post"]; !ok {
		t.Error("expected stream endpoint in api docs")
	}
}

func TestReady(t *testing.T) {
	ok := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name       string
		checks     map[string]Pinger
		wantStatus int
	}{
		{"all up", map[string]Pinger{"database": ok, "queue": ok}, http.StatusOK},
		{"one down", map[string]Pinger{"database": ok, "vector_index": down}, http.StatusServiceUnavailable},
		{"nil check skipped", map[string]Pinger{"database": ok, "cache": nil}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.checks)
			resp := ts.do(t, http.MethodGet, "/ready", "", nil, "")
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			var body ReadyResponse
			decode(t, resp, &body)
			if tt.wantStatus != http.StatusOK && body.Checks["vector_index"] != "connection refused" {
				t.Errorf("expected failing check reported, got %v", body.Checks)
			}
			if _, ok := body.Checks["cache"]; ok {
				t.Error("nil checks must not be reported")
			}
		})
	}
}

func TestConversationLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	conv := ts.createConversation(t, "user-1", "DOCUMENT_QA")
	if conv.Mode != domain.ModeDocumentQA || conv.UserID != "user-1" {
		t.Fatalf("unexpected conversation %+v", conv)
	}

	resp := ts.do(t, http.MethodGet, "/api/v1/conversations/"+conv.ID, "user-2", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("stranger: expected 404, got %d", resp.StatusCode)
	}

	resp = ts.do(t, http.MethodGet, "/api/v1/conversations?page=1&limit=5", "user-1", nil, "")
	var page struct {
		Conversations []domain.Conversation `json:"conversations"`
		Total         int                   `json:"total"`
		PageSize      int                   `json:"page_size"`
	}
	decode(t, resp, &page)
	if page.Total != 1 || len(page.Conversations) != 1 || page.PageSize != 5 {
		t.Errorf("unexpected page %+v", page)
	}

	resp = ts.do(t, http.MethodDelete, "/api/v1/conversations/"+conv.ID, "user-1", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete: expected 200, got %d", resp.StatusCode)
	}
	resp = ts.do(t, http.MethodGet, "/api/v1/conversations/"+conv.ID, "user-1", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("after delete: expected 404, got %d", resp.StatusCode)
	}
}

func TestCreateConversation_BadInput(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodPost, "/api/v1/conversations", "user-1", strings.NewReader("{"), "application/json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", resp.StatusCode)
	}

	resp = ts.doJSON(t, http.MethodPost, "/api/v1/conversations", "user-1", map[string]string{"conversation_mode": "NOPE"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown mode: expected 400, got %d", resp.StatusCode)
	}
}

func TestStreamMessage(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.llm.Fragments = []string{
		`{"model":"m","choices":[{"delta":{"content":"Hel"}}]}`,
		`{"model":"m","choices":[{"delta":{"content":"lo\nthere"},"finish_reason":"stop"}]}`,
	}
	conv := ts.createConversation(t, "user-1", "OPEN_CHAT")

	resp := ts.doJSON(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages/stream", "user-1",
		SendMessageRequest{Message: "hello"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected event stream, got %q", ct)
	}

	events := readEvents(t, resp.Body)
	want := []sseEvent{
		{data: "Hel"},
		{data: "lo\nthere"},
		{name: "done", data: "[DONE]"},
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: expected %+v, got %+v", i, want[i], events[i])
		}
	}

	resp = ts.do(t, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages", "user-1", nil, "")
	var page struct {
		Messages []domain.Message `json:"messages"`
	}
	decode(t, resp, &page)
	if len(page.Messages) != 2 || page.Messages[1].Content != "Hello\nthere" {
		t.Errorf("expected persisted transcript, got %+v", page.Messages)
	}
}

func TestStreamMessage_FailedStreamHasNoDone(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.llm.Fragments = []string{`{"choices":[{"delta":{"content":"par"}}]}`}
	ts.llm.EndErr = domain.ErrStreamFailed
	conv := ts.createConversation(t, "user-1", "OPEN_CHAT")

	resp := ts.doJSON(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages/stream", "user-1",
		SendMessageRequest{Message: "hello"})
	events := readEvents(t, resp.Body)

	for _, ev := range events {
		if ev.name == "done" {
			t.Fatal("failed stream must not send done")
		}
	}
	if last := events[len(events)-1]; last.name != "error" {
		t.Errorf("expected trailing error event, got %+v", last)
	}
}

func TestStreamMessage_Errors(t *testing.T) {
	ts := newTestServer(t, nil)
	qa := ts.createConversation(t, "user-1", "DOCUMENT_QA")
	chat := ts.createConversation(t, "user-1", "OPEN_CHAT")

	tests := []struct {
		name       string
		user       string
		convID     string
		body       any
		wantStatus int
	}{
		{"no documents", "user-1", qa.ID, SendMessageRequest{Message: "what?"}, http.StatusBadRequest},
		{"empty message", "user-1", chat.ID, SendMessageRequest{}, http.StatusBadRequest},
		{"stranger", "user-2", chat.ID, SendMessageRequest{Message: "hi"}, http.StatusNotFound},
		{"unauthenticated", "", chat.ID, SendMessageRequest{Message: "hi"}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.doJSON(t, http.MethodPost, "/api/v1/conversations/"+tt.convID+"/messages/stream", tt.user, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("errors are plain JSON before any event, got %q", ct)
			}
		})
	}
	if ts.llm.StreamCalls() != 0 {
		t.Error("rejected turns must not reach the model")
	}
}

func TestClassify(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.llm.GenerateText = "DOCUMENT_SUMMARY"

	resp := ts.doJSON(t, http.MethodPost, "/api/v1/conversations/classify", "user-1",
		SendMessageRequest{Message: "summarise my upload"})
	var body ClassifyResponse
	decode(t, resp, &body)
	if body.Mode != domain.ModeDocumentSummary {
		t.Errorf("expected DOCUMENT_SUMMARY, got %s", body.Mode)
	}
}

func multipartBody(t *testing.T, files map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		_, _ = fw.Write([]byte(content))
	}
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestUploadDocuments(t *testing.T) {
	ts := newTestServer(t, nil)
	conv := ts.createConversation(t, "user-1", "DOCUMENT_QA")

	body, ct := multipartBody(t, map[string]string{"a.txt": "alpha", "b.txt": "beta"})
	resp := ts.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/documents", "user-1", body, ct)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var up UploadResponse
	decode(t, resp, &up)
	if up.Total != 2 || len(up.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %+v", up)
	}
	for _, d := range up.Documents {
		if d.Status != domain.DocumentStatusProcessing {
			t.Errorf("expected PROCESSING, got %s", d.Status)
		}
	}
	if n := len(ts.queue.Tasks()); n != 2 {
		t.Errorf("expected 2 ingest tasks, got %d", n)
	}

	docID := up.Documents[0].ID
	resp = ts.do(t, http.MethodGet, "/api/v1/documents/"+docID, "user-1", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("get: expected 200, got %d", resp.StatusCode)
	}
	resp = ts.do(t, http.MethodGet, "/api/v1/documents/"+docID, "user-2", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("stranger get: expected 404, got %d", resp.StatusCode)
	}

	resp = ts.do(t, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/documents", "user-1", nil, "")
	var list UploadResponse
	decode(t, resp, &list)
	if list.Total != 2 {
		t.Errorf("expected 2 listed, got %d", list.Total)
	}

	resp = ts.do(t, http.MethodDelete, "/api/v1/documents/"+docID, "user-1", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete: expected 200, got %d", resp.StatusCode)
	}
	if ts.documents.Len() != 1 {
		t.Errorf("expected 1 document left, got %d", ts.documents.Len())
	}
}

func TestUploadDocuments_Errors(t *testing.T) {
	ts := newTestServer(t, nil)
	conv := ts.createConversation(t, "user-1", "DOCUMENT_QA")

	resp := ts.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/documents", "user-1",
		strings.NewReader("not multipart"), "text/plain")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("not multipart: expected 400, got %d", resp.StatusCode)
	}

	body, ct := multipartBody(t, nil)
	resp = ts.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/documents", "user-1", body, ct)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("no files: expected 400, got %d", resp.StatusCode)
	}

	body, ct = multipartBody(t, map[string]string{"a.txt": "alpha"})
	resp = ts.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/documents", "user-2", body, ct)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("stranger: expected 404, got %d", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrNoGroundingAvailable, http.StatusBadRequest},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{domain.ErrEmbeddingUnavailable, http.StatusServiceUnavailable},
		{domain.ErrStreamFailed, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			wrapped := errors.Join(errors.New("context"), tt.err)
			if got := statusFor(wrapped); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
