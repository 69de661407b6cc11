package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/custodia-labs/sercha-chat/internal/adapters/driven/memory"
	"github.com/custodia-labs/sercha-chat/internal/chunker"
	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-chat/internal/extractors"
	"github.com/custodia-labs/sercha-chat/internal/runtime"
)

// testEnv wires every service against in-memory collaborators.
type testEnv struct {
	conversations *mocks.MockConversationStore
	messages      *mocks.MockMessageStore
	documents     *mocks.MockDocumentStore
	files         *mocks.MockFileStorage
	queue         *mocks.MockTaskQueue
	index         *memory.VectorIndex
	embedder      *mocks.MockEmbeddingService
	llm           *mocks.MockLLMService
	services      *runtime.Services
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conversations := mocks.NewMockConversationStore()
	env := &testEnv{
		conversations: conversations,
		messages:      mocks.NewMockMessageStore(conversations),
		documents:     mocks.NewMockDocumentStore(),
		files:         mocks.NewMockFileStorage(),
		queue:         mocks.NewMockTaskQueue(),
		index:         memory.NewVectorIndex(0),
		embedder:      mocks.NewMockEmbeddingService(),
		llm:           mocks.NewMockLLMService(),
		services:      runtime.NewServices(domain.NewRuntimeConfig("postgres", "memory", "filesystem")),
	}
	env.services.SetEmbeddingService(env.embedder)
	env.services.SetLLMService(env.llm)
	return env
}

func (e *testEnv) conversation(t *testing.T, userID string, mode domain.ConversationMode) *domain.Conversation {
	t.Helper()
	conv := domain.NewConversation(userID, "test", mode)
	if err := e.conversations.Create(context.Background(), conv); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return conv
}

func (e *testEnv) documentService() driving.DocumentService {
	return NewDocumentService(DocumentConfig{
		Conversations: e.conversations,
		Documents:     e.documents,
		Files:         e.files,
		Index:         e.index,
		Queue:         e.queue,
	})
}

func (e *testEnv) conversationService() driving.ConversationService {
	return NewConversationService(ConversationConfig{
		Conversations: e.conversations,
		Messages:      e.messages,
		Documents:     e.documents,
		Files:         e.files,
		Index:         e.index,
	})
}

func (e *testEnv) pipeline(t *testing.T, size, overlap int) *IngestionPipeline {
	t.Helper()
	ch, err := chunker.New(chunker.Config{Size: size, Overlap: overlap})
	if err != nil {
		t.Fatalf("chunker: %v", err)
	}
	p, err := NewIngestionPipeline(IngestionConfig{
		Documents:  e.documents,
		Files:      e.files,
		Extractors: extractors.DefaultRegistry(),
		Index:      e.index,
		Services:   e.services,
		Chunker:    ch,
		BatchSize:  2,
	})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func (e *testEnv) chat(cfg ChatConfig) driving.ChatService {
	cfg.Conversations = e.conversations
	cfg.Messages = e.messages
	cfg.Documents = e.documents
	cfg.Services = e.services
	if cfg.Retrieval == nil {
		cfg.Retrieval = NewRetrievalService(e.index, e.services)
	}
	return NewChatService(cfg)
}

// upload stores content for a new PROCESSING document.
func (e *testEnv) upload(t *testing.T, conv *domain.Conversation, name, contentType, content string) *domain.Document {
	t.Helper()
	docs, err := e.documentService().Upload(context.Background(), conv.UserID, conv.ID, []driving.Upload{
		{Name: name, ContentType: contentType, Content: []byte(content)},
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return docs[0]
}

// ingested uploads and ingests a document, failing the test unless it completes.
func (e *testEnv) ingested(t *testing.T, conv *domain.Conversation, content string) *domain.Document {
	t.Helper()
	doc := e.upload(t, conv, "doc.txt", "text/plain", content)
	result, err := e.pipeline(t, 50, 0).Ingest(context.Background(), doc.ID)
	if err != nil || result.Status != domain.DocumentStatusCompleted {
		t.Fatalf("ingest: %v %+v", err, result)
	}
	return doc
}

// fragment renders an OpenAI-style streaming chunk.
func fragment(model, content, finish string) string {
	choice := map[string]any{"index": 0, "delta": map[string]string{"content": content}}
	if finish != "" {
		choice["finish_reason"] = finish
	} else {
		choice["finish_reason"] = nil
	}
	raw, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"model":   model,
		"choices": []any{choice},
	})
	return string(raw)
}

func usageFragment(prompt, completion int) string {
	raw, _ := json.Marshal(map[string]any{
		"choices": []any{},
		"usage": map[string]int{
			"prompt_tokens":     prompt,
			"completion_tokens": completion,
			"total_tokens":      prompt + completion,
		},
	})
	return string(raw)
}

// drain collects events until the channel closes.
func drain(events <-chan domain.TurnEvent) (tokens []string, done *domain.TurnEvent) {
	for ev := range events {
		switch ev.Type {
		case domain.TurnEventToken:
			tokens = append(tokens, ev.Token)
		case domain.TurnEventDone:
			ev := ev
			done = &ev
		}
	}
	return tokens, done
}
