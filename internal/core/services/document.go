package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driving"
)

var _ driving.DocumentService = (*documentService)(nil)

// DocumentConfig holds the collaborators of the document service.
type DocumentConfig struct {
	Conversations driven.ConversationStore
	Documents     driven.DocumentStore
	Files         driven.FileStorage
	Index         driven.VectorIndex
	Queue         driven.TaskQueue
	Logger        *slog.Logger
}

type documentService struct {
	conversations driven.ConversationStore
	documents     driven.DocumentStore
	files         driven.FileStorage
	queue         driven.TaskQueue
	purger        *documentPurger
	logger        *slog.Logger
}

// NewDocumentService creates a DocumentService
func NewDocumentService(cfg DocumentConfig) driving.DocumentService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &documentService{
		conversations: cfg.Conversations,
		documents:     cfg.Documents,
		files:         cfg.Files,
		queue:         cfg.Queue,
		purger: &documentPurger{
			documents: cfg.Documents,
			files:     cfg.Files,
			index:     cfg.Index,
			logger:    logger,
		},
		logger: logger,
	}
}

// Upload records each file as PROCESSING, stores its bytes and queues ingestion.
// A file that cannot be stored or queued is marked FAILED and still returned,
// so the caller sees one document per file.
func (s *documentService) Upload(ctx context.Context, userID, conversationID string, uploads []driving.Upload) ([]*domain.Document, error) {
	if len(uploads) == 0 {
		return nil, fmt.Errorf("%w: no files uploaded", domain.ErrInvalidInput)
	}
	if _, err := ownedConversation(ctx, s.conversations, userID, conversationID); err != nil {
		return nil, err
	}

	docs := make([]*domain.Document, 0, len(uploads))
	for _, up := range uploads {
		doc, err := s.accept(ctx, userID, conversationID, up)
		if err != nil {
			return docs, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *documentService) accept(ctx context.Context, userID, conversationID string, up driving.Upload) (*domain.Document, error) {
	name := filepath.Base(strings.TrimSpace(up.Name))
	if name == "." || name == string(filepath.Separator) {
		name = "upload"
	}
	contentType := up.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(up.Content)
	}

	doc := domain.NewDocument(conversationID, userID, name, contentType, int64(len(up.Content)))
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	logger := s.logger.With("document_id", doc.ID, "conversation_id", conversationID)

	stored, err := s.files.Save(ctx, doc.ID, name, up.Content)
	if err != nil {
		logger.Error("failed to store upload", "error", err)
		return s.fail(ctx, doc, fmt.Sprintf("store upload: %v", err))
	}
	if err := s.documents.SetStorageLocation(ctx, doc.ID, stored.Location, stored.Checksum); err != nil {
		_ = s.files.Delete(ctx, stored.Location)
		return nil, fmt.Errorf("record storage location: %w", err)
	}
	doc.StorageLocation = stored.Location
	doc.Checksum = stored.Checksum

	task := domain.NewIngestDocumentTask(doc.ID)
	if err := s.queue.Enqueue(ctx, task); err != nil {
		logger.Error("failed to queue ingestion", "error", err)
		return s.fail(ctx, doc, fmt.Sprintf("queue ingestion: %v", err))
	}

	logger.Info("document accepted", "task_id", task.ID, "size", doc.Size)
	return doc, nil
}

func (s *documentService) fail(ctx context.Context, doc *domain.Document, reason string) (*domain.Document, error) {
	if err := doc.Fail(reason); err != nil {
		return nil, err
	}
	if err := s.documents.Finish(ctx, doc); err != nil {
		return nil, fmt.Errorf("mark document failed: %w", err)
	}
	return doc, nil
}

// Get retrieves a document owned by userID
func (s *documentService) Get(ctx context.Context, userID, id string) (*domain.Document, error) {
	doc, err := s.documents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

// ListByConversation retrieves the documents of a conversation, newest first
func (s *documentService) ListByConversation(ctx context.Context, userID, conversationID string) ([]*domain.Document, error) {
	if _, err := ownedConversation(ctx, s.conversations, userID, conversationID); err != nil {
		return nil, err
	}
	return s.documents.ListByConversation(ctx, conversationID)
}

// Delete removes the document with its index entries and stored bytes
func (s *documentService) Delete(ctx context.Context, userID, id string) error {
	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	return s.purger.purge(ctx, doc)
}

// documentPurger removes every trace of a document. Index entries go first so
// retrieval stops seeing them even if a later step fails.
type documentPurger struct {
	documents driven.DocumentStore
	files     driven.FileStorage
	index     driven.VectorIndex
	logger    *slog.Logger
}

func (p *documentPurger) purge(ctx context.Context, doc *domain.Document) error {
	if err := p.index.DeleteByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete index entries of %s: %w", doc.ID, err)
	}
	if err := p.documents.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document %s: %w", doc.ID, err)
	}
	if doc.StorageLocation != "" {
		if err := p.files.Delete(ctx, doc.StorageLocation); err != nil {
			p.logger.Warn("failed to delete stored upload",
				"document_id", doc.ID,
				"location", doc.StorageLocation,
				"error", err,
			)
		}
	}
	return nil
}

// ownedConversation loads a conversation and hides it from anyone but its owner.
func ownedConversation(ctx context.Context, store driven.ConversationStore, userID, id string) (*domain.Conversation, error) {
	conv, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return conv, nil
}
