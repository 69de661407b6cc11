package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driving"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var _ driving.ConversationService = (*conversationService)(nil)

// ConversationConfig holds the collaborators of the conversation service.
type ConversationConfig struct {
	Conversations driven.ConversationStore
	Messages      driven.MessageStore
	Documents     driven.DocumentStore
	Files         driven.FileStorage
	Index         driven.VectorIndex
	Logger        *slog.Logger
}

type conversationService struct {
	conversations driven.ConversationStore
	messages      driven.MessageStore
	documents     driven.DocumentStore
	purger        *documentPurger
	logger        *slog.Logger
}

// NewConversationService creates a ConversationService
func NewConversationService(cfg ConversationConfig) driving.ConversationService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &conversationService{
		conversations: cfg.Conversations,
		messages:      cfg.Messages,
		documents:     cfg.Documents,
		purger: &documentPurger{
			documents: cfg.Documents,
			files:     cfg.Files,
			index:     cfg.Index,
			logger:    logger,
		},
		logger: logger,
	}
}

// Create opens a conversation for userID
func (s *conversationService) Create(ctx context.Context, userID string, req driving.CreateConversationRequest) (*domain.Conversation, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}

	var mode domain.ConversationMode
	if strings.TrimSpace(req.Mode) != "" {
		parsed, ok := domain.ParseConversationMode(req.Mode)
		if !ok {
			return nil, fmt.Errorf("%w: unknown conversation mode %q", domain.ErrInvalidInput, req.Mode)
		}
		mode = parsed
	}

	conv := domain.NewConversation(userID, strings.TrimSpace(req.Title), mode)
	conv.Metadata = req.Metadata
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	s.logger.Info("conversation created",
		"conversation_id", conv.ID,
		"mode", conv.Mode,
	)
	return conv, nil
}

// Get retrieves a conversation owned by userID
func (s *conversationService) Get(ctx context.Context, userID, id string) (*domain.Conversation, error) {
	return ownedConversation(ctx, s.conversations, userID, id)
}

// List retrieves a page of the user's conversations
func (s *conversationService) List(ctx context.Context, userID string, page, pageSize int) (*driving.ConversationPage, error) {
	page, pageSize = normalisePage(page, pageSize)

	convs, err := s.conversations.ListByUser(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	total, err := s.conversations.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &driving.ConversationPage{
		Conversations: convs,
		Total:         total,
		Page:          page,
		PageSize:      pageSize,
	}, nil
}

// Messages retrieves a page of the transcript in ascending sequence order
func (s *conversationService) Messages(ctx context.Context, userID, id string, page, pageSize int) (*driving.MessagePage, error) {
	if _, err := ownedConversation(ctx, s.conversations, userID, id); err != nil {
		return nil, err
	}
	page, pageSize = normalisePage(page, pageSize)

	msgs, err := s.messages.List(ctx, id, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	total, err := s.messages.Count(ctx, id)
	if err != nil {
		return nil, err
	}

	return &driving.MessagePage{
		Messages: msgs,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// Delete removes the conversation and everything derived from it
func (s *conversationService) Delete(ctx context.Context, userID, id string) error {
	if _, err := ownedConversation(ctx, s.conversations, userID, id); err != nil {
		return err
	}

	docs, err := s.documents.ListByConversation(ctx, id)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	for _, doc := range docs {
		if err := s.purger.purge(ctx, doc); err != nil {
			return err
		}
	}

	// Messages go with the conversation row.
	if err := s.conversations.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("conversation deleted",
		"conversation_id", id,
		"documents", len(docs),
	)
	return nil
}

func normalisePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
