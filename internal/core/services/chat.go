package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-chat/internal/runtime"
)

const (
	groundedSystemPrompt = "You are a helpful assistant. Answer questions based ONLY on the provided context. " +
		"If the answer is not in the context, say you don't know."
	openSystemPrompt     = "You are a helpful assistant"
	classifySystemPrompt = "You are an intent classifier. Return ONLY one of these labels:\n" +
		"OPEN_CHAT\nDOCUMENT_QA\nDOCUMENT_SUMMARY"
)

var _ driving.ChatService = (*chatService)(nil)

// ChatConfig holds the collaborators and limits of the chat service.
type ChatConfig struct {
	Conversations driven.ConversationStore
	Messages      driven.MessageStore
	Documents     driven.DocumentStore
	Retrieval     driving.RetrievalService
	Services      *runtime.Services
	Logger        *slog.Logger

	Temperature *float64 // nil means 0.3; zero is a valid setting
	MaxTokens   int      // default: 1024
	TopK        int      // passages per grounded turn (default: 3)

	// HistoryMessages replays the last N messages, plus the rolling summary,
	// ahead of the new turn. Zero sends the turn on its own.
	HistoryMessages int

	// TurnTimeout bounds a model call once it no longer follows the caller (default: 5m)
	TurnTimeout time.Duration
}

type chatService struct {
	conversations driven.ConversationStore
	messages      driven.MessageStore
	documents     driven.DocumentStore
	retrieval     driving.RetrievalService
	services      *runtime.Services
	logger        *slog.Logger

	opts        domain.GenerateOptions
	topK        int
	history     int
	turnTimeout time.Duration
}

// NewChatService creates a ChatService
func NewChatService(cfg ChatConfig) driving.ChatService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts := domain.GenerateOptions{Temperature: 0.3, MaxTokens: cfg.MaxTokens}
	if cfg.Temperature != nil {
		opts.Temperature = *cfg.Temperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	timeout := cfg.TurnTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &chatService{
		conversations: cfg.Conversations,
		messages:      cfg.Messages,
		documents:     cfg.Documents,
		retrieval:     cfg.Retrieval,
		services:      cfg.Services,
		logger:        logger,
		opts:          opts,
		topK:          topK,
		history:       max(cfg.HistoryMessages, 0),
		turnTimeout:   timeout,
	}
}

// HandleTurn persists the user message, builds the prompt for the
// conversation mode and starts relaying the model stream.
//
// Errors returned here mean no model call was made, or the stream could not
// be opened. Once the channel is returned the model call is detached from
// ctx: cancelling ctx stops the relay, but the answer is still collected and
// persisted. The channel closes after a done event carrying the stored
// assistant message, or without one if the stream failed.
func (s *chatService) HandleTurn(ctx context.Context, userID, conversationID, text string) (<-chan domain.TurnEvent, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: message content is required", domain.ErrInvalidInput)
	}
	llm := s.services.LLMService()
	if llm == nil {
		return nil, fmt.Errorf("%w: no language model configured", domain.ErrServiceUnavailable)
	}

	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, domain.ErrNotFound
	}

	userMsg := domain.NewMessage(conv.ID, domain.RoleUser, text)
	if err := s.messages.Append(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}

	prompt, err := s.buildPrompt(ctx, conv, userMsg)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.turnTimeout)
	stream, err := llm.Stream(streamCtx, prompt, s.opts)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open model stream: %w", err)
	}

	events := make(chan domain.TurnEvent, 16)
	go func() {
		defer cancel()
		s.relay(ctx, streamCtx, stream, conv, events)
	}()
	return events, nil
}

// buildPrompt assembles the messages sent to the model for one turn.
func (s *chatService) buildPrompt(ctx context.Context, conv *domain.Conversation, userMsg *domain.Message) ([]domain.ChatMessage, error) {
	var (
		system = openSystemPrompt
		user   = userMsg.Content
	)

	if conv.Mode == domain.ModeDocumentQA {
		ids, err := s.documents.CompletedIDs(ctx, conv.ID)
		if err != nil {
			return nil, fmt.Errorf("list completed documents: %w", err)
		}
		if len(ids) == 0 {
			return nil, domain.ErrNoGroundingAvailable
		}
		passages, err := s.retrieval.Retrieve(ctx, userMsg.Content, ids, s.topK)
		if err != nil {
			return nil, fmt.Errorf("retrieve context: %w", err)
		}
		system = groundedSystemPrompt
		user = fmt.Sprintf("Context:\n%s\n\nQuestion: %s", strings.Join(passages, "\n\n"), userMsg.Content)
	}

	prompt := []domain.ChatMessage{{Role: domain.RoleSystem, Content: system}}
	history, err := s.historyFor(ctx, conv, userMsg.ID)
	if err != nil {
		return nil, err
	}
	prompt = append(prompt, history...)
	return append(prompt, domain.ChatMessage{Role: domain.RoleUser, Content: user}), nil
}

// historyFor returns the rolling summary and the messages preceding the current turn.
func (s *chatService) historyFor(ctx context.Context, conv *domain.Conversation, currentID string) ([]domain.ChatMessage, error) {
	if s.history == 0 {
		return nil, nil
	}

	var out []domain.ChatMessage
	if conv.Summary != "" {
		out = append(out, domain.ChatMessage{
			Role:    domain.RoleSystem,
			Content: "Conversation summary:\n" + conv.Summary,
		})
	}

	recent, err := s.messages.Recent(ctx, conv.ID, s.history+1)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	prior := make([]*domain.Message, 0, len(recent))
	for _, m := range recent {
		if m.ID != currentID {
			prior = append(prior, m)
		}
	}
	if len(prior) > s.history {
		prior = prior[len(prior)-s.history:]
	}
	for _, m := range prior {
		out = append(out, domain.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

// completionFragment is one decoded chunk of an OpenAI-compatible stream.
type completionFragment struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *domain.TokenUsage `json:"usage"`
	XGroq *struct {
		Usage *domain.TokenUsage `json:"usage"`
	} `json:"x_groq"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (f *completionFragment) usage() *domain.TokenUsage {
	if f.Usage != nil {
		return f.Usage
	}
	if f.XGroq != nil {
		return f.XGroq.Usage
	}
	return nil
}

// relay reads the stream to its end, forwarding content while the caller is
// still listening, then persists the assistant message.
func (s *chatService) relay(callerCtx, streamCtx context.Context, stream driven.FragmentStream, conv *domain.Conversation, events chan<- domain.TurnEvent) {
	defer close(events)
	defer stream.Close()

	logger := s.logger.With("conversation_id", conv.ID)
	send := func(ev domain.TurnEvent) {
		if callerCtx.Err() != nil {
			return
		}
		select {
		case events <- ev:
		case <-callerCtx.Done():
		}
	}

	var (
		transcript strings.Builder
		meta       = &domain.MessageMetadata{ConversationMode: conv.Mode}
		usageSeen  bool
	)
	for {
		raw, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Warn("model stream failed", "error", err)
			return
		}

		var frag completionFragment
		if err := json.Unmarshal(raw, &frag); err != nil {
			logger.Debug("skipping malformed fragment", "error", err)
			continue
		}
		if frag.Error != nil {
			logger.Warn("model stream reported an error", "error", frag.Error.Message)
			return
		}

		if meta.Model == "" && frag.Model != "" {
			meta.Model = frag.Model
		}
		if u := frag.usage(); u != nil {
			meta.Usage = *u
			usageSeen = true
		}
		if len(frag.Choices) == 0 {
			continue
		}
		choice := frag.Choices[0]
		if choice.FinishReason != "" {
			meta.FinishReason = choice.FinishReason
		}
		if choice.Delta.Content != "" {
			transcript.WriteString(choice.Delta.Content)
			send(domain.TurnEvent{Type: domain.TurnEventToken, Token: choice.Delta.Content})
		}
	}

	reply := domain.NewMessage(conv.ID, domain.RoleAssistant, transcript.String())
	reply.Metadata = meta
	if usageSeen {
		total := meta.Usage.TotalTokens
		reply.TokensUsed = &total
	}
	if err := s.messages.Append(streamCtx, reply); err != nil {
		logger.Error("failed to save assistant message", "error", err)
		return
	}

	if callerCtx.Err() != nil {
		logger.Info("caller left before the answer finished; answer saved",
			"sequence_number", reply.SequenceNumber,
		)
	}
	send(domain.TurnEvent{Type: domain.TurnEventDone, Message: reply})
}

// ClassifyIntent asks the model which conversation mode suits text.
// Labels the model invents fall back to OPEN_CHAT.
func (s *chatService) ClassifyIntent(ctx context.Context, text string) (domain.ConversationMode, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: message content is required", domain.ErrInvalidInput)
	}
	llm := s.services.LLMService()
	if llm == nil {
		return "", fmt.Errorf("%w: no language model configured", domain.ErrServiceUnavailable)
	}

	answer, err := llm.Generate(ctx, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: classifySystemPrompt},
		{Role: domain.RoleUser, Content: text},
	}, domain.GenerateOptions{Temperature: 0.1, MaxTokens: 20})
	if err != nil {
		return "", err
	}

	if mode, ok := domain.ParseConversationMode(answer); ok {
		return mode, nil
	}
	s.logger.Debug("unrecognised intent label", "label", answer)
	return domain.ModeOpenChat, nil
}
