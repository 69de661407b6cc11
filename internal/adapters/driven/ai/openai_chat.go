package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

var _ driven.LLMService = (*OpenAIChat)(nil)

// default chat models per hosted provider
var defaultChatModels = map[domain.AIProvider]string{
	domain.AIProviderGroq:   "llama-3.1-8b-instant",
	domain.AIProviderOpenAI: "gpt-4o-mini",
	domain.AIProviderOllama: "llama3.1",
}

// OpenAIChat talks to any OpenAI-compatible /chat/completions endpoint.
// Stream reads the server-sent events directly so that the raw chunk
// payloads reach the caller untouched; Generate goes through langchaingo.
type OpenAIChat struct {
	baseURL string
	apiKey  string
	model   string

	// streaming responses can run for minutes, so no client timeout
	client *http.Client
	llm    llms.Model
}

// NewOpenAIChat creates a chat backend from settings
func NewOpenAIChat(settings domain.LLMSettings) (*OpenAIChat, error) {
	if settings.Provider.RequiresAPIKey() && settings.APIKey == "" {
		return nil, fmt.Errorf("%w: %s API key is required", domain.ErrInvalidInput, settings.Provider)
	}

	baseURL := strings.TrimSuffix(settings.BaseURL, "/")
	if baseURL == "" {
		baseURL = settings.Provider.DefaultBaseURL()
	}
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base URL required for provider %q", domain.ErrInvalidProvider, settings.Provider)
	}
	model := settings.Model
	if model == "" {
		model = defaultChatModels[settings.Provider]
	}
	token := settings.APIKey
	if token == "" {
		token = "none"
	}

	llm, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(token),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create langchain client: %w", err)
	}

	return &OpenAIChat{
		baseURL: baseURL,
		apiKey:  token,
		model:   model,
		client:  &http.Client{},
		llm:     llm,
	}, nil
}

type chatRequest struct {
	Model         string               `json:"model"`
	Messages      []domain.ChatMessage `json:"messages"`
	Temperature   float64              `json:"temperature"`
	MaxTokens     int                  `json:"max_tokens,omitempty"`
	Stream        bool                 `json:"stream"`
	StreamOptions *streamOptions       `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Stream opens a streaming completion. A non-2xx response is returned as an
// error before any fragment is read.
func (c *OpenAIChat) Stream(ctx context.Context, messages []domain.ChatMessage, opts domain.GenerateOptions) (driven.FragmentStream, error) {
	body, err := json.Marshal(chatRequest{
		Model:         c.model,
		Messages:      messages,
		Temperature:   opts.Temperature,
		MaxTokens:     opts.MaxTokens,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStreamFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: backend returned %s: %s", domain.ErrStreamFailed, resp.Status, strings.TrimSpace(string(msg)))
	}
	return newSSEStream(resp.Body), nil
}

// Generate runs a blocking completion through langchaingo
func (c *OpenAIChat) Generate(ctx context.Context, messages []domain.ChatMessage, opts domain.GenerateOptions) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.MessageContent{
			Role:  chatMessageType(m.Role),
			Parts: []llms.ContentPart{llms.TextPart(m.Content)},
		})
	}

	callOpts := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}

	resp, err := c.llm.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", domain.ErrServiceUnavailable)
	}
	return resp.Choices[0].Content, nil
}

func chatMessageType(role domain.Role) llms.ChatMessageType {
	switch role {
	case domain.RoleSystem:
		return llms.ChatMessageTypeSystem
	case domain.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// Model returns the model name being used
func (c *OpenAIChat) Model() string {
	return c.model
}

// Ping lists models to check the endpoint and credentials
func (c *OpenAIChat) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: models endpoint returned %s", domain.ErrServiceUnavailable, resp.Status)
	}
	return nil
}

// Close releases idle connections
func (c *OpenAIChat) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
