package domain

// AIProvider identifies an embedding or language-model backend
type AIProvider string

const (
	AIProviderOpenAI AIProvider = "openai"
	AIProviderGroq   AIProvider = "groq"
	AIProviderOllama AIProvider = "ollama"

	// AIProviderHash is the offline feature-hashing embedder. Embedding only.
	AIProviderHash AIProvider = "hash"
)

// EmbeddingSettings configures the embedding service
type EmbeddingSettings struct {
	Provider   AIProvider `json:"provider"`
	Model      string     `json:"model"`
	APIKey     string     `json:"-"` // Never serialize to JSON
	BaseURL    string     `json:"base_url,omitempty"`
	Dimensions int        `json:"dimensions,omitempty"`

	// RateLimit caps embedding requests per second. Zero disables limiting.
	RateLimit float64 `json:"rate_limit,omitempty"`
}

// IsConfigured returns true if embedding settings are properly configured
func (e *EmbeddingSettings) IsConfigured() bool {
	if e.Provider == "" {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings configures the chat-completion backend
type LLMSettings struct {
	Provider    AIProvider `json:"provider"`
	Model       string     `json:"model"`
	APIKey      string     `json:"-"` // Never serialize to JSON
	BaseURL     string     `json:"base_url,omitempty"`
	Temperature float64    `json:"temperature"`
	MaxTokens   int        `json:"max_tokens"`
}

// IsConfigured returns true if LLM settings are properly configured
func (l *LLMSettings) IsConfigured() bool {
	if l.Provider == "" || l.Provider == AIProviderHash {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// RequiresAPIKey returns true if this provider requires an API key
func (p AIProvider) RequiresAPIKey() bool {
	switch p {
	case AIProviderOllama, AIProviderHash:
		return false
	default:
		return true
	}
}

// DefaultBaseURL returns the OpenAI-compatible endpoint of a hosted provider
func (p AIProvider) DefaultBaseURL() string {
	switch p {
	case AIProviderOpenAI:
		return "https://api.openai.com/v1"
	case AIProviderGroq:
		return "https://api.groq.com/openai/v1"
	case AIProviderOllama:
		return "http://localhost:11434/v1"
	default:
		return ""
	}
}
