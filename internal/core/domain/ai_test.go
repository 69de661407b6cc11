package domain

import "testing"

func TestAIProvider_RequiresAPIKey(t *testing.T) {
	tests := []struct {
		provider AIProvider
		want     bool
	}{
		{AIProviderOpenAI, true},
		{AIProviderGroq, true},
		{AIProviderOllama, false},
		{AIProviderHash, false},
	}
	for _, tt := range tests {
		if got := tt.provider.RequiresAPIKey(); got != tt.want {
			t.Errorf("%s.RequiresAPIKey() = %v, want %v", tt.provider, got, tt.want)
		}
	}
}

func TestEmbeddingSettings_IsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		settings EmbeddingSettings
		want     bool
	}{
		{"empty", EmbeddingSettings{}, false},
		{"openai without key", EmbeddingSettings{Provider: AIProviderOpenAI}, false},
		{"openai with key", EmbeddingSettings{Provider: AIProviderOpenAI, APIKey: "sk"}, true},
		{"ollama without key", EmbeddingSettings{Provider: AIProviderOllama}, true},
		{"hash", EmbeddingSettings{Provider: AIProviderHash}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.settings.IsConfigured(); got != tt.want {
				t.Errorf("IsConfigured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLLMSettings_IsConfigured(t *testing.T) {
	if (&LLMSettings{Provider: AIProviderHash}).IsConfigured() {
		t.Error("hash provider cannot serve chat")
	}
	if !(&LLMSettings{Provider: AIProviderGroq, APIKey: "gsk"}).IsConfigured() {
		t.Error("expected groq with key to be configured")
	}
	if (&LLMSettings{Provider: AIProviderGroq}).IsConfigured() {
		t.Error("expected groq without key to be unconfigured")
	}
}

func TestAIProvider_DefaultBaseURL(t *testing.T) {
	if AIProviderGroq.DefaultBaseURL() != "https://api.groq.com/openai/v1" {
		t.Errorf("unexpected groq url %s", AIProviderGroq.DefaultBaseURL())
	}
	if AIProviderHash.DefaultBaseURL() != "" {
		t.Error("hash provider has no endpoint")
	}
}
