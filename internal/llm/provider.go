package llm

import (
	"context"
	"os"
	"strings"
)

// Provider identifies an inference provider.
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
)

// ParseModelString parses a model string into provider and model name.
//
// Supported formats:
//
//	"gemini/gemini-2.5-flash"  → (gemini, "gemini-2.5-flash")
//	"anthropic/claude-sonnet"  → (anthropic, "claude-sonnet")
//	"claude-sonnet-4-20250514" → (anthropic, same)
//	"gemini-2.5-flash"         → (gemini, same)
//	anything else              → (gemini, same)
func ParseModelString(model string) (Provider, string) {
	if i := strings.Index(model, "/"); i > 0 {
		prefix := strings.ToLower(model[:i])
		name := model[i+1:]
		switch prefix {
		case "gemini":
			return ProviderGemini, name
		case "anthropic":
			return ProviderAnthropic, name
		}
	}

	if strings.HasPrefix(strings.ToLower(model), "claude") {
		return ProviderAnthropic, model
	}
	return ProviderGemini, model
}

// NewClientForModel creates the appropriate client for the model
// string. Gemini clients use the supplied API key, falling back to the
// GEMINI_API_KEY environment variable when it is empty; Anthropic
// clients read ANTHROPIC_API_KEY through the SDK directly.
func NewClientForModel(ctx context.Context, model, geminiAPIKey string) (Client, string, error) {
	provider, modelName := ParseModelString(model)

	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(), modelName, nil
	default:
		if geminiAPIKey == "" {
			geminiAPIKey = os.Getenv("GEMINI_API_KEY")
		}
		client, err := NewGeminiClient(ctx, geminiAPIKey)
		if err != nil {
			return nil, "", err
		}
		return client, modelName, nil
	}
}
