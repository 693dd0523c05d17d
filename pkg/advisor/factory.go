package advisor

import (
	"context"
	"fmt"
)

// Providers lists the supported provider names.
var Providers = []string{"gemini", "openai"}

// NewProvider builds the named provider.
func NewProvider(ctx context.Context, providerName, apiKey, modelName string) (Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured for %s", providerName)
	}
	switch providerName {
	case "gemini":
		return NewGeminiProvider(ctx, apiKey, modelName)
	case "openai":
		return NewOpenAIProvider(apiKey, modelName), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", providerName)
	}
}
