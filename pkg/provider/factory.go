package provider

import (
	"fmt"

	"github.com/harun/coda/pkg/conversation"
)

// New creates a transport for the named provider.
func New(name, apiKey string) (conversation.Transport, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required for provider %s", name)
	}

	switch name {
	case "anthropic":
		return NewAnthropicTransport(apiKey), nil
	case "openai":
		return NewOpenAITransport(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}
