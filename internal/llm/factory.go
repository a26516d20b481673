package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/playbookhq/playbook-mcp/pkg/types"
)

// Environment variables for provider selection
const (
	EnvProvider  = "PLAYBOOK_LLM_PROVIDER"
	EnvBaseURL   = "PLAYBOOK_LLM_BASE_URL"
	EnvModel     = "PLAYBOOK_LLM_MODEL"
	EnvOpenAIKey = "OPENAI_API_KEY"
)

// ProviderOpenAI names the OpenAI-compatible chat provider.
const ProviderOpenAI = "openai"

// Unavailable returns a Client whose calls always fail with a provider
// error. Used when no provider is configured so extraction-dependent
// features degrade instead of blocking startup.
func Unavailable(reason string) Client {
	return unavailableClient{reason: reason}
}

type unavailableClient struct {
	reason string
}

func (u unavailableClient) Chat(context.Context, []Message) (string, error) {
	return "", fmt.Errorf("%w: llm unavailable: %s", types.ErrProvider, u.reason)
}

func (u unavailableClient) Close() error { return nil }

// NewFromEnv builds an LLM client from environment variables.
// PLAYBOOK_LLM_PROVIDER selects the provider (only "openai" today);
// unset defaults to openai when OPENAI_API_KEY is present.
func NewFromEnv() (Client, error) {
	provider := strings.ToLower(os.Getenv(EnvProvider))
	apiKey := os.Getenv(EnvOpenAIKey)
	baseURL := os.Getenv(EnvBaseURL)
	model := os.Getenv(EnvModel)

	switch provider {
	case ProviderOpenAI, "":
		return NewOpenAIClient(apiKey, baseURL, model)
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %s", types.ErrValidation, provider)
	}
}
