package vector

import (
	"fmt"
	"os"
	"strings"

	"github.com/playbookhq/playbook-mcp/pkg/types"
)

// Environment variables for provider selection
const (
	EnvProvider = "PLAYBOOK_VECTOR_PROVIDER"
	EnvURL      = "PLAYBOOK_VECTOR_URL"
	EnvAPIKey   = "PLAYBOOK_VECTOR_API_KEY"
)

// NewFromEnv builds a vector provider from environment variables.
// Priority:
// 1. PLAYBOOK_VECTOR_PROVIDER (http, local)
// 2. PLAYBOOK_VECTOR_URL set implies http
// 3. Default to the in-process local provider
func NewFromEnv() (Provider, error) {
	provider := strings.ToLower(os.Getenv(EnvProvider))
	baseURL := os.Getenv(EnvURL)
	apiKey := os.Getenv(EnvAPIKey)

	switch provider {
	case ProviderHTTP:
		return NewHTTPProvider(baseURL, apiKey)
	case ProviderLocal:
		return NewLocalProvider(), nil
	case "":
		if baseURL != "" {
			return NewHTTPProvider(baseURL, apiKey)
		}
		return NewLocalProvider(), nil
	default:
		return nil, fmt.Errorf("%w: unknown vector provider %s", types.ErrValidation, provider)
	}
}
