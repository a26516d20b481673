package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/playbookhq/playbook-mcp/internal/retry"
	"github.com/playbookhq/playbook-mcp/pkg/types"
)

// HTTPProvider talks to a remote ANN search service over its JSON API.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPProvider creates a provider for the service at baseURL.
func NewHTTPProvider(baseURL, apiKey string) (*HTTPProvider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: vector service URL not set", types.ErrValidation)
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

func (p *HTTPProvider) IndexSkill(ctx context.Context, pb *types.Playbook) error {
	skill := skillFromPlaybook(pb)

	config := retry.DefaultConfig()
	_, err := retry.Do(ctx, config, func() (struct{}, error) {
		return struct{}{}, p.call(ctx, http.MethodPost, "/v1/skills", skill, nil)
	})
	if err != nil {
		return fmt.Errorf("%w: index skill %s: %v", types.ErrProvider, pb.ID, err)
	}
	return nil
}

func (p *HTTPProvider) RemoveSkill(ctx context.Context, id string) error {
	config := retry.DefaultConfig()
	_, err := retry.Do(ctx, config, func() (struct{}, error) {
		return struct{}{}, p.call(ctx, http.MethodDelete, "/v1/skills/"+url.PathEscape(id), nil, nil)
	})
	if err != nil {
		return fmt.Errorf("%w: remove skill %s: %v", types.ErrProvider, id, err)
	}
	return nil
}

func (p *HTTPProvider) FindRelevantSkills(ctx context.Context, query string, limit int, threshold float64) ([]Match, error) {
	reqBody := map[string]any{
		"query":     query,
		"limit":     limit,
		"threshold": threshold,
	}

	config := retry.DefaultConfig()
	matches, err := retry.Do(ctx, config, func() ([]Match, error) {
		var apiResp struct {
			Results []Match `json:"results"`
		}
		if err := p.call(ctx, http.MethodPost, "/v1/skills/search", reqBody, &apiResp); err != nil {
			return nil, err
		}
		return apiResp.Results, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search skills: %v", types.ErrProvider, err)
	}
	return matches, nil
}

func (p *HTTPProvider) call(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (p *HTTPProvider) Provider() string {
	return ProviderHTTP
}

func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
