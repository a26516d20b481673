package integration

import (
	"context"
	"sync"

	"github.com/playbookhq/playbook-mcp/internal/llm"
)

// scriptedClient returns canned responses in order, cycling on the last one.
// It stands in for a chat provider so integration tests run offline.
type scriptedClient struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func newScriptedClient(responses ...string) *scriptedClient {
	return &scriptedClient{responses: responses}
}

func (c *scriptedClient) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.responses) == 0 {
		return "{}", nil
	}
	idx := c.calls - 1
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	return c.responses[idx], nil
}

func (c *scriptedClient) Close() error { return nil }

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
