package llm

import (
	"context"
	"fmt"
	"strings"
)

const (
	anthropicBaseURL    = "https://api.anthropic.com/v1"
	anthropicAPIVersion = "2023-06-01"
)

// anthropicClient speaks the Anthropic messages protocol. System messages
// move into the dedicated system parameter.
type anthropicClient struct {
	baseClient
	apiKey  string
	baseURL string
}

func newAnthropicClient(apiKey string) *anthropicClient {
	return &anthropicClient{
		baseClient: newBaseClient(hostedChatTimeout),
		apiKey:     apiKey,
		baseURL:    anthropicBaseURL,
	}
}

func (c *anthropicClient) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *anthropicClient) Generate(ctx context.Context, req Request) (string, error) {
	var system []string
	var chat []Message
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		chat = append(chat, m)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	payload := anthropicRequest{
		Model:       req.Model,
		System:      strings.Join(system, "\n"),
		Messages:    chat,
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicAPIVersion,
	}

	var resp anthropicResponse
	if err := c.postJSON(ctx, c.baseURL+"/messages", headers, payload, &resp); err != nil {
		return "", err
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text block in response")
}
