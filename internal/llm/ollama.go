package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	ollamaDefaultBaseURL = "http://localhost:11434"
	ollamaPullTimeout    = 600 * time.Second
)

// ollamaClient speaks to a local Ollama server. Before the first chat it
// verifies the model is present and pulls it if not.
type ollamaClient struct {
	baseClient
	pull    baseClient // longer timeout for model downloads
	baseURL string
}

func newOllamaClient(baseURL string) *ollamaClient {
	if baseURL == "" {
		baseURL = ollamaDefaultBaseURL
	}
	return &ollamaClient{
		baseClient: newBaseClient(localChatTimeout),
		pull:       newBaseClient(ollamaPullTimeout),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

func (c *ollamaClient) Name() string { return "ollama" }

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

func (c *ollamaClient) Generate(ctx context.Context, req Request) (string, error) {
	if err := c.ensureModel(ctx, req.Model); err != nil {
		return "", err
	}

	payload := ollamaChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   false,
	}
	payload.Options.Temperature = req.Temperature
	payload.Options.NumPredict = req.MaxTokens

	var resp ollamaChatResponse
	if err := c.postJSON(ctx, c.baseURL+"/api/chat", nil, payload, &resp); err != nil {
		return "", err
	}
	if resp.Message.Content == "" {
		return "", fmt.Errorf("empty chat response")
	}
	return resp.Message.Content, nil
}

// ensureModel checks the local model list and pulls the model when missing.
func (c *ollamaClient) ensureModel(ctx context.Context, model string) error {
	var tags ollamaTagsResponse
	if err := c.getJSON(ctx, c.baseURL+"/api/tags", nil, &tags); err != nil {
		return fmt.Errorf("ollama not reachable: %w", err)
	}
	for _, m := range tags.Models {
		if m.Name == model || strings.TrimSuffix(m.Name, ":latest") == model {
			return nil
		}
	}

	if err := c.pull.postJSON(ctx, c.baseURL+"/api/pull",
		nil, map[string]any{"name": model, "stream": false}, nil); err != nil {
		return fmt.Errorf("pull model %s: %w", model, err)
	}
	return nil
}
