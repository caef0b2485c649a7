package llm

import (
	"context"
	"fmt"
	"strings"
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// openAIClient speaks the OpenAI chat completions protocol. It also serves
// OpenAI-compatible endpoints configured as the "custom" provider.
type openAIClient struct {
	baseClient
	apiKey  string
	baseURL string
}

func newOpenAIClient(apiKey, baseURL string) *openAIClient {
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	return &openAIClient{
		baseClient: newBaseClient(hostedChatTimeout),
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

func (c *openAIClient) Name() string { return "openai" }

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *openAIClient) Generate(ctx context.Context, req Request) (string, error) {
	payload := openAIRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	var resp openAIResponse
	if err := c.postJSON(ctx, c.baseURL+"/chat/completions", headers, payload, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// azureClient speaks the Azure OpenAI dialect: deployment-scoped URLs with
// an api-version query and api-key header.
type azureClient struct {
	baseClient
	apiKey     string
	endpoint   string
	deployment string
}

const azureAPIVersion = "2024-02-15-preview"

func newAzureClient(apiKey, endpoint, deployment string) *azureClient {
	return &azureClient{
		baseClient: newBaseClient(hostedChatTimeout),
		apiKey:     apiKey,
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		deployment: deployment,
	}
}

func (c *azureClient) Name() string { return "azure" }

func (c *azureClient) Generate(ctx context.Context, req Request) (string, error) {
	payload := openAIRequest{
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		c.endpoint, c.deployment, azureAPIVersion)
	headers := map[string]string{"api-key": c.apiKey}

	var resp openAIResponse
	if err := c.postJSON(ctx, url, headers, payload, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}
