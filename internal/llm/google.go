package llm

import (
	"context"
	"fmt"
)

const googleBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// googleClient speaks the Gemini generateContent protocol. System messages
// become the system instruction and assistant turns map to the model role.
type googleClient struct {
	baseClient
	apiKey  string
	baseURL string
}

func newGoogleClient(apiKey string) *googleClient {
	return &googleClient{
		baseClient: newBaseClient(hostedChatTimeout),
		apiKey:     apiKey,
		baseURL:    googleBaseURL,
	}
}

func (c *googleClient) Name() string { return "google" }

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googleRequest struct {
	SystemInstruction *googleContent  `json:"system_instruction,omitempty"`
	Contents          []googleContent `json:"contents"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type googleResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
}

func (c *googleClient) Generate(ctx context.Context, req Request) (string, error) {
	var payload googleRequest
	payload.GenerationConfig.Temperature = req.Temperature
	payload.GenerationConfig.MaxOutputTokens = req.MaxTokens

	var systemParts []googlePart
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			systemParts = append(systemParts, googlePart{Text: m.Content})
		case "assistant":
			payload.Contents = append(payload.Contents, googleContent{Role: "model", Parts: []googlePart{{Text: m.Content}}})
		default:
			payload.Contents = append(payload.Contents, googleContent{Role: "user", Parts: []googlePart{{Text: m.Content}}})
		}
	}
	if len(systemParts) > 0 {
		payload.SystemInstruction = &googleContent{Parts: systemParts}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, req.Model, c.apiKey)

	var resp googleResponse
	if err := c.postJSON(ctx, url, nil, payload, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty generation response")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}
