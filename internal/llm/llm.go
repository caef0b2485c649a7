// Package llm provides chat completion clients for the supported providers
// and a dispatcher that routes requests per the active configuration.
package llm

import (
	"context"
	"fmt"
	"strings"

	"concierge/internal/config"
	"concierge/internal/errors"
	"concierge/internal/logging"
)

// GeneralKnowledgeNote is appended to replies that were generated without
// knowledge base grounding.
const GeneralKnowledgeNote = "I'm answering based on my general knowledge."

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"` // system, user or assistant
	Content string `json:"content"`
}

// Request is a provider-independent chat completion request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Result is the outcome of a generation attempt. A failed attempt carries a
// user-presentable Error and Success false rather than a Go error, so
// callers can degrade gracefully.
type Result struct {
	Success  bool
	Content  string
	Provider string
	Model    string
	Error    string
}

// Client generates chat completions against one provider.
type Client interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// NewClient builds the provider client for cfg.
func NewClient(cfg config.LLMConfig) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return newOpenAIClient(cfg.APIKey, cfg.BaseURL), nil
	case "azure":
		return newAzureClient(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "anthropic":
		return newAnthropicClient(cfg.APIKey), nil
	case "google":
		return newGoogleClient(cfg.APIKey), nil
	case "ollama":
		return newOllamaClient(cfg.BaseURL), nil
	case "custom":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("custom provider requires a base URL")
		}
		return newOpenAIClient(cfg.APIKey, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// ConfigSource yields the active LLM configuration.
type ConfigSource interface {
	LLM(ctx context.Context) config.LLMConfig
}

// Dispatcher routes generation requests to the configured provider.
type Dispatcher struct {
	configs   ConfigSource
	newClient func(config.LLMConfig) (Client, error)
	retry     errors.RetryConfig
	log       logging.Logger
}

// NewDispatcher creates a dispatcher reading provider settings from configs.
func NewDispatcher(configs ConfigSource) *Dispatcher {
	retry := errors.DefaultRetryConfig()
	retry.MaxAttempts = 2
	return &Dispatcher{
		configs:   configs,
		newClient: NewClient,
		retry:     retry,
		log:       logging.NewComponentLogger("llm"),
	}
}

const defaultSystemPrompt = "You are a helpful assistant for a small business. " +
	"Answer briefly and accurately. If you do not know something, say so " +
	"instead of guessing. Never invent prices, dates or policies."

// BuildMessages assembles the chat transcript with the default persona: the
// system prompt, the retrieved context when present, then the user's message.
func BuildMessages(userMessage, kbContext string) []Message {
	return BuildMessagesWithPrompt(defaultSystemPrompt, userMessage, kbContext)
}

// BuildMessagesWithPrompt is BuildMessages with a caller-supplied system
// prompt, as configured per deployment. An empty prompt falls back to the
// default persona.
func BuildMessagesWithPrompt(systemPrompt, userMessage, kbContext string) []Message {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	messages := []Message{{Role: "system", Content: systemPrompt}}
	if kbContext != "" {
		messages = append(messages, Message{
			Role:    "system",
			Content: "Use this context to answer the user's question:\n\n" + kbContext,
		})
	}
	messages = append(messages, Message{Role: "user", Content: userMessage})
	return messages
}

// Generate produces a reply to userMessage, optionally grounded in
// kbContext. All failures come back as Result with Success false.
func (d *Dispatcher) Generate(ctx context.Context, userMessage, kbContext string) Result {
	cfg := d.configs.LLM(ctx)
	if !cfg.Enabled {
		return Result{Provider: cfg.Provider, Model: cfg.Model, Error: "LLM responses are disabled"}
	}

	client, err := d.newClient(cfg)
	if err != nil {
		d.log.Error("client setup failed: %v", err)
		return Result{Provider: cfg.Provider, Model: cfg.Model, Error: err.Error()}
	}

	req := Request{
		Model:       cfg.Model,
		Messages:    BuildMessagesWithPrompt(cfg.SystemPrompt, userMessage, kbContext),
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}

	content, err := errors.RetryWithResult(ctx, d.retry, func(ctx context.Context) (string, error) {
		return client.Generate(ctx, req)
	}, d.log)
	if err != nil {
		d.log.Warn("generation via %s failed: %v", client.Name(), err)
		return Result{Provider: cfg.Provider, Model: cfg.Model, Error: "The assistant is temporarily unavailable."}
	}

	return Result{
		Success:  true,
		Content:  strings.TrimSpace(content),
		Provider: cfg.Provider,
		Model:    cfg.Model,
	}
}
