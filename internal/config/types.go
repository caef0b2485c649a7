// Package config provides task and LLM configuration with layered caching.
//
// Lookups resolve through a local in-process cache, a shared Redis cache, the
// admin API, and finally compiled-in defaults, in that order. Any layer
// failing falls through to the next so the runtime keeps answering even when
// the admin service is down.
package config

import (
	"strings"
	"time"
)

// CacheTTL bounds how stale a cached task config may get.
const CacheTTL = 5 * time.Minute

// Task keys understood by the manager.
const (
	TaskBookService     = "book_service"
	TaskScheduleMeeting = "schedule_meeting"
	TaskCancelBooking   = "cancel_booking"
	TaskRescheduleBook  = "reschedule_booking"
	TaskCheckBooking    = "check_booking"
)

// BusinessHours is the local-clock service window, HH:MM, start inclusive
// and end exclusive. The admin API serves it as a nested object.
type BusinessHours struct {
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

// BookingTaskConfig controls the service booking flow.
type BookingTaskConfig struct {
	Enabled            bool          `json:"enabled"`
	Services           []string      `json:"services" validate:"min=1"`
	AdvanceBookingDays int           `json:"advance_booking_days" validate:"gt=0"`
	Hours              BusinessHours `json:"business_hours"`
	BlockedDates       []string      `json:"blocked_dates,omitempty"` // ISO dates, no bookings taken
	RequiredFields     []string      `json:"required_fields,omitempty"`
	OptionalFields     []string      `json:"optional_fields,omitempty"`
}

// DateBlocked reports whether an ISO date is on the blocked list.
func (c BookingTaskConfig) DateBlocked(date string) bool {
	for _, blocked := range c.BlockedDates {
		if blocked == date {
			return true
		}
	}
	return false
}

// MeetingTaskConfig controls the meeting scheduling flow.
type MeetingTaskConfig struct {
	Enabled        bool          `json:"enabled"`
	Hours          BusinessHours `json:"business_hours"`
	Durations      []string      `json:"durations" validate:"min=1"`
	MeetingTypes   []string      `json:"meeting_types" validate:"min=1"`
	RequiredFields []string      `json:"required_fields,omitempty"`
}

// CancelTaskConfig controls booking cancellation.
type CancelTaskConfig struct {
	Enabled            bool   `json:"enabled"`
	CancellationPolicy string `json:"cancellation_policy"`
}

// RescheduleTaskConfig controls booking rescheduling.
type RescheduleTaskConfig struct {
	Enabled        bool `json:"enabled"`
	MaxReschedules int  `json:"max_reschedules" validate:"gt=0"`
}

// CheckTaskConfig controls booking status lookups.
type CheckTaskConfig struct {
	Enabled bool `json:"enabled"`
}

// LLMConfig holds the active LLM provider settings served by the admin API.
type LLMConfig struct {
	Provider            string  `json:"provider" validate:"required"`
	Model               string  `json:"model" validate:"required"`
	APIKey              string  `json:"api_key"`
	BaseURL             string  `json:"base_url"`
	Temperature         float64 `json:"temperature" validate:"gte=0,lte=2"`
	MaxTokens           int     `json:"max_tokens" validate:"gte=50"`
	SystemPrompt        string  `json:"system_prompt"`
	UseKnowledgeBase    bool    `json:"use_knowledge_base"`
	FallbackToLLM       bool    `json:"fallback_to_llm"`
	ConfidenceThreshold float64 `json:"confidence_threshold" validate:"gte=0,lte=1"`
	Enabled             bool    `json:"enabled"`
}

// MaskedView is the API-key-safe projection of an LLMConfig.
type MaskedView struct {
	Provider            string  `json:"provider"`
	Model               string  `json:"model"`
	APIKey              string  `json:"api_key"`
	APIKeySet           bool    `json:"api_key_set"`
	BaseURL             string  `json:"base_url,omitempty"`
	Temperature         float64 `json:"temperature"`
	MaxTokens           int     `json:"max_tokens"`
	SystemPrompt        string  `json:"system_prompt,omitempty"`
	UseKnowledgeBase    bool    `json:"use_knowledge_base"`
	FallbackToLLM       bool    `json:"fallback_to_llm"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	Enabled             bool    `json:"enabled"`
}

// Masked returns a copy safe to log or return from an API.
func (c LLMConfig) Masked() MaskedView {
	return MaskedView{
		Provider:            c.Provider,
		Model:               c.Model,
		APIKey:              MaskAPIKey(c.APIKey),
		APIKeySet:           c.APIKey != "",
		BaseURL:             c.BaseURL,
		Temperature:         c.Temperature,
		MaxTokens:           c.MaxTokens,
		SystemPrompt:        c.SystemPrompt,
		UseKnowledgeBase:    c.UseKnowledgeBase,
		FallbackToLLM:       c.FallbackToLLM,
		ConfidenceThreshold: c.ConfidenceThreshold,
		Enabled:             c.Enabled,
	}
}

// MaskAPIKey keeps the first and last four characters and stars the rest.
// Short keys are fully starred.
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// DefaultBookingConfig returns the compiled-in booking defaults.
func DefaultBookingConfig() BookingTaskConfig {
	return BookingTaskConfig{
		Enabled:            true,
		Services:           []string{"consultation", "demo", "support"},
		AdvanceBookingDays: 90,
		Hours:              BusinessHours{Start: "09:00", End: "18:00"},
	}
}

// DefaultMeetingConfig returns the compiled-in meeting defaults.
func DefaultMeetingConfig() MeetingTaskConfig {
	return MeetingTaskConfig{
		Enabled:      true,
		Hours:        BusinessHours{Start: "09:00", End: "17:00"},
		Durations:    []string{"15 minutes", "30 minutes", "1 hour"},
		MeetingTypes: []string{"Sales call", "Technical consultation", "General inquiry"},
	}
}

// DefaultCancelConfig returns the compiled-in cancellation defaults.
func DefaultCancelConfig() CancelTaskConfig {
	return CancelTaskConfig{
		Enabled:            true,
		CancellationPolicy: "Bookings can be cancelled up to 24 hours before the scheduled time.",
	}
}

// DefaultRescheduleConfig returns the compiled-in reschedule defaults.
func DefaultRescheduleConfig() RescheduleTaskConfig {
	return RescheduleTaskConfig{
		Enabled:        true,
		MaxReschedules: 3,
	}
}

// DefaultCheckConfig returns the compiled-in status check defaults.
func DefaultCheckConfig() CheckTaskConfig {
	return CheckTaskConfig{Enabled: true}
}

// DefaultLLMConfig returns a disabled placeholder used when the admin API is
// unreachable and nothing is cached.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:            "openai",
		Model:               "gpt-4o-mini",
		Temperature:         0.7,
		MaxTokens:           500,
		UseKnowledgeBase:    true,
		FallbackToLLM:       true,
		ConfidenceThreshold: 0.6,
		Enabled:             false,
	}
}

// BotConfig is the assistant's identity and canned messaging, served by the
// admin API and loaded at startup.
type BotConfig struct {
	Name            string        `json:"name" validate:"required"`
	BusinessName    string        `json:"business_name"`
	WelcomeMessage  string        `json:"welcome_message"`
	FallbackMessage string        `json:"fallback_message"`
	HandoffMessage  string        `json:"handoff_message"`
	Timezone        string        `json:"timezone"`
	Hours           BusinessHours `json:"business_hours"`
}

// DefaultBotConfig returns the compiled-in bot identity.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		Name:            "Concierge",
		BusinessName:    "our business",
		WelcomeMessage:  "Hi! I can help you book services, schedule meetings and answer questions. What can I do for you?",
		FallbackMessage: "I'm not quite sure what you're after. Could you rephrase that?",
		HandoffMessage:  "Let me connect you with a member of our team. One moment please.",
		Timezone:        "UTC",
		Hours:           BusinessHours{Start: "09:00", End: "18:00"},
	}
}
