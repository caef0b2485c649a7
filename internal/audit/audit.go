// Package audit provides PII-safe audit logging for runtime actions.
//
// Events fan out to two best-effort sinks (a durable store and a JSON-lines
// file) plus the process logger. Sink failures are logged and swallowed;
// auditing never breaks a conversation turn.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"concierge/internal/logging"
)

// Status values recorded on audit events.
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusException = "exception"
	StatusInitiated = "initiated"
	StatusLogged    = "logged"
)

// Event is one audit record. It never carries raw PII; callers pass hashes
// produced by HashPII or rely on metadata sanitization.
type Event struct {
	Timestamp      time.Time      `json:"timestamp"`
	Action         string         `json:"action"`
	ConversationID string         `json:"conversation_id,omitempty"`
	BookingID      string         `json:"booking_id,omitempty"`
	MeetingID      string         `json:"meeting_id,omitempty"`
	Status         string         `json:"status,omitempty"`
	DataHash       string         `json:"data_hash,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// Sink persists audit events.
type Sink interface {
	Write(ctx context.Context, event Event) error
	Close() error
}

// Logger fans audit events out to the configured sinks.
type Logger struct {
	durable Sink // database or nil
	file    Sink // JSON-lines file or nil
	log     logging.Logger
}

// Option configures a Logger.
type Option func(*Logger)

// WithDurableSink attaches the durable (database) sink.
func WithDurableSink(sink Sink) Option {
	return func(l *Logger) { l.durable = sink }
}

// WithFileSink attaches the append-only file sink.
func WithFileSink(sink Sink) Option {
	return func(l *Logger) { l.file = sink }
}

// NewLogger creates an audit logger. With no options events still reach the
// process logger.
func NewLogger(opts ...Option) *Logger {
	l := &Logger{log: logging.NewComponentLogger("audit")}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LogAction records an action event to all sinks in parallel, best effort.
func (l *Logger) LogAction(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.Metadata = SanitizeMetadata(event.Metadata)

	var g errgroup.Group
	if l.durable != nil {
		g.Go(func() error {
			if err := l.durable.Write(ctx, event); err != nil {
				l.log.Error("durable audit write failed: %v", err)
			}
			return nil
		})
	}
	if l.file != nil {
		g.Go(func() error {
			if err := l.file.Write(ctx, event); err != nil {
				l.log.Error("file audit write failed: %v", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if event.Error != "" {
		l.log.Error("AUDIT: %s | status=%s | conv=%s | error=%s",
			event.Action, event.Status, event.ConversationID, event.Error)
	} else {
		l.log.Info("AUDIT: %s | status=%s | conv=%s",
			event.Action, event.Status, event.ConversationID)
	}
}

// Interaction is the high-volume per-turn analytics record. It carries
// aggregate counts only, never message content.
type Interaction struct {
	ConversationID string
	Intent         string
	Confidence     float64
	EntityCount    int
	SlotsFilled    int
}

// LogInteraction records a turn interaction to the file sink only.
func (l *Logger) LogInteraction(ctx context.Context, in Interaction) {
	event := Event{
		Timestamp:      time.Now().UTC(),
		Action:         "interaction",
		ConversationID: in.ConversationID,
		Status:         StatusLogged,
		Metadata: map[string]any{
			"intent":       in.Intent,
			"confidence":   round3(in.Confidence),
			"entity_count": in.EntityCount,
			"slots_filled": in.SlotsFilled,
		},
	}
	if l.file != nil {
		if err := l.file.Write(ctx, event); err != nil {
			l.log.Error("interaction log write failed: %v", err)
		}
	}
}

// Close shuts down all sinks.
func (l *Logger) Close() error {
	if l.durable != nil {
		_ = l.durable.Close()
	}
	if l.file != nil {
		_ = l.file.Close()
	}
	return nil
}

func round3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}

// HashPII returns the first 16 hex characters of SHA-256 over value.
func HashPII(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:16]
}

var (
	// Metadata keys hashed instead of stored.
	piiKeys = map[string]bool{
		"email":          true,
		"phone":          true,
		"name":           true,
		"customer_name":  true,
		"attendee_email": true,
	}
	// Metadata key fragments dropped entirely.
	secretFragments = []string{"password", "token", "secret", "key"}
)

// SanitizeMetadata drops secret-bearing keys and replaces PII values with
// their hashes under a "<key>_hash" name.
func SanitizeMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	sanitized := make(map[string]any, len(metadata))
	for key, value := range metadata {
		lower := strings.ToLower(key)
		if containsAny(lower, secretFragments) {
			continue
		}
		if piiKeys[lower] && value != nil {
			if s, ok := value.(string); ok && s != "" {
				sanitized[key+"_hash"] = HashPII(s)
				continue
			}
		}
		sanitized[key] = value
	}
	if len(sanitized) == 0 {
		return nil
	}
	return sanitized
}

func containsAny(s string, fragments []string) bool {
	for _, fragment := range fragments {
		if strings.Contains(s, fragment) {
			return true
		}
	}
	return false
}
