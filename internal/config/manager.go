package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"concierge/internal/logging"
)

const (
	redisKeyPrefix  = "config:"
	adminAPITimeout = 5 * time.Second
)

// Manager resolves task and LLM configuration through the cache layers.
type Manager struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	redis    *redis.Client
	validate *validator.Validate
	log      logging.Logger
	clock    func() time.Time

	mu    sync.Mutex
	local map[string]localEntry
}

type localEntry struct {
	data    []byte
	expires time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRedis attaches the shared Redis cache layer.
func WithRedis(client *redis.Client) ManagerOption {
	return func(m *Manager) { m.redis = client }
}

// WithHTTPClient overrides the admin API HTTP client.
func WithHTTPClient(client *http.Client) ManagerOption {
	return func(m *Manager) { m.http = client }
}

// WithAPIKey sets the key sent to the admin API.
func WithAPIKey(key string) ManagerOption {
	return func(m *Manager) { m.apiKey = key }
}

// NewManager creates a config manager against the admin API at baseURL.
// An empty baseURL disables the remote layer; defaults still apply.
func NewManager(baseURL string, opts ...ManagerOption) *Manager {
	m := &Manager{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: adminAPITimeout},
		validate: validator.New(),
		log:      logging.NewComponentLogger("config"),
		clock:    time.Now,
		local:    make(map[string]localEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Booking returns the booking task config, falling back to defaults.
func (m *Manager) Booking(ctx context.Context) BookingTaskConfig {
	cfg := DefaultBookingConfig()
	m.resolve(ctx, TaskBookService, "/api/admin/config/tasks/book_service", &cfg, func() {
		cfg = DefaultBookingConfig()
	})
	return cfg
}

// Meeting returns the meeting task config, falling back to defaults.
func (m *Manager) Meeting(ctx context.Context) MeetingTaskConfig {
	cfg := DefaultMeetingConfig()
	m.resolve(ctx, TaskScheduleMeeting, "/api/admin/config/tasks/schedule_meeting", &cfg, func() {
		cfg = DefaultMeetingConfig()
	})
	return cfg
}

// Cancel returns the cancellation task config, falling back to defaults.
func (m *Manager) Cancel(ctx context.Context) CancelTaskConfig {
	cfg := DefaultCancelConfig()
	m.resolve(ctx, TaskCancelBooking, "/api/admin/config/tasks/cancel_booking", &cfg, func() {
		cfg = DefaultCancelConfig()
	})
	return cfg
}

// Reschedule returns the reschedule task config, falling back to defaults.
func (m *Manager) Reschedule(ctx context.Context) RescheduleTaskConfig {
	cfg := DefaultRescheduleConfig()
	m.resolve(ctx, TaskRescheduleBook, "/api/admin/config/tasks/reschedule_booking", &cfg, func() {
		cfg = DefaultRescheduleConfig()
	})
	return cfg
}

// Check returns the status check task config, falling back to defaults.
func (m *Manager) Check(ctx context.Context) CheckTaskConfig {
	cfg := DefaultCheckConfig()
	m.resolve(ctx, TaskCheckBooking, "/api/admin/config/tasks/check_booking", &cfg, func() {
		cfg = DefaultCheckConfig()
	})
	return cfg
}

// Bot returns the assistant identity and canned messaging.
func (m *Manager) Bot(ctx context.Context) BotConfig {
	cfg := DefaultBotConfig()
	m.resolve(ctx, "bot", "/api/admin/config/bot", &cfg, func() {
		cfg = DefaultBotConfig()
	})
	return cfg
}

// llmEnvelope is the admin API's wrapper around the LLM snapshot.
type llmEnvelope struct {
	Config LLMConfig `json:"config"`
}

// LLM returns the active LLM provider config, falling back to a disabled
// default when nothing is cached and the admin API is unreachable.
func (m *Manager) LLM(ctx context.Context) LLMConfig {
	envelope := llmEnvelope{Config: DefaultLLMConfig()}
	m.resolve(ctx, "llm", "/api/llm/config", &envelope, func() {
		envelope.Config = DefaultLLMConfig()
	})
	return envelope.Config
}

// TaskEnabled reports whether the named task is switched on.
func (m *Manager) TaskEnabled(ctx context.Context, task string) bool {
	switch task {
	case TaskBookService:
		return m.Booking(ctx).Enabled
	case TaskScheduleMeeting:
		return m.Meeting(ctx).Enabled
	case TaskCancelBooking:
		return m.Cancel(ctx).Enabled
	case TaskRescheduleBook:
		return m.Reschedule(ctx).Enabled
	case TaskCheckBooking:
		return m.Check(ctx).Enabled
	}
	return false
}

// AllTaskConfigs returns every task config keyed by task name, for admin
// views and diagnostics.
func (m *Manager) AllTaskConfigs(ctx context.Context) map[string]any {
	return map[string]any{
		TaskBookService:     m.Booking(ctx),
		TaskScheduleMeeting: m.Meeting(ctx),
		TaskCancelBooking:   m.Cancel(ctx),
		TaskRescheduleBook:  m.Reschedule(ctx),
		TaskCheckBooking:    m.Check(ctx),
	}
}

// Invalidate drops key from the local and shared caches. The next lookup
// refetches from the admin API.
func (m *Manager) Invalidate(ctx context.Context, key string) {
	m.mu.Lock()
	delete(m.local, key)
	m.mu.Unlock()

	if m.redis != nil {
		if err := m.redis.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
			m.log.Warn("redis invalidate %s failed: %v", key, err)
		}
	}
	m.log.Info("config cache invalidated: %s", key)
}

// InvalidateAll drops every cached config entry.
func (m *Manager) InvalidateAll(ctx context.Context) {
	m.mu.Lock()
	m.local = make(map[string]localEntry)
	m.mu.Unlock()

	if m.redis != nil {
		iter := m.redis.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			if err := m.redis.Del(ctx, iter.Val()).Err(); err != nil {
				m.log.Warn("redis invalidate %s failed: %v", iter.Val(), err)
			}
		}
		if err := iter.Err(); err != nil {
			m.log.Warn("redis scan failed: %v", err)
		}
	}
	m.log.Info("config cache fully invalidated")
}

// resolve fills target from the first cache layer that has key. On a decode
// or validation failure the reset callback restores defaults.
func (m *Manager) resolve(ctx context.Context, key, path string, target any, reset func()) {
	raw, ok := m.fetchRaw(ctx, key, path)
	if !ok {
		return
	}
	if err := json.Unmarshal(raw, target); err != nil {
		m.log.Warn("config %s: invalid JSON, using defaults: %v", key, err)
		reset()
		return
	}
	if err := m.validate.Struct(target); err != nil {
		m.log.Warn("config %s: failed validation, using defaults: %v", key, err)
		reset()
	}
}

func (m *Manager) fetchRaw(ctx context.Context, key, path string) ([]byte, bool) {
	now := m.clock()

	m.mu.Lock()
	if entry, ok := m.local[key]; ok && now.Before(entry.expires) {
		m.mu.Unlock()
		return entry.data, true
	}
	m.mu.Unlock()

	if m.redis != nil {
		data, err := m.redis.Get(ctx, redisKeyPrefix+key).Bytes()
		if err == nil {
			m.storeLocal(key, data)
			return data, true
		}
		if err != redis.Nil {
			m.log.Warn("redis get %s failed: %v", key, err)
		}
	}

	if m.baseURL == "" {
		return nil, false
	}
	data, err := m.fetchRemote(ctx, path)
	if err != nil {
		m.log.Warn("admin API fetch %s failed, using defaults: %v", key, err)
		return nil, false
	}

	m.storeLocal(key, data)
	if m.redis != nil {
		if err := m.redis.Set(ctx, redisKeyPrefix+key, data, CacheTTL).Err(); err != nil {
			m.log.Warn("redis set %s failed: %v", key, err)
		}
	}
	return data, true
}

func (m *Manager) fetchRemote(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, adminAPITimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if m.apiKey != "" {
		req.Header.Set("X-API-Key", m.apiKey)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("admin API returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

func (m *Manager) storeLocal(key string, data []byte) {
	m.mu.Lock()
	m.local[key] = localEntry{data: data, expires: m.clock().Add(CacheTTL)}
	m.mu.Unlock()
}
