package config

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func adminServer(t *testing.T, hits *atomic.Int64, configs map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		cfg, ok := configs[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cfg)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestManagerFetchesFromAdminAPI(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := adminServer(t, &hits, map[string]any{
		"/api/admin/config/tasks/book_service": BookingTaskConfig{
			Enabled:            true,
			Services:           []string{"consultation", "training"},
			AdvanceBookingDays: 30,
			Hours:              BusinessHours{Start: "08:00", End: "16:00"},
		},
	})

	m := NewManager(srv.URL)
	cfg := m.Booking(context.Background())
	if cfg.AdvanceBookingDays != 30 {
		t.Fatalf("AdvanceBookingDays = %d, want 30", cfg.AdvanceBookingDays)
	}
	if len(cfg.Services) != 2 || cfg.Services[1] != "training" {
		t.Fatalf("Services = %v", cfg.Services)
	}

	// Second lookup comes from the local cache.
	m.Booking(context.Background())
	if hits.Load() != 1 {
		t.Fatalf("admin API hit %d times, want 1", hits.Load())
	}
}

func TestManagerBookingCarriesAdminRules(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := adminServer(t, &hits, map[string]any{
		"/api/admin/config/tasks/book_service": map[string]any{
			"enabled":              true,
			"services":             []string{"consultation"},
			"advance_booking_days": 90,
			"business_hours":       map[string]string{"start": "10:00", "end": "16:00"},
			"blocked_dates":        []string{"2026-12-25", "2027-01-01"},
			"required_fields":      []string{"party_size"},
		},
	})

	cfg := NewManager(srv.URL).Booking(context.Background())
	if !cfg.DateBlocked("2026-12-25") || cfg.DateBlocked("2026-12-24") {
		t.Fatalf("blocked dates = %v", cfg.BlockedDates)
	}
	if len(cfg.RequiredFields) != 1 || cfg.RequiredFields[0] != "party_size" {
		t.Fatalf("required fields = %v", cfg.RequiredFields)
	}
	// The nested hours object must override the compiled-in window.
	if cfg.Hours.Start != "10:00" || cfg.Hours.End != "16:00" {
		t.Fatalf("hours = %+v", cfg.Hours)
	}
}

func TestManagerBotConfig(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := adminServer(t, &hits, map[string]any{
		"/api/admin/config/bot": map[string]any{
			"name":             "Riverside Assistant",
			"business_name":    "Riverside Clinic",
			"fallback_message": "Could you say that differently?",
		},
	})

	bot := NewManager(srv.URL).Bot(context.Background())
	if bot.Name != "Riverside Assistant" || bot.FallbackMessage != "Could you say that differently?" {
		t.Fatalf("bot = %+v", bot)
	}

	// Unreachable admin API falls back to the compiled-in identity.
	fallback := NewManager("http://127.0.0.1:1").Bot(context.Background())
	if fallback.Name != "Concierge" {
		t.Fatalf("fallback bot = %+v", fallback)
	}
}

func TestManagerFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	m := NewManager("http://127.0.0.1:1") // nothing listening
	cfg := m.Booking(context.Background())
	if cfg.AdvanceBookingDays != 90 || len(cfg.Services) != 3 {
		t.Fatalf("expected defaults, got %+v", cfg)
	}

	meeting := m.Meeting(context.Background())
	if meeting.Hours.End != "17:00" {
		t.Fatalf("meeting hours = %+v, want end 17:00", meeting.Hours)
	}
	if len(meeting.MeetingTypes) != 3 {
		t.Fatalf("MeetingTypes = %v", meeting.MeetingTypes)
	}

	if got := m.Reschedule(context.Background()).MaxReschedules; got != 3 {
		t.Fatalf("MaxReschedules = %d, want 3", got)
	}
}

func TestManagerRejectsInvalidRemoteConfig(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := adminServer(t, &hits, map[string]any{
		// advance_booking_days must be positive
		"/api/admin/config/tasks/book_service": map[string]any{
			"enabled":              true,
			"services":             []string{"consultation"},
			"advance_booking_days": -5,
			"business_hours":       map[string]string{"start": "09:00", "end": "18:00"},
		},
	})

	m := NewManager(srv.URL)
	cfg := m.Booking(context.Background())
	if cfg.AdvanceBookingDays != 90 {
		t.Fatalf("invalid remote config should fall back to defaults, got %+v", cfg)
	}
}

func TestManagerUsesRedisLayer(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := adminServer(t, &hits, map[string]any{
		"/api/admin/config/tasks/cancel_booking": DefaultCancelConfig(),
	})
	rdb := newTestRedis(t)

	// First manager populates Redis from the admin API.
	m1 := NewManager(srv.URL, WithRedis(rdb))
	m1.Cancel(context.Background())
	if hits.Load() != 1 {
		t.Fatalf("admin API hit %d times, want 1", hits.Load())
	}

	// A fresh manager with an empty local cache hits Redis, not the API.
	m2 := NewManager(srv.URL, WithRedis(rdb))
	cfg := m2.Cancel(context.Background())
	if hits.Load() != 1 {
		t.Fatalf("second manager should be served by Redis, API hits = %d", hits.Load())
	}
	if cfg.CancellationPolicy == "" {
		t.Fatal("policy text lost through Redis round trip")
	}
}

func TestManagerLocalTTLExpiry(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := adminServer(t, &hits, map[string]any{
		"/api/admin/config/tasks/check_booking": DefaultCheckConfig(),
	})

	now := time.Now()
	m := NewManager(srv.URL)
	m.clock = func() time.Time { return now }

	m.Check(context.Background())
	m.Check(context.Background())
	if hits.Load() != 1 {
		t.Fatalf("API hits = %d, want 1", hits.Load())
	}

	now = now.Add(CacheTTL + time.Second)
	m.Check(context.Background())
	if hits.Load() != 2 {
		t.Fatalf("expired entry should refetch, API hits = %d", hits.Load())
	}
}

func TestManagerInvalidate(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := adminServer(t, &hits, map[string]any{
		"/api/llm/config": map[string]any{"config": LLMConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-5",
			APIKey:      "sk-ant-test-0123456789",
			Temperature: 0.7,
			MaxTokens:   500,
			Enabled:     true,
		}},
	})
	rdb := newTestRedis(t)

	m := NewManager(srv.URL, WithRedis(rdb))
	ctx := context.Background()

	if got := m.LLM(ctx).Provider; got != "anthropic" {
		t.Fatalf("Provider = %q", got)
	}
	m.LLM(ctx)
	if hits.Load() != 1 {
		t.Fatalf("API hits = %d, want 1", hits.Load())
	}

	m.Invalidate(ctx, "llm")
	m.LLM(ctx)
	if hits.Load() != 2 {
		t.Fatalf("invalidated key should refetch, API hits = %d", hits.Load())
	}

	m.InvalidateAll(ctx)
	m.LLM(ctx)
	if hits.Load() != 3 {
		t.Fatalf("InvalidateAll should clear both layers, API hits = %d", hits.Load())
	}
}

func TestTaskEnabled(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := adminServer(t, &hits, map[string]any{
		"/api/admin/config/tasks/book_service": map[string]any{
			"enabled":              false,
			"services":             []string{"consultation"},
			"advance_booking_days": 90,
			"business_hours":       map[string]string{"start": "09:00", "end": "18:00"},
		},
	})

	m := NewManager(srv.URL)
	ctx := context.Background()
	if m.TaskEnabled(ctx, TaskBookService) {
		t.Fatal("book_service should be disabled")
	}
	if !m.TaskEnabled(ctx, TaskScheduleMeeting) {
		t.Fatal("schedule_meeting should default to enabled")
	}
	if m.TaskEnabled(ctx, "unknown_task") {
		t.Fatal("unknown task should report disabled")
	}
}

func TestAllTaskConfigs(t *testing.T) {
	t.Parallel()

	m := NewManager("")
	all := m.AllTaskConfigs(context.Background())
	if len(all) != 5 {
		t.Fatalf("expected 5 task configs, got %d", len(all))
	}
	if _, ok := all[TaskBookService].(BookingTaskConfig); !ok {
		t.Fatalf("book_service has wrong type: %T", all[TaskBookService])
	}
}
