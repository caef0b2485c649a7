// Package metrics exposes the Prometheus instrumentation for the action
// server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActionsTotal counts dispatched actions by name and outcome.
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concierge_actions_total",
		Help: "Dispatched actions by name and outcome.",
	}, []string{"action", "status"})

	// ActionDuration tracks per-action latency.
	ActionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "concierge_action_duration_seconds",
		Help:    "Action execution latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	// WebhookRequests counts webhook calls by HTTP status.
	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concierge_webhook_requests_total",
		Help: "Webhook requests by HTTP status code.",
	}, []string{"code"})
)
