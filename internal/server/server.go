// Package server exposes the action runtime over HTTP: the conversation
// engine webhook plus health and metrics endpoints.
package server

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"concierge/internal/logging"
	"concierge/internal/metrics"
	"concierge/internal/runtime"
)

// ActionDispatcher is the slice of the runtime the server needs.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, name string, tc *runtime.TurnContext) (runtime.Output, error)
	ActionNames() []string
}

// Server handles action webhook traffic.
type Server struct {
	runtime ActionDispatcher
	log     logging.Logger
	engine  *gin.Engine
}

// New builds the HTTP server around the runtime.
func New(rt ActionDispatcher) *Server {
	s := &Server{
		runtime: rt,
		log:     logging.NewComponentLogger("server"),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())
	engine.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	engine.POST("/webhook", s.handleWebhook)
	engine.GET("/health", s.handleHealth)
	engine.GET("/actions", s.handleActions)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine = engine
	return s
}

// Handler returns the HTTP handler, usable with any http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		c.Set("request_id", requestID)
		start := time.Now()
		c.Next()
		s.log.Debug("%s %s -> %d (%s) id=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start), requestID)
	}
}

// webhookRequest is the action server protocol payload.
type webhookRequest struct {
	NextAction string `json:"next_action"`
	SenderID   string `json:"sender_id"`
	Tracker    struct {
		SenderID      string         `json:"sender_id"`
		Slots         map[string]any `json:"slots"`
		LatestMessage struct {
			Text   string `json:"text"`
			Intent struct {
				Name       string  `json:"name"`
				Confidence float64 `json:"confidence"`
			} `json:"intent"`
			Entities []runtime.Entity `json:"entities"`
		} `json:"latest_message"`
		ActiveLoop struct {
			Name string `json:"name"`
		} `json:"active_loop"`
		LatestInputChannel string `json:"latest_input_channel"`
	} `json:"tracker"`
}

type webhookResponse struct {
	Events    []runtime.Event   `json:"events"`
	Responses []runtime.Message `json:"responses"`
}

func (s *Server) handleWebhook(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.WebhookRequests.WithLabelValues("400").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if req.NextAction == "" {
		metrics.WebhookRequests.WithLabelValues("400").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "next_action is required"})
		return
	}

	senderID := req.Tracker.SenderID
	if senderID == "" {
		senderID = req.SenderID
	}
	tc := &runtime.TurnContext{
		SenderID:   senderID,
		Text:       req.Tracker.LatestMessage.Text,
		Intent:     req.Tracker.LatestMessage.Intent.Name,
		Confidence: req.Tracker.LatestMessage.Intent.Confidence,
		Entities:   req.Tracker.LatestMessage.Entities,
		Slots:      req.Tracker.Slots,
		ActiveForm: req.Tracker.ActiveLoop.Name,
		Channel:    req.Tracker.LatestInputChannel,
	}

	start := time.Now()
	out, err := s.runtime.Dispatch(c.Request.Context(), req.NextAction, tc)
	metrics.ActionDuration.WithLabelValues(req.NextAction).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ActionsTotal.WithLabelValues(req.NextAction, "unknown").Inc()
		metrics.WebhookRequests.WithLabelValues("404").Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	metrics.ActionsTotal.WithLabelValues(req.NextAction, "ok").Inc()
	metrics.WebhookRequests.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()

	resp := webhookResponse{Events: out.Events, Responses: out.Messages}
	if resp.Events == nil {
		resp.Events = []runtime.Event{}
	}
	if resp.Responses == nil {
		resp.Responses = []runtime.Message{}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"actions": len(s.runtime.ActionNames()),
	})
}

func (s *Server) handleActions(c *gin.Context) {
	names := s.runtime.ActionNames()
	sort.Strings(names)
	c.JSON(http.StatusOK, gin.H{"actions": names})
}
