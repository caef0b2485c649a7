// Command concierge-server runs the dialogue action server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/philippgille/chromem-go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"concierge/internal/audit"
	"concierge/internal/backend"
	"concierge/internal/config"
	"concierge/internal/guardrails"
	"concierge/internal/kb"
	"concierge/internal/llm"
	"concierge/internal/logging"
	"concierge/internal/runtime"
	"concierge/internal/server"
)

func main() {
	root := &cobra.Command{
		Use:           "concierge-server",
		Short:         "Dialogue action server for the concierge assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		logging.NewComponentLogger("main").Error("fatal: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	logging.SetLevel(settings.LogLevel)
	log := logging.NewComponentLogger("main")

	var redisClient *redis.Client
	if settings.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     settings.RedisAddr,
			Password: settings.RedisPassword,
		})
		defer redisClient.Close()
	}

	configOpts := []config.ManagerOption{}
	if redisClient != nil {
		configOpts = append(configOpts, config.WithRedis(redisClient))
	}
	if settings.AdminAPIKey != "" {
		configOpts = append(configOpts, config.WithAPIKey(settings.AdminAPIKey))
	}
	configs := config.NewManager(settings.AdminAPIURL, configOpts...)

	auditLogger, err := buildAuditLogger(settings, log)
	if err != nil {
		return err
	}
	defer auditLogger.Close()

	backendOpts := []backend.Option{}
	if settings.BackendJWT != "" {
		backendOpts = append(backendOpts, backend.WithJWT(settings.BackendJWT))
	} else if settings.BackendAPIKey != "" {
		backendOpts = append(backendOpts, backend.WithAPIKey(settings.BackendAPIKey))
	}
	backendClient := backend.NewClient(settings.BackendAPIURL, backendOpts...)
	if backendClient.HealthCheck(ctx) {
		log.Info("backend API reachable at %s", settings.BackendAPIURL)
	} else {
		log.Warn("backend API at %s not answering its health check, booking actions will degrade", settings.BackendAPIURL)
	}

	store, err := buildKnowledgeBase(ctx, settings, log)
	if err != nil {
		return err
	}

	thresholds := guardrails.DefaultThresholds()
	if settings.HighConfidenceThreshold > 0 {
		thresholds.High = settings.HighConfidenceThreshold
	}
	if settings.MediumConfidenceThreshold > 0 {
		thresholds.Medium = settings.MediumConfidenceThreshold
	}
	if settings.LowConfidenceThreshold > 0 {
		thresholds.Low = settings.LowConfidenceThreshold
	}

	rt := runtime.New(runtime.Options{
		Configs:   configs,
		Backend:   backendClient,
		Knowledge: store,
		Guard:     guardrails.NewEvaluator(thresholds),
		LLM:       llm.NewDispatcher(configs),
		Audit:     auditLogger,
	})

	srv := &http.Server{
		Addr:    settings.ServerAddr,
		Handler: server.New(rt).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("action server listening on %s", settings.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildAuditLogger(settings config.Settings, log logging.Logger) (*audit.Logger, error) {
	opts := []audit.Option{}
	if settings.AuditDBPath != "" {
		sink, err := audit.NewSQLiteSink(settings.AuditDBPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, audit.WithDurableSink(sink))
	}
	if settings.AuditFilePath != "" {
		sink, err := audit.NewFileSink(settings.AuditFilePath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, audit.WithFileSink(sink))
	}
	if len(opts) == 0 {
		log.Warn("no audit sinks configured, events go to the process log only")
	}
	return audit.NewLogger(opts...), nil
}

func buildKnowledgeBase(ctx context.Context, settings config.Settings, log logging.Logger) (*kb.Store, error) {
	embed := chromem.NewEmbeddingFuncOllama("nomic-embed-text", settings.OllamaBaseURL+"/api")

	store, err := kb.NewStore(settings.VectorStorePath, embed)
	if err != nil {
		return nil, err
	}

	if _, statErr := os.Stat(settings.KnowledgeBaseDir); statErr == nil {
		chunker, err := kb.NewChunker()
		if err != nil {
			return nil, err
		}
		n, err := kb.NewIngestor(store, chunker).IngestDir(ctx, settings.KnowledgeBaseDir)
		if err != nil {
			log.Warn("knowledge base ingestion incomplete: %v", err)
		} else {
			log.Info("knowledge base ready, %d chunks", n)
		}
	} else {
		log.Warn("knowledge base dir %s not found, retrieval starts empty", settings.KnowledgeBaseDir)
	}
	return store, nil
}
