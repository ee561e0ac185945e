package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/venatrix/threatlens/internal/adapter/handler"
	"github.com/venatrix/threatlens/internal/adapter/llm"
	"github.com/venatrix/threatlens/internal/adapter/notifier"
	"github.com/venatrix/threatlens/internal/adapter/provider"
	"github.com/venatrix/threatlens/internal/adapter/repository"
	"github.com/venatrix/threatlens/internal/config"
	"github.com/venatrix/threatlens/internal/core/ports"
	"github.com/venatrix/threatlens/internal/core/service"
)

func main() {
	configPath := flag.String("config", "threatlens.yaml", "Path to the YAML config file")
	flag.Parse()

	// Load .env file if it exists (optional - not all deployments need one)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found (this is fine if env vars are set elsewhere)")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	ctx := context.Background()

	// Persistence backend
	store, cleanup, err := buildStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("❌ Failed to open %s store: %v", cfg.Store.Backend, err)
	}
	defer cleanup()
	log.Printf("✅ Store backend: %s", cfg.Store.Backend)

	// In-memory full-text index over indicator values and contexts
	index, err := repository.NewBleveIndex()
	if err != nil {
		log.Fatalf("❌ Failed to create search index: %v", err)
	}
	defer index.Close()

	reports := service.NewReportRepository(store, cfg.Pipeline.MaxReports)
	indicators := service.NewIndicatorRepository(store, index, cfg.Pipeline.MaxIndicators)

	// Prometheus metrics
	service.InitMetrics()
	llm.InitMetrics()
	log.Println("✅ Prometheus metrics initialized")

	// Enrichment client (optional - only if API key configured)
	enricher := llm.NewEnricher(llm.EnricherConfig{
		APIURL:  cfg.Enrichment.APIURL,
		APIKey:  cfg.Enrichment.APIKey,
		Model:   cfg.Enrichment.Model,
		Timeout: cfg.EnrichTimeout(),
	})
	if enricher.Enabled() {
		log.Println("✅ Enrichment enabled")
	} else {
		log.Println("⚠️  Enrichment disabled (no LLM_API_KEY), using heuristic labels")
	}

	// Slack notifier (optional - only if token configured)
	var notifiers []ports.AlertNotifier
	if cfg.Slack.BotToken != "" {
		notifiers = append(notifiers, notifier.NewSlackNotifier(cfg.Slack.BotToken, cfg.Slack.Channel, cfg.Slack.MentionTeam))
		log.Println("✅ Slack notifier enabled")
	} else {
		log.Println("⚠️  Slack notifier disabled (no SLACK_BOT_TOKEN)")
	}

	pipeline := service.NewPipeline(reports, indicators, store, enricher, notifiers, service.PipelineConfig{
		Workers:           cfg.Pipeline.Workers,
		EnrichmentTimeout: cfg.EnrichTimeout(),
		SummarizeReports:  cfg.Pipeline.SummarizeReports,
	})
	if err := pipeline.Load(ctx); err != nil {
		log.Fatalf("❌ Failed to load persisted state: %v", err)
	}
	log.Printf("📂 Restored %d reports and %d indicators", reports.Len(), indicators.Len())

	providers := buildProviders(cfg)
	for _, p := range providers {
		log.Printf("✅ Provider registered: %s", p.Name())
	}

	// Scheduled runs
	var scheduler *cron.Cron
	if cfg.Pipeline.Schedule != "" {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(cfg.Pipeline.Schedule, func() {
			result, err := pipeline.RunFromProviders(ctx, providers)
			if err != nil {
				log.Printf("⚠️  Scheduled run skipped: %v", err)
				return
			}
			log.Printf("⏰ Scheduled run done: %d reports, %d campaigns, %d errors",
				result.ProcessedCount, result.CampaignCount, len(result.Errors))
		})
		if err != nil {
			log.Fatalf("❌ Invalid schedule %q: %v", cfg.Pipeline.Schedule, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		log.Printf("✅ Scheduled runs enabled: %s", cfg.Pipeline.Schedule)
	}

	// HTTP router
	router := mux.NewRouter()
	restHandler := handler.NewRestHandler(pipeline, reports, indicators, providers)

	router.HandleFunc("/api/v1/health", restHandler.Health).Methods("GET")
	router.HandleFunc("/api/v1/pipeline/run", restHandler.RunPipeline).Methods("POST")
	router.HandleFunc("/api/v1/pipeline/stop", restHandler.StopPipeline).Methods("POST")
	router.HandleFunc("/api/v1/pipeline/status", restHandler.PipelineStatus).Methods("GET")
	router.HandleFunc("/api/v1/reports", restHandler.ListReports).Methods("GET")
	router.HandleFunc("/api/v1/reports/get", restHandler.GetReport).Methods("GET")
	router.HandleFunc("/api/v1/indicators", restHandler.ListIndicators).Methods("GET")
	router.HandleFunc("/api/v1/campaigns", restHandler.ListCampaigns).Methods("GET")
	router.HandleFunc("/api/v1/stats", restHandler.GetStats).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	router.Use(loggingMiddleware)
	router.Use(authMiddleware(cfg.Server.AuthToken))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🚀 ThreatLens API listening on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pipeline.ForceStop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}
	log.Println("✅ Server stopped gracefully")
}

// buildStore opens the configured persistence backend and returns it with a
// cleanup function for deferred teardown.
func buildStore(ctx context.Context, cfg config.StoreConfig) (ports.CollectionStore, func(), error) {
	switch cfg.Backend {
	case "bolt":
		store, err := repository.NewBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		store := repository.NewRedisStore(client)
		return store, func() { store.Close() }, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		store := repository.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil

	default:
		store := repository.NewMemoryStore()
		return store, func() {}, nil
	}
}

func buildProviders(cfg config.Config) []ports.ReportProvider {
	client := &http.Client{Timeout: 30 * time.Second}

	var providers []ports.ReportProvider
	for _, feed := range cfg.Feeds {
		providers = append(providers, provider.NewJSONFeedProvider(client, feed.Name, feed.URL))
	}
	if cfg.Kafka.Enabled {
		providers = append(providers, provider.NewKafkaProvider(
			cfg.Kafka.Brokers,
			cfg.Kafka.Topic,
			cfg.Kafka.GroupID,
			cfg.Kafka.MaxBatch,
			time.Duration(cfg.Kafka.PollSecs)*time.Second,
		))
	}
	return providers
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("→ %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
		log.Printf("← %s %s (%v)", r.Method, r.URL.Path, time.Since(start))
	})
}

func authMiddleware(expectedToken string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip auth for health check
			if r.URL.Path == "/api/v1/health" {
				next.ServeHTTP(w, r)
				return
			}

			// If no token configured, allow all requests (development mode)
			if expectedToken == "" {
				next.ServeHTTP(w, r)
				return
			}

			if r.Header.Get("Authorization") != "Bearer "+expectedToken {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
