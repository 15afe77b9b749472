package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/anvh/mentora/internal/agent"
	"github.com/anvh/mentora/internal/checkpoint"
	"github.com/anvh/mentora/internal/config"
	"github.com/anvh/mentora/internal/enrich"
	"github.com/anvh/mentora/internal/httpapi"
	"github.com/anvh/mentora/internal/llm"
	"github.com/anvh/mentora/internal/observability"
	"github.com/anvh/mentora/internal/profile"
	"github.com/anvh/mentora/internal/registry"
	"github.com/anvh/mentora/internal/turncount"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	ctx := context.Background()

	var mongoClient *mongo.Client
	if cfg.MongoURI != "" {
		mongoClient, err = mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatalf("mongo connect failed: %v", err)
		}
		defer func() {
			_ = mongoClient.Disconnect(context.Background())
		}()
		log.Printf("checkpoint store: mongodb")
	} else {
		log.Printf("checkpoint store: in-memory (MONGO_URI not set)")
	}

	var profileDB *mongo.Database
	if mongoClient != nil {
		profileDB = mongoClient.Database(cfg.MongoDBName)
	}
	profiles, err := profile.NewStore(ctx, cfg.DatabaseURL, profileDB)
	if err != nil {
		log.Fatalf("profile store init failed: %v", err)
	}
	defer profiles.Close()

	llmClient, err := llm.NewClient(llm.Config{
		Mode:         cfg.LLMProvider,
		GeminiAPIKey: cfg.GeminiAPIKey,
		GeminiModel:  cfg.GeminiModel,
		GeminiURL:    cfg.GeminiURL,
	})
	if err != nil {
		log.Fatalf("llm client init failed: %v", err)
	}
	if _, ok := llmClient.(*llm.MockClient); ok {
		log.Printf("llm provider: mock (no gemini key configured)")
	} else {
		log.Printf("llm provider: gemini (%s)", cfg.GeminiModel)
	}

	reg := registry.New(func(_ context.Context, userID string) (*registry.Resources, error) {
		var store checkpoint.Store
		if mongoClient != nil {
			dbName := cfg.MongoDBName
			if cfg.MongoDBPerUser {
				dbName = cfg.MongoDBName + "_" + userID
			}
			store = checkpoint.NewMongoStore(mongoClient.Database(dbName))
		} else {
			store = checkpoint.NewInMemoryStore()
		}
		return &registry.Resources{
			Checkpoints: store,
			Digger:      checkpoint.NewDigger(store, metrics),
			Writer:      checkpoint.NewWriter(store, cfg.RedactPII),
		}, nil
	})
	defer reg.Close(context.Background())

	extractor := profile.NewExtractor(llmClient, profile.Mode(cfg.ProfileMode), cfg.HistoryWindow)
	turns := turncount.NewAccumulator(cfg.ExtractCadence)
	enricher := enrich.New(reg, profiles, extractor, turns, metrics, cfg.ExtractTimeout)

	api := httpapi.New(cfg, reg, profiles, agent.New(llmClient), enricher, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}
	if err := enricher.Drain(shutdownCtx); err != nil {
		log.Printf("abandoning in-flight enrichment: %v", err)
	}

	log.Printf("shutdown complete")
}
