// helixchat is the conversational context service: tiered context
// assembly, long-term memory retrieval, token streaming and sub-chat
// merges behind one HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dev.helix.chat/internal/background"
	"dev.helix.chat/internal/cache"
	"dev.helix.chat/internal/config"
	"dev.helix.chat/internal/conversation"
	"dev.helix.chat/internal/handlers"
	"dev.helix.chat/internal/llm"
	"dev.helix.chat/internal/memory"
	"dev.helix.chat/internal/merge"
	"dev.helix.chat/internal/observability/metrics"
	"dev.helix.chat/internal/router"
	"dev.helix.chat/internal/services"
	"dev.helix.chat/internal/storage"
	"dev.helix.chat/internal/streaming"
	"dev.helix.chat/internal/usage"
	"dev.helix.chat/internal/vectordb/qdrant"
	"dev.helix.chat/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	logger.WithField("version", version.Version).Info("Starting helixchat")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Service exited with error")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messages := storage.NewInMemoryMessageStore()
	conversations := storage.NewInMemoryConversationStore()

	var provider llm.Provider = llm.NewOpenAIProvider(
		cfg.Provider.APIKey,
		cfg.Provider.BaseURL,
		cfg.Provider.Model,
		logger,
		llm.WithEmbeddingModel(cfg.Provider.EmbeddingModel),
	)

	collector := metrics.NewCollector()

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		provider = cache.NewEmbeddingCache(provider, client, 24*time.Hour, logger, cache.WithCollector(collector))
		logger.WithField("addr", cfg.Redis.Addr).Info("Embedding cache enabled")
	}

	memStore, closeStore, err := buildMemoryStore(ctx, cfg.Memory, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize memory backend: %w", err)
	}
	if closeStore != nil {
		defer closeStore()
	}
	memIndex := memory.NewIndex(memStore, logger)

	queue := background.NewQueue(2, 256, logger)
	queue.Start(ctx)
	defer queue.Stop()
	scheduler := background.NewEmbeddingScheduler(queue, provider, messages, cfg.Context.EmbeddingBatchSize, logger)

	assembler := conversation.NewAssembler(messages, conversations, provider, logger)
	assembleOpts := conversation.AssembleOptions{
		RecentMessageCount:      cfg.Context.RecentMessageCount,
		SemanticResults:         cfg.Context.SemanticSearchResults,
		SemanticThreshold:       cfg.Context.SemanticThreshold,
		SubChatHistories:        cfg.Context.SubChatHistories,
		PreviousConversations:   cfg.Context.PreviousConversations,
		MaxTokens:               cfg.Context.MaxTotalTokens,
		EnableSemantic:          true,
		EnableSubChatSummaries:  true,
		EnablePreviousKnowledge: false,
	}

	usageLog := usage.NewLog(1024)
	chatSvc := services.NewChatService(messages, assembler, provider, scheduler, usageLog, collector, assembleOpts, logger)

	engine := streaming.NewEngine(provider, messages, logger,
		streaming.WithHeartbeatInterval(time.Duration(cfg.Server.HeartbeatIntervalSeconds)*time.Second),
		streaming.WithCollector(collector))
	pipeline := merge.NewPipeline(messages, conversations, provider, memIndex, logger)

	r := router.Setup(router.Handlers{
		Chat:   handlers.NewChatHandler(chatSvc, engine, logger),
		Merge:  handlers.NewMergeHandler(pipeline, collector, logger),
		Memory: handlers.NewMemoryHandler(memIndex, provider, collector, logger),
		Ops:    handlers.NewOpsHandler(engine, usageLog),
	}, collector, logger)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		scheduler.Flush()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildMemoryStore selects the long-term memory backend from config.
func buildMemoryStore(ctx context.Context, cfg config.MemoryConfig, logger *logrus.Logger) (memory.Store, func(), error) {
	switch cfg.Backend {
	case "sqlite":
		store, err := memory.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.WithField("path", cfg.SQLitePath).Info("Memory backend: sqlite (lexical search)")
		return store, func() { _ = store.Close() }, nil

	case "qdrant":
		qcfg := qdrant.DefaultConfig()
		qcfg.URL = cfg.QdrantURL
		qcfg.APIKey = cfg.QdrantKey
		if cfg.Collection != "" {
			qcfg.Collection = cfg.Collection
		}
		if cfg.VectorSize > 0 {
			qcfg.VectorSize = cfg.VectorSize
		}
		client, err := qdrant.NewClient(qcfg, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := client.HealthCheck(ctx); err != nil {
			return nil, nil, fmt.Errorf("qdrant unreachable: %w", err)
		}
		store, err := memory.NewQdrantStore(ctx, client)
		if err != nil {
			return nil, nil, err
		}
		logger.WithField("url", cfg.QdrantURL).Info("Memory backend: qdrant (vector search)")
		return store, nil, nil

	default:
		logger.Info("Memory backend: in-process")
		return memory.NewInMemoryStore(), nil, nil
	}
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}
