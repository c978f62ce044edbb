package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/nexuslab/nexus/internal/queue"
	mid "github.com/nexuslab/nexus/internal/server/middleware"
	"github.com/nexuslab/nexus/internal/util"
	"github.com/nexuslab/nexus/pkg/ai"
	"github.com/nexuslab/nexus/pkg/ai/ollama"
	"github.com/nexuslab/nexus/pkg/ai/openai"
	"github.com/nexuslab/nexus/pkg/graph"
	"github.com/nexuslab/nexus/pkg/identity"
	"github.com/nexuslab/nexus/pkg/leaselock"
	"github.com/nexuslab/nexus/pkg/logger"
	"github.com/nexuslab/nexus/pkg/store"
	memorystore "github.com/nexuslab/nexus/pkg/store/memory"
	neo4jstore "github.com/nexuslab/nexus/pkg/store/neo4j"
	pgxstore "github.com/nexuslab/nexus/pkg/store/pgx"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// jwks is optional, with only a master API key the server still works
	var key *keyfunc.Keyfunc
	if authURL := util.GetEnvString("AUTH_URL", ""); authURL != "" {
		k, err := keyfunc.NewDefault([]string{authURL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		key = &k
	}

	relStore, guard := NewStore(ctx)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := relStore.Close(closeCtx); err != nil {
			logger.Error("Failed to close store", "err", err)
		}
	}()

	aiClient := NewModelClient()

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}

	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	resolver := identity.NewResolver(identity.NewResolverParams{
		AliasPath: util.GetEnvString("ALIAS_FILE", ""),
	})

	app := &mid.App{
		Store:        relStore,
		Queue:        ch,
		Key:          key,
		AiClient:     aiClient,
		Guard:        guard,
		Resolver:     resolver,
		MasterAPIKey: util.GetEnv("MASTER_API_KEY"),
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("16M"))

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

// NewStore builds the relationship store selected by STORE_BACKEND and the
// matching recompute guard. The postgres backend gets a database lease
// guard, everything else falls back to in-process locking.
func NewStore(ctx context.Context) (store.RelationshipStore, graph.Guard) {
	backend := util.GetEnvString("STORE_BACKEND", "postgres")

	switch backend {
	case "memory":
		logger.Warn("Using in-memory store, data is lost on shutdown")
		return memorystore.NewStore(), graph.NewLocalGuard()
	case "neo4j":
		s, err := neo4jstore.NewStorage(ctx, neo4jstore.NewStorageParams{
			URI:      util.GetEnv("NEO4J_URI"),
			Username: util.GetEnv("NEO4J_USERNAME"),
			Password: util.GetEnv("NEO4J_PASSWORD"),
			Database: util.GetEnvString("NEO4J_DATABASE", ""),
		})
		if err != nil {
			logger.Fatal("Failed to connect to neo4j", "err", err)
		}
		return s, graph.NewLocalGuard()
	default:
		s, err := pgxstore.NewStorage(ctx, pgxstore.NewStorageParams{
			DatabaseURL: util.GetEnv("DATABASE_URL"),
		})
		if err != nil {
			logger.Fatal("Failed to connect to database", "err", err)
		}
		guard := graph.NewLeaseGuard(leaselock.New(s.Pool()), 10*time.Minute)
		return s, guard
	}
}

// NewModelClient builds the model client selected by AI_ADAPTER, wrapped in
// the circuit breaker and rate limiter.
func NewModelClient() ai.ModelClient {
	adapter := util.GetEnv("AI_ADAPTER")
	var aiClient ai.ModelClient

	switch adapter {
	case "ollama":
		client, err := ollama.NewModelOllamaClient(ollama.NewModelOllamaClientParams{
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
			SummaryModel:    util.GetEnv("AI_CHAT_SUMMARY_MODEL"),
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama client", "err", err)
		}
		aiClient = client
	default:
		aiClient = openai.NewModelOpenAIClient(openai.NewModelOpenAIClientParams{
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
			SummaryModel:    util.GetEnv("AI_CHAT_SUMMARY_MODEL"),
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		})
	}

	return ai.NewGuardedClient(aiClient, ai.GuardedClientParams{
		RequestsPerSecond: util.GetEnvNumeric("AI_RATE_LIMIT", 10),
		Burst:             int(util.GetEnvNumeric("AI_RATE_BURST", 20)),
		CallTimeout:       time.Duration(util.GetEnvNumeric("AI_CALL_TIMEOUT_SECONDS", 120)) * time.Second,
	})
}
