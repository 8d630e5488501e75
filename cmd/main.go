package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"chess_review/internal/adapters"
	"chess_review/internal/bootstrap"
	reviewDelivery "chess_review/internal/delivery/review"
	ownMiddleware "chess_review/internal/middleware"
	"chess_review/internal/repository"
	reviewUsecase "chess_review/internal/usecase/review"
)

type dataBaseAdapters struct {
	redisAdapter *adapters.AdapterRedis
	mongoAdapter *adapters.AdapterMongo
}

func main() {
	logger := NewLogger()
	cfg, err := bootstrap.Setup(".env")
	if err != nil {
		logger.Error("Failed to setup configuration", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleShutdown(cancel, logger)

	databaseAdapters := initDatabaseAdapters(ctx, logger, *cfg)
	defer databaseAdapters.mongoAdapter.Close(ctx)
	defer databaseAdapters.redisAdapter.Close(ctx)

	engine, err := repository.NewEngineClient(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to start engine", zap.Error(err))
	}
	defer engine.Close()

	llmAdapter, err := adapters.NewLlmAdapter(ctx, cfg.GeminiModel)
	if err != nil {
		logger.Fatal("Failed to initialize LLM client", zap.Error(err))
	}

	handler := initializeReviewHandler(*cfg, logger, engine, llmAdapter, databaseAdapters)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	if cfg.IsLocalCors {
		r.Use(ownMiddleware.CORS)
	}

	r.Post("/review", handler.HandleSubmitReview)
	r.Get("/review", handler.HandleGetReview)
	r.Get("/progress", handler.HandleGetProgress)
	r.Get("/progress/ws", handler.HandleProgressWS)

	logger.Infof("Server is running on port %s", cfg.ServerPort)
	if err := http.ListenAndServe(cfg.ServerPort, r); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}

func NewLogger() *zap.SugaredLogger {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	return logger.Sugar()
}

func initDatabaseAdapters(ctx context.Context, log *zap.SugaredLogger, cfg bootstrap.Config) *dataBaseAdapters {
	mongoAdapter := adapters.NewAdapterMongo(&cfg)
	if err := mongoAdapter.Init(ctx); err != nil {
		log.Fatal("Failed to initialize MongoDB", zap.Error(err))
	}

	redisAdapter := adapters.NewAdapterRedis(&cfg)
	if err := redisAdapter.Init(ctx); err != nil {
		log.Fatal("Failed to initialize Redis", zap.Error(err))
	}

	log.Info("Database adapters initialized")
	return &dataBaseAdapters{
		redisAdapter: redisAdapter,
		mongoAdapter: mongoAdapter,
	}
}

func initializeReviewHandler(
	cfg bootstrap.Config,
	log *zap.SugaredLogger,
	engine *repository.EngineClient,
	llmAdapter *adapters.LlmAdapter,
	databaseAdapters *dataBaseAdapters,
) *reviewDelivery.ReviewHandler {
	store := repository.NewReviewRepository(cfg, log,
		databaseAdapters.redisAdapter.GetClient(),
		databaseAdapters.mongoAdapter.Database)
	llm := repository.NewLlmRepository(llmAdapter, log,
		time.Duration(cfg.GenerateTimeoutMS)*time.Millisecond)

	verifier := reviewUsecase.NewVerifier(llm, cfg.VerifyMaxRetries, cfg.VerifyConfidenceMin, log)
	themes := reviewUsecase.NewThemeAnalyzer(cfg.ThemeCacheSize,
		time.Duration(cfg.ThemeCacheTTLHours)*time.Hour, store, log)
	explainer := reviewUsecase.NewExplainer(llm, cfg.ExplainGoodMoves, log)
	weakness := reviewUsecase.NewWeaknessDetector(llm, log)

	pipeline := reviewUsecase.NewPipeline(cfg, log, store, engine, verifier, themes, explainer, weakness)

	return reviewDelivery.NewReviewHandler(cfg, log, pipeline, store)
}

func handleShutdown(cancelFunc context.CancelFunc, log *zap.SugaredLogger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("Received shutdown signal")
	cancelFunc()
	time.Sleep(1 * time.Second) // give connections time to close
}
