package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/blob"
	"github.com/kailas-cloud/docdex/internal/config"
	dbRedis "github.com/kailas-cloud/docdex/internal/db/redis"
	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/extract"
	logpkg "github.com/kailas-cloud/docdex/internal/logger"
	"github.com/kailas-cloud/docdex/internal/metrics"
	"github.com/kailas-cloud/docdex/internal/queue"
	"github.com/kailas-cloud/docdex/internal/repository/docstore"
	statusrepo "github.com/kailas-cloud/docdex/internal/repository/status"
	"github.com/kailas-cloud/docdex/internal/searchindex"
	chiTransport "github.com/kailas-cloud/docdex/internal/transport/chi"
	openaiEnc "github.com/kailas-cloud/docdex/internal/transport/openai"
	healthuc "github.com/kailas-cloud/docdex/internal/usecase/health"
	pipelineuc "github.com/kailas-cloud/docdex/internal/usecase/pipeline"
	searchuc "github.com/kailas-cloud/docdex/internal/usecase/search"
	"github.com/kailas-cloud/docdex/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting docdex server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("queue_url", cfg.Queue.URL),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	metrics.RegisterPipelineMetrics()
	metrics.RegisterEmbeddingMetrics()

	nc, err := nats.Connect(cfg.Queue.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		logger.Fatal("Failed to connect to queue", zap.Error(err))
	}
	defer nc.Close()
	logger.Info("Connected to task queue")

	taskQueue := queue.New(nc, cfg.Queue.StageRates, logger)
	defer taskQueue.Close()

	blobs, err := blob.NewGCSStore(ctx)
	if err != nil {
		logger.Fatal("Failed to create object store client", zap.Error(err))
	}
	defer func() { _ = blobs.Close() }()

	encoder := openaiEnc.NewEncoder(&openaiEnc.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Models:     cfg.Embedding.Models,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})

	index := searchindex.New(store, cfg.Embedding.Dimensions)
	if err := index.EnsureIndexes(ctx, domain.AllProfiles()); err != nil {
		logger.Fatal("Failed to ensure search indexes", zap.Error(err))
	}

	statuses := statusrepo.New(store, time.Duration(cfg.Pipeline.ReindexLockSec)*time.Second)
	documents := docstore.New(store)

	pipeSvc := pipelineuc.New(pipelineuc.Config{
		Blobs:   blobs,
		General: extract.NewGeneral(),
		DomainExtractors: map[domain.Label]pipelineuc.Extractor{
			domain.Paper:  extract.NewPaper(),
			domain.Resume: extract.NewResume(),
		},
		Classifier:      extract.NewClassifier(),
		Encoder:         encoder,
		Index:           index,
		Queue:           taskQueue,
		Statuses:        statuses,
		Documents:       documents,
		SearchableRatio: cfg.Pipeline.SearchableRatio,
		VectorDim:       cfg.Embedding.Dimensions,
		Logger:          logger,
	})

	subscribe(taskQueue, pipelineuc.StageParse, pipeSvc.HandleParse, logger)
	subscribe(taskQueue, pipelineuc.StageExtract, pipeSvc.HandleExtract, logger)
	subscribe(taskQueue, pipelineuc.StageIndex, pipeSvc.HandleIndex, logger)
	if err := taskQueue.Start(); err != nil {
		logger.Fatal("Failed to start queue consumers", zap.Error(err))
	}

	searchSvc := searchuc.New(encoder, index, cfg.Search.PageSize, logger)
	healthSvc := healthuc.New(store, encoder, nc)

	server := chiTransport.NewServer(pipeSvc, searchSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// Stop consuming before the deferred connection teardown so in-flight
	// stage handlers finish their status writes.
	taskQueue.Close()

	logger.Info("Server stopped gracefully")
}

// stageHandler is a pipeline stage entrypoint taking a task id and raw payload.
type stageHandler func(ctx context.Context, taskID string, payload []byte) error

func subscribe(q *queue.Queue, stage string, h stageHandler, logger *zap.Logger) {
	err := q.Subscribe(stage, func(ctx context.Context, t queue.Task) error {
		return h(ctx, t.ID, t.Payload)
	})
	if err != nil {
		logger.Fatal("Failed to subscribe to stage", zap.String("stage", stage), zap.Error(err))
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
