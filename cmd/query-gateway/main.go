// cmd/query-gateway/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wakeupmh/pdf-rag/internal/api"
	awsclient "github.com/wakeupmh/pdf-rag/internal/common/aws"
	"github.com/wakeupmh/pdf-rag/internal/common/camunda"
	"github.com/wakeupmh/pdf-rag/internal/common/config"
	"github.com/wakeupmh/pdf-rag/internal/common/database"
	httpclient "github.com/wakeupmh/pdf-rag/internal/common/http"
	"github.com/wakeupmh/pdf-rag/internal/common/logger"
	"github.com/wakeupmh/pdf-rag/internal/common/observability"
	"github.com/wakeupmh/pdf-rag/internal/orchestrator"
	qkb "github.com/wakeupmh/pdf-rag/internal/workers/rag/query-knowledge-base"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output).With(
		zap.String("service", cfg.App.Name),
		zap.String("version", cfg.App.Version),
	)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting query gateway...", zap.String("environment", cfg.App.Environment))

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Fatal("observability setup failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Backend ---
	transport := httpclient.NewClient(
		config.GetDuration(cfg.Bedrock.HTTPTimeout),
		httpclient.WithUserAgent(cfg.App.Name+"/"+cfg.App.Version),
	)
	bedrock, err := awsclient.NewBedrockClient(ctx, cfg.Bedrock.Region, transport)
	if err != nil {
		zapLog.Fatal("bedrock client failed", zap.Error(err))
	}

	opts := []orchestrator.Option{orchestrator.WithObservability(obs)}
	var serverOpts []api.Option

	// --- Optional session recorder ---
	if cfg.Database.Redis.Enabled {
		redis := database.NewRedis(cfg.Database.Redis)
		err = retryWithBackoff(func() error {
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		zapLog.Info("Redis connected successfully")

		store := database.NewSessionStore(redis.Client, config.GetDuration(cfg.Database.Redis.SessionTTL))
		opts = append(opts, orchestrator.WithSessionRecorder(store))
		serverOpts = append(serverOpts, api.WithReadinessCheck("redis", redis.Ping))
	}

	// --- Optional failure alerts ---
	if cfg.Alerts.Enabled {
		alerts, err := awsclient.NewAlertPublisher(ctx, cfg.Bedrock.Region, cfg.Alerts.TopicARN, transport)
		if err != nil {
			zapLog.Fatal("sns client failed", zap.Error(err))
		}
		opts = append(opts, orchestrator.WithFailureNotifier(alerts))
		zapLog.Info("Failure alerts enabled", zap.String("topic", cfg.Alerts.TopicARN))
	}

	orch := orchestrator.New(orchestrator.Config{
		KnowledgeBaseID: cfg.Bedrock.KnowledgeBaseID,
		ModelARN:        cfg.Bedrock.ResolveModelARN(),
		PromptTemplate:  cfg.Bedrock.PromptTemplate,
		Timeout:         config.GetDuration(cfg.Bedrock.Timeout),
		HookTimeout:     config.GetDuration(cfg.Alerts.Timeout),
	}, bedrock, log, opts...)

	// --- Optional workflow worker ---
	var zeebe *camunda.Client
	if cfg.Camunda.Enabled {
		zeebe, err = camunda.Connect(ctx, cfg.Camunda, camunda.DefaultRetryConfig, log)
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")
		serverOpts = append(serverOpts, api.WithReadinessCheck("zeebe", zeebe.HealthCheck))

		if config.IsWorkerEnabled(cfg, qkb.TaskType) {
			wcfg := config.GetWorkerConfig(cfg, qkb.TaskType)
			handler := qkb.NewHandler(&qkb.Config{
				Timeout:        config.GetDuration(wcfg.Timeout),
				RequestTimeout: config.GetDuration(cfg.Camunda.RequestTimeout),
				MaxRetries:     wcfg.MaxRetries,
			}, orch, log)
			if jobWorker := camunda.StartWorker(zeebe.GetClient(), qkb.TaskType, wcfg, handler.Handle, log); jobWorker != nil {
				defer jobWorker.Close()
			}
		} else {
			zapLog.Info("Worker disabled", zap.String("taskType", qkb.TaskType))
		}
	}

	// --- HTTP gateway ---
	server, err := api.NewServer(cfg.Server, orch, log, serverOpts...)
	if err != nil {
		zapLog.Fatal("http server setup failed", zap.Error(err))
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	// --- Graceful Shutdown ---
	select {
	case <-ctx.Done():
		zapLog.Info("Shutdown signal received, draining requests...")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}
	obs.Shutdown(shutdownCtx)

	zapLog.Info("Query gateway stopped gracefully")
}
