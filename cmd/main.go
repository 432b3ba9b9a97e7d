package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"

	"footcare-triage/handler"
	"footcare-triage/internal/config"
	"footcare-triage/internal/integrations/openai"
	"footcare-triage/internal/integrations/paramstore"
	"footcare-triage/internal/repository"
	"footcare-triage/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", "err", err)
	}
	cfg, err := config.Load()
	if err != nil {
		fatal("invalid configuration", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	// ---- AWS SDK config, only when an AWS service is used ----
	var awsCfg aws.Config
	if cfg.StoreBackend == config.StoreDynamoDB || cfg.OpenAIKeyParam != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			fatal("failed to load AWS config", err)
		}
	}

	// ---- Clients ----
	store, err := newStore(cfg, awsCfg)
	if err != nil {
		fatal("failed to create store", err)
	}

	var llm usecase.LLMClient
	if !cfg.DemoMode() {
		client, err := newLLMClient(cfg, awsCfg)
		if err != nil {
			fatal("failed to create OpenAI client", err)
		}
		llm = client
	}

	// ---- Handler ----
	records, err := usecase.NewRecordService(store)
	if err != nil {
		fatal("failed to create record service", err)
	}
	chat, err := usecase.NewChatService(store, llm)
	if err != nil {
		fatal("failed to create chat service", err)
	}
	h, err := handler.NewHandler(records, chat)
	if err != nil {
		fatal("failed to create handler", err)
	}

	slog.Info("starting", "runtime", cfg.Runtime, "store", cfg.StoreBackend, "demo_mode", chat.DemoMode())
	switch cfg.Runtime {
	case config.RuntimeHTTP:
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("http server stopped", err)
		}
	default:
		lambda.Start(h.Handle)
	}
}

func newStore(cfg *config.Config, awsCfg aws.Config) (repository.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreDynamoDB:
		return repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
	case config.StoreSupabase:
		return repository.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey)
	default:
		return repository.NewMemoryStore(), nil
	}
}

func newLLMClient(cfg *config.Config, awsCfg aws.Config) (*openai.Client, error) {
	opts := []openai.Option{
		openai.WithModel(cfg.OpenAIModel),
		openai.WithTemperature(cfg.OpenAITemperature),
		openai.WithMaxTokens(cfg.OpenAIMaxTokens),
	}
	if cfg.OpenAIKeyParam != "" {
		opts = append(opts, openai.WithKeyParameter(paramstore.NewFromConfig(awsCfg), cfg.OpenAIKeyParam))
	} else {
		opts = append(opts, openai.WithAPIKey(cfg.OpenAIAPIKey))
	}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	return openai.NewClient(opts...)
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
