package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	"github.com/nbertagnolli/sql-rag/internal/domain/auth"
	"github.com/nbertagnolli/sql-rag/internal/domain/nlquery"
	"github.com/nbertagnolli/sql-rag/internal/infra/auditrepo"
	"github.com/nbertagnolli/sql-rag/internal/infra/config"
	"github.com/nbertagnolli/sql-rag/internal/infra/embedding"
	"github.com/nbertagnolli/sql-rag/internal/infra/llm/chatgpt"
	"github.com/nbertagnolli/sql-rag/internal/infra/querystore"
	"github.com/nbertagnolli/sql-rag/internal/infra/sqlexec"
	"github.com/nbertagnolli/sql-rag/internal/infra/templaterepo"
)

func providePipelineConfig(cfg *config.Config) nlquery.Config {
	return nlquery.Config{
		Model:               cfg.LLM.Model,
		Temperature:         cfg.LLM.Temperature,
		SimilarityThreshold: cfg.Pipeline.SimilarityThreshold,
		CandidateLimit:      cfg.Pipeline.CandidateLimit,
		VectorDim:           cfg.Embedding.Dimensions,
		TopTrending:         cfg.Trending.TopQueries,
	}
}

func provideAuthConfig(cfg *config.Config) auth.Config {
	return auth.Config{
		Secret:   cfg.HTTP.Auth.Secret,
		Issuer:   cfg.HTTP.Auth.Issuer,
		TokenTTL: cfg.HTTP.Auth.TokenTTL,
	}
}

func provideChatGPTClient(cfg *config.Config) (*chatgpt.Client, error) {
	return chatgpt.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL)
}

// providePool connects to Postgres. The template and audit stores live there,
// so unlike the trending store there is no in-memory fallback at runtime.
func providePool(cfg *config.Config) (*pgxpool.Pool, error) {
	dsn := strings.TrimSpace(cfg.Postgres.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Postgres.MaxConns
	}
	if cfg.Postgres.MinConns > 0 {
		poolConfig.MinConns = cfg.Postgres.MinConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres pool: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func provideTemplateRepository(pool *pgxpool.Pool) nlquery.TemplateRepository {
	return templaterepo.NewPostgresRepository(pool)
}

func provideAuditRepository(pool *pgxpool.Pool) nlquery.AuditRepository {
	return auditrepo.NewPostgresRepository(pool)
}

func provideExecutor(pool *pgxpool.Pool) nlquery.Executor {
	return sqlexec.NewPostgresExecutor(pool)
}

// provideEmbedder prefers the dedicated inference endpoint, then the OpenAI
// embeddings API, then a deterministic local embedder for offline development.
func provideEmbedder(cfg *config.Config, client *chatgpt.Client, logger *slog.Logger) (nlquery.Embedder, error) {
	if endpoint := strings.TrimSpace(cfg.Embedding.Endpoint); endpoint != "" {
		remote, err := embedding.NewRemoteClient(endpoint)
		if err != nil {
			return nil, err
		}
		logger.Info("remote embedding endpoint enabled", "endpoint", endpoint)
		return remote, nil
	}
	if strings.TrimSpace(cfg.LLM.APIKey) != "" {
		logger.Info("openai embeddings enabled", "model", cfg.LLM.EmbeddingModel)
		return embedding.NewChatGPTEmbedder(client, cfg.LLM.EmbeddingModel), nil
	}
	logger.Warn("no embedding backend configured, using deterministic embedder")
	return embedding.NewDeterministicEmbedder(cfg.Embedding.Dimensions), nil
}

func provideTrendingStore(cfg *config.Config, logger *slog.Logger) nlquery.TrendingStore {
	if cfg.Trending.Redis.Enabled {
		opt, err := buildValkeyOptions(cfg)
		if err != nil {
			logger.Error("invalid valkey configuration, falling back to memory store", "error", err)
			return querystore.NewMemoryStore()
		}
		client, err := valkey.NewClient(opt)
		if err != nil {
			logger.Error("failed to create valkey client, falling back to memory store", "error", err)
			return querystore.NewMemoryStore()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
			logger.Error("valkey ping failed, falling back to memory store", "error", err)
		} else {
			logger.Info("trending valkey store enabled", "addr", cfg.Trending.Redis.Addr)
			return querystore.NewValkeyStore(client, "sqlrag")
		}
	}
	return querystore.NewMemoryStore()
}

func buildValkeyOptions(cfg *config.Config) (valkey.ClientOption, error) {
	var (
		opt valkey.ClientOption
		err error
	)
	if strings.Contains(cfg.Trending.Redis.Addr, "://") {
		opt, err = valkey.ParseURL(cfg.Trending.Redis.Addr)
	} else {
		opt = valkey.ClientOption{InitAddress: []string{cfg.Trending.Redis.Addr}}
	}
	if err != nil {
		return valkey.ClientOption{}, err
	}
	return opt, nil
}
