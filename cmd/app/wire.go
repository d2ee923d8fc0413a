//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/nbertagnolli/sql-rag/internal/bootstrap"
	"github.com/nbertagnolli/sql-rag/internal/domain/auth"
	"github.com/nbertagnolli/sql-rag/internal/domain/nlquery"
	"github.com/nbertagnolli/sql-rag/internal/infra/config"
	"github.com/nbertagnolli/sql-rag/internal/infra/llm/chatgpt"
	httpiface "github.com/nbertagnolli/sql-rag/internal/interface/http"
	"github.com/nbertagnolli/sql-rag/pkg/logger"
)

func initializeApp() (*bootstrap.App, error) {
	wire.Build(
		config.Load,
		logger.New,
		providePipelineConfig,
		provideAuthConfig,
		provideChatGPTClient,
		providePool,
		provideTemplateRepository,
		provideAuditRepository,
		provideExecutor,
		provideEmbedder,
		provideTrendingStore,
		nlquery.NewService,
		auth.NewService,
		wire.Bind(new(nlquery.ChatClient), new(*chatgpt.Client)),
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil
}
