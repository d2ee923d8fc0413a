package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nbertagnolli/sql-rag/internal/domain/auth"
	"github.com/nbertagnolli/sql-rag/internal/infra/config"
	"github.com/nbertagnolli/sql-rag/internal/observability"
)

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg *config.Config, handler *Handler, authSvc auth.Service, logger *slog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestIDMiddleware(),
		requestLogger(logger),
		corsMiddleware(cfg.HTTP.AllowedOrigins),
	)

	api := router.Group("/api/v1")
	api.Use(errorHandlingMiddleware(logger))
	if cfg.HTTP.RateLimit.Enabled {
		api.Use(rateLimitMiddleware(cfg.HTTP.RateLimit, logger))
	}
	if cfg.HTTP.Auth.Enabled {
		api.Use(authMiddleware(authSvc))
	}
	{
		api.POST("/queries", handler.ResolveQuery)
		api.GET("/queries/trending", handler.TrendingQueries)
		api.POST("/templates", handler.AddTemplate)
		api.GET("/templates/search", handler.SearchTemplates)
	}

	router.GET("/healthz", handler.Health)
	router.GET("/healthz/db", handler.HealthDB)
	router.GET("/metrics", gin.WrapH(observability.MetricsHandler()))

	var root http.Handler = router
	if cfg.HTTP.Retry.Enabled {
		root = withRetry(root, cfg.HTTP.Retry, logger)
	}

	return &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        root,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}
