package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nbertagnolli/sql-rag/internal/domain/nlquery"
	apperrors "github.com/nbertagnolli/sql-rag/pkg/errors"
)

// Handler wires the HTTP transport to the query resolution domain.
type Handler struct {
	querySvc nlquery.Service
	executor nlquery.Executor
	logger   *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(querySvc nlquery.Service, executor nlquery.Executor, logger *slog.Logger) *Handler {
	return &Handler{
		querySvc: querySvc,
		executor: executor,
		logger:   logger.With("component", "http.handler"),
	}
}

// ResolveQuery answers a natural-language question with executed SQL rows.
func (h *Handler) ResolveQuery(c *gin.Context) {
	var req nlquery.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	resp, err := h.querySvc.Resolve(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		code := "query_failed"
		switch {
		case apperrors.IsCode(err, "invalid_input"):
			status = http.StatusBadRequest
			code = "invalid_request"
		case apperrors.IsCode(err, "embedding_error"), apperrors.IsCode(err, "llm_error"):
			status = http.StatusBadGateway
		case apperrors.IsCode(err, "sql_error"):
			status = http.StatusUnprocessableEntity
		}
		abortWithError(c, NewHTTPError(status, code, errMessage(err), err))
		return
	}

	c.JSON(http.StatusOK, resp)
}

// AddTemplate registers a parameterized query template.
func (h *Handler) AddTemplate(c *gin.Context) {
	var req nlquery.AddTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	template, err := h.querySvc.AddTemplate(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		code := "template_add_failed"
		switch {
		case apperrors.IsCode(err, "invalid_input"):
			status = http.StatusBadRequest
			code = "invalid_request"
		case apperrors.IsCode(err, "duplicate_template"):
			status = http.StatusConflict
			code = "duplicate_template"
		case apperrors.IsCode(err, "embedding_error"):
			status = http.StatusBadGateway
		}
		abortWithError(c, NewHTTPError(status, code, errMessage(err), err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"name":   template.Name,
		"id":     template.ID,
	})
}

// SearchTemplates returns similarity matches for a free-text query.
func (h *Handler) SearchTemplates(c *gin.Context) {
	query := c.Query("q")
	limit := 0
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "n must be a positive integer", err))
			return
		}
		limit = parsed
	}

	results, err := h.querySvc.Search(c.Request.Context(), query, limit)
	if err != nil {
		status := http.StatusInternalServerError
		code := "search_failed"
		switch {
		case apperrors.IsCode(err, "invalid_input"):
			status = http.StatusBadRequest
			code = "invalid_request"
		case apperrors.IsCode(err, "embedding_error"):
			status = http.StatusBadGateway
		}
		abortWithError(c, NewHTTPError(status, code, errMessage(err), err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// TrendingQueries returns the most frequently asked questions.
func (h *Handler) TrendingQueries(c *gin.Context) {
	items, err := h.querySvc.Trending(c.Request.Context())
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "trending_failed", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"trending": items})
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// HealthDB is the legacy connectivity probe. It intentionally swallows
// database errors and reports whatever it managed to read; the resolution
// pipeline never does this.
func (h *Handler) HealthDB(c *gin.Context) {
	result, err := h.executor.Execute(c.Request.Context(), "SELECT name FROM queries LIMIT 5")
	if err != nil {
		h.logger.Warn("db health check failed", "error", err)
		c.JSON(http.StatusOK, gin.H{"status": "degraded", "templates": []string{}})
		return
	}
	names := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) > 0 {
			if name, ok := row[0].(string); ok {
				names = append(names, name)
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "templates": names})
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
