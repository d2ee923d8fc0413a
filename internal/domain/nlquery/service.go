package nlquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nbertagnolli/sql-rag/internal/infra/llm/chatgpt"
	"github.com/nbertagnolli/sql-rag/internal/observability"
	apperrors "github.com/nbertagnolli/sql-rag/pkg/errors"
	"github.com/nbertagnolli/sql-rag/pkg/metrics"
	"github.com/nbertagnolli/sql-rag/pkg/util"
)

// Service resolves natural-language questions into executed SQL.
type Service interface {
	Resolve(ctx context.Context, req Request) (Response, error)
	AddTemplate(ctx context.Context, req AddTemplateRequest) (QueryTemplate, error)
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	Trending(ctx context.Context) ([]TrendingQuery, error)
}

// ChatClient is the slice of the ChatGPT client the pipeline needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req chatgpt.ChatCompletionRequest) (chatgpt.ChatCompletionResponse, error)
}

type service struct {
	cfg       Config
	templates TemplateRepository
	audits    AuditRepository
	executor  Executor
	embedder  Embedder
	trending  TrendingStore
	chat      ChatClient
	logger    *slog.Logger
	tokens    promptTokenCounter
}

// NewService wires up the query resolution domain.
func NewService(cfg Config, templates TemplateRepository, audits AuditRepository, executor Executor, embedder Embedder, trending TrendingStore, chat ChatClient, logger *slog.Logger) Service {
	return &service{
		cfg:       cfg,
		templates: templates,
		audits:    audits,
		executor:  executor,
		embedder:  embedder,
		trending:  trending,
		chat:      chat,
		logger:    logger.With("component", "nlquery.service"),
	}
}

// Resolve runs the full pipeline: embed, similarity lookup, then either
// templated execution or free-form generation with a single repair cycle.
func (s *service) Resolve(ctx context.Context, req Request) (Response, error) {
	question := strings.TrimSpace(req.Query)
	if question == "" {
		return Response{}, apperrors.Wrap("invalid_input", "query cannot be empty", nil)
	}
	start := util.NowUTC()

	vector, err := s.embedQuery(ctx, question)
	if err != nil {
		return Response{}, err
	}

	candidates, err := s.templates.FindSimilar(ctx, vector, s.candidateLimit())
	if err != nil {
		return Response{}, apperrors.Wrap("template_error", "similarity lookup failed", err)
	}

	// The threshold decision looks at the single closest candidate only.
	if len(candidates) > 0 && candidates[0].Distance < s.cfg.SimilarityThreshold {
		resp, matched, err := s.resolveWithTemplate(ctx, question, candidates)
		if err != nil {
			observability.ObserveResolution(SourceTemplate, "error", time.Since(start))
			return Response{}, err
		}
		if matched {
			s.recordTrending(ctx, question)
			observability.ObserveResolution(SourceTemplate, "success", time.Since(start))
			resp.DurationMs = time.Since(start).Milliseconds()
			return resp, nil
		}
		s.logger.Info("tool selection declined, falling back to generation", "question", question)
	}

	resp, err := s.resolveWithGeneration(ctx, question)
	if err != nil {
		observability.ObserveResolution(SourceGenerated, "error", time.Since(start))
		return Response{}, err
	}
	s.recordTrending(ctx, question)
	observability.ObserveResolution(SourceGenerated, "success", time.Since(start))
	resp.DurationMs = time.Since(start).Milliseconds()
	return resp, nil
}

// resolveWithTemplate offers the candidates as callable tools. A declined or
// unusable selection reports matched=false so the caller falls through to
// generation; only template execution failures are errors here, and they are
// not repaired.
func (s *service) resolveWithTemplate(ctx context.Context, question string, candidates []SimilarityResult) (Response, bool, error) {
	tools := make([]chatgpt.Tool, 0, len(candidates))
	for _, candidate := range candidates {
		tools = append(tools, toolFromTemplate(candidate.Template))
	}
	messages := []chatgpt.Message{
		{Role: "system", Content: ""},
		{Role: "user", Content: fmt.Sprintf("%s use your best judgement.", question)},
	}
	resp, err := s.chat.CreateChatCompletion(ctx, chatgpt.ChatCompletionRequest{
		Model:       s.cfg.Model,
		Messages:    messages,
		Temperature: s.cfg.Temperature,
		Tools:       tools,
	})
	if err != nil {
		return Response{}, false, apperrors.Wrap("llm_error", "tool selection failed", err)
	}

	name, args, ok := extractToolCall(resp)
	if !ok {
		return Response{}, false, nil
	}
	for _, candidate := range candidates {
		if candidate.Template.Name != name {
			continue
		}
		sqlText := substituteArguments(candidate.Template.QueryText, args)
		result, err := s.executor.Execute(ctx, sqlText)
		if err != nil {
			return Response{}, false, apperrors.Wrap("sql_error", "template query failed", err)
		}
		return Response{
			Columns:    result.Columns,
			Rows:       result.Rows,
			Source:     SourceTemplate,
			Template:   name,
			TokenUsage: usagePointer(usageFrom(resp)),
		}, true, nil
	}
	// A selection outside the candidate set is treated as no match.
	s.logger.Warn("tool selection outside candidate set", "name", name)
	return Response{}, false, nil
}

// resolveWithGeneration asks the model for SQL given the live schema, runs
// it, repairs at most once, and audits the interaction unconditionally once
// a query has been generated.
func (s *service) resolveWithGeneration(ctx context.Context, question string) (Response, error) {
	schema, err := s.executor.DescribeSchema(ctx)
	if err != nil {
		return Response{}, apperrors.Wrap("sql_error", "schema introspection failed", err)
	}

	messages := []chatgpt.Message{
		{Role: "system", Content: ""},
		{Role: "user", Content: buildGenerationPrompt(schema, question)},
	}

	generated, usage, err := s.generateSQL(ctx, messages)
	if err != nil {
		// Nothing to audit: no SQL was ever produced.
		return Response{}, err
	}

	finalSQL := generated.SQLQuery
	notes := generated.Notes

	var resolveErr error
	result, execErr := s.executor.Execute(ctx, finalSQL)
	if execErr != nil {
		s.logger.Warn("generated query failed, attempting repair", "error", execErr)
		observability.ObserveRepair()
		messages = append(messages,
			chatgpt.Message{Role: "assistant", Content: generated.raw},
			chatgpt.Message{Role: "user", Content: fmt.Sprintf(repairPromptFormat, execErr)},
		)
		repaired, repairUsage, genErr := s.generateSQL(ctx, messages)
		if genErr != nil {
			resolveErr = genErr
		} else {
			usage = usage.Add(repairUsage)
			finalSQL = repaired.SQLQuery
			notes = repaired.Notes
			result, execErr = s.executor.Execute(ctx, finalSQL)
			if execErr != nil {
				// Exactly one repair cycle; a second failure is fatal.
				resolveErr = apperrors.Wrap("sql_error", "repaired query failed", execErr)
			}
		}
	}

	if auditErr := s.writeAudit(ctx, question, finalSQL, messages); auditErr != nil {
		if resolveErr == nil {
			resolveErr = auditErr
		} else {
			s.logger.Error("audit write failed after resolution error", "error", auditErr)
		}
	}
	if resolveErr != nil {
		return Response{}, resolveErr
	}

	return Response{
		Columns:    result.Columns,
		Rows:       result.Rows,
		Source:     SourceGenerated,
		Notes:      notes,
		TokenUsage: usagePointer(usage),
	}, nil
}

type generatedSQL struct {
	SQLQuery string `json:"sql_query"`
	Notes    string `json:"notes"`
	raw      string
}

func (s *service) generateSQL(ctx context.Context, messages []chatgpt.Message) (generatedSQL, metrics.TokenUsage, error) {
	resp, err := s.chat.CreateChatCompletion(ctx, chatgpt.ChatCompletionRequest{
		Model:          s.cfg.Model,
		Messages:       messages,
		Temperature:    s.cfg.Temperature,
		ResponseFormat: sqlOutputFormat(),
	})
	if err != nil {
		return generatedSQL{}, metrics.TokenUsage{}, apperrors.Wrap("llm_error", "sql generation failed", err)
	}
	if len(resp.Choices) == 0 {
		return generatedSQL{}, metrics.TokenUsage{}, apperrors.Wrap("llm_error", "sql generation returned no choices", errors.New("empty choices"))
	}
	content := resp.Choices[0].Message.Content
	var out generatedSQL
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return generatedSQL{}, metrics.TokenUsage{}, apperrors.Wrap("llm_error", "sql generation output not parseable", err)
	}
	if strings.TrimSpace(out.SQLQuery) == "" {
		return generatedSQL{}, metrics.TokenUsage{}, apperrors.Wrap("llm_error", "sql generation output missing sql_query", nil)
	}
	out.raw = content

	usage := usageFrom(resp)
	if usage.PromptTokens == 0 {
		usage.PromptTokens = s.tokens.Count(messages)
	}
	return out, usage, nil
}

func (s *service) writeAudit(ctx context.Context, question, finalSQL string, messages []chatgpt.Message) error {
	trace, err := json.Marshal(messages)
	if err != nil {
		return apperrors.Wrap("audit_error", "serialize conversation trace", err)
	}
	record := AuditRecord{
		UserQuery:           question,
		ResolvedSQL:         finalSQL,
		ConversationHistory: string(trace),
	}
	if err := s.audits.Insert(ctx, record); err != nil {
		return apperrors.Wrap("audit_error", "audit write failed", err)
	}
	return nil
}

// AddTemplate embeds the template's SQL text and stores it. Used by the
// seeding path only, never by resolution.
func (s *service) AddTemplate(ctx context.Context, req AddTemplateRequest) (QueryTemplate, error) {
	name := strings.TrimSpace(req.Name)
	queryText := strings.TrimSpace(req.Query)
	if name == "" {
		return QueryTemplate{}, apperrors.Wrap("invalid_input", "template name cannot be empty", nil)
	}
	if queryText == "" {
		return QueryTemplate{}, apperrors.Wrap("invalid_input", "template query cannot be empty", nil)
	}
	if len(req.Args) != len(req.ArgTypes) {
		return QueryTemplate{}, apperrors.Wrap("invalid_input", "args and argTypes must have the same length", nil)
	}
	for _, argType := range req.ArgTypes {
		if strings.TrimSpace(argType) == "" {
			return QueryTemplate{}, apperrors.Wrap("invalid_input", "argTypes entries cannot be empty", nil)
		}
	}

	vector, err := s.embedQuery(ctx, queryText)
	if err != nil {
		return QueryTemplate{}, err
	}
	template := QueryTemplate{
		Name:           name,
		QueryText:      req.Query,
		ParameterNames: req.Args,
		ParameterTypes: req.ArgTypes,
		Embedding:      vector,
	}
	stored, err := s.templates.Insert(ctx, template)
	if err != nil {
		if errors.Is(err, ErrDuplicateTemplate) {
			return QueryTemplate{}, apperrors.Wrap("duplicate_template", "template name already exists", err)
		}
		return QueryTemplate{}, apperrors.Wrap("template_error", "template insert failed", err)
	}
	return stored, nil
}

// Search exposes the similarity lookup directly.
func (s *service) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	question := strings.TrimSpace(query)
	if question == "" {
		return nil, apperrors.Wrap("invalid_input", "query cannot be empty", nil)
	}
	if limit <= 0 {
		limit = s.candidateLimit()
	}
	vector, err := s.embedQuery(ctx, question)
	if err != nil {
		return nil, err
	}
	matches, err := s.templates.FindSimilar(ctx, vector, limit)
	if err != nil {
		return nil, apperrors.Wrap("template_error", "similarity lookup failed", err)
	}
	results := make([]SearchResult, 0, len(matches))
	for _, match := range matches {
		results = append(results, SearchResult{
			Name:     match.Template.Name,
			Query:    match.Template.QueryText,
			Args:     match.Template.ParameterNames,
			ArgTypes: match.Template.ParameterTypes,
			Distance: match.Distance,
		})
	}
	return results, nil
}

// Trending returns the most frequently asked questions.
func (s *service) Trending(ctx context.Context) ([]TrendingQuery, error) {
	top, err := s.trending.TopQueries(ctx, s.cfg.TopTrending)
	if err != nil {
		return nil, apperrors.Wrap("trending_error", "failed to load trending queries", err)
	}
	return top, nil
}

func (s *service) embedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, apperrors.Wrap("embedding_error", "embedding failed", err)
	}
	if len(vector) == 0 {
		return nil, apperrors.Wrap("embedding_error", "embedding response empty", nil)
	}
	if s.cfg.VectorDim > 0 && len(vector) != s.cfg.VectorDim {
		return nil, apperrors.Wrap("embedding_error",
			fmt.Sprintf("expected %d-dim embedding, got %d", s.cfg.VectorDim, len(vector)), nil)
	}
	return vector, nil
}

func (s *service) recordTrending(ctx context.Context, question string) {
	if s.trending == nil {
		return
	}
	if err := s.trending.IncrementQuery(ctx, normalizeQuestion(question), question); err != nil {
		s.logger.Warn("trending increment failed", "error", err)
	}
}

func (s *service) candidateLimit() int {
	if s.cfg.CandidateLimit > 0 {
		return s.cfg.CandidateLimit
	}
	return 5
}

// extractToolCall pulls the selected template name and its loosely-typed
// string arguments out of a tool-selection response.
func extractToolCall(resp chatgpt.ChatCompletionResponse) (string, map[string]string, bool) {
	if len(resp.Choices) == 0 {
		return "", nil, false
	}
	choice := resp.Choices[0]
	if choice.FinishReason != "tool_calls" || len(choice.Message.ToolCalls) == 0 {
		return "", nil, false
	}
	call := choice.Message.ToolCalls[0]
	raw := map[string]any{}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &raw); err != nil {
		return "", nil, false
	}
	args := make(map[string]string, len(raw))
	for key, value := range raw {
		switch typed := value.(type) {
		case string:
			args[key] = typed
		case float64:
			args[key] = strconv.FormatFloat(typed, 'f', -1, 64)
		default:
			args[key] = fmt.Sprintf("%v", typed)
		}
	}
	return call.Function.Name, args, true
}

func usageFrom(resp chatgpt.ChatCompletionResponse) metrics.TokenUsage {
	return metrics.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
}

func usagePointer(usage metrics.TokenUsage) *metrics.TokenUsage {
	if usage.IsZero() {
		return nil
	}
	return &usage
}
