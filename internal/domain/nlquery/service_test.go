package nlquery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nbertagnolli/sql-rag/internal/infra/llm/chatgpt"
	apperrors "github.com/nbertagnolli/sql-rag/pkg/errors"
)

type stubTemplates struct {
	candidates []SimilarityResult
	findErr    error
	inserted   []QueryTemplate
	insertErr  error
}

func (s *stubTemplates) FindSimilar(_ context.Context, _ []float32, limit int) ([]SimilarityResult, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if limit > 0 && len(s.candidates) > limit {
		return s.candidates[:limit], nil
	}
	return s.candidates, nil
}

func (s *stubTemplates) Insert(_ context.Context, template QueryTemplate) (QueryTemplate, error) {
	if s.insertErr != nil {
		return QueryTemplate{}, s.insertErr
	}
	template.ID = int64(len(s.inserted) + 1)
	s.inserted = append(s.inserted, template)
	return template, nil
}

type stubAudits struct {
	records   []AuditRecord
	insertErr error
}

func (s *stubAudits) Insert(_ context.Context, record AuditRecord) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.records = append(s.records, record)
	return nil
}

type stubExecutor struct {
	executed  []string
	execErrs  []error
	results   []ResultSet
	schema    ResultSet
	schemaErr error
}

func (s *stubExecutor) Execute(_ context.Context, sql string) (ResultSet, error) {
	call := len(s.executed)
	s.executed = append(s.executed, sql)
	if call < len(s.execErrs) && s.execErrs[call] != nil {
		return ResultSet{}, s.execErrs[call]
	}
	if call < len(s.results) {
		return s.results[call], nil
	}
	return ResultSet{Columns: []string{"value"}, Rows: [][]any{{int64(1)}}}, nil
}

func (s *stubExecutor) DescribeSchema(_ context.Context) (ResultSet, error) {
	if s.schemaErr != nil {
		return ResultSet{}, s.schemaErr
	}
	return s.schema, nil
}

type stubChat struct {
	responses []chatgpt.ChatCompletionResponse
	errs      []error
	requests  []chatgpt.ChatCompletionRequest
}

func (s *stubChat) CreateChatCompletion(_ context.Context, req chatgpt.ChatCompletionRequest) (chatgpt.ChatCompletionResponse, error) {
	call := len(s.requests)
	s.requests = append(s.requests, req)
	if call < len(s.errs) && s.errs[call] != nil {
		return chatgpt.ChatCompletionResponse{}, s.errs[call]
	}
	if call < len(s.responses) {
		return s.responses[call], nil
	}
	return chatgpt.ChatCompletionResponse{}, errors.New("no stubbed response")
}

type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vector, nil
}

type stubTrending struct {
	increments []string
	top        []TrendingQuery
}

func (s *stubTrending) IncrementQuery(_ context.Context, canonical, _ string) error {
	s.increments = append(s.increments, canonical)
	return nil
}

func (s *stubTrending) TopQueries(_ context.Context, _ int) ([]TrendingQuery, error) {
	return s.top, nil
}

type fixture struct {
	templates *stubTemplates
	audits    *stubAudits
	executor  *stubExecutor
	chat      *stubChat
	trending  *stubTrending
	svc       Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		templates: &stubTemplates{},
		audits:    &stubAudits{},
		executor:  &stubExecutor{schema: ResultSet{Columns: []string{"table_schema", "table_name", "column_name", "data_type"}, Rows: [][]any{{"public", "all_companies", "Annual Revenue", "text"}}}},
		chat:      &stubChat{},
		trending:  &stubTrending{},
	}
	f.svc = NewService(Config{
		Model:               "gpt-4o-2024-08-06",
		SimilarityThreshold: 0.1,
		CandidateLimit:      5,
		VectorDim:           3,
	}, f.templates, f.audits, f.executor, &stubEmbedder{vector: []float32{0.1, 0.2, 0.3}}, f.trending, f.chat, newTestLogger())
	return f
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func toolCallResponse(name, arguments string) chatgpt.ChatCompletionResponse {
	return chatgpt.ChatCompletionResponse{
		Choices: []chatgpt.Choice{{
			FinishReason: "tool_calls",
			Message: chatgpt.Message{
				Role: "assistant",
				ToolCalls: []chatgpt.ToolCall{{
					ID:   "call_1",
					Type: "function",
					Function: chatgpt.ToolCallDefinition{
						Name:      name,
						Arguments: arguments,
					},
				}},
			},
		}},
		Usage: chatgpt.Usage{PromptTokens: 40, CompletionTokens: 10, TotalTokens: 50},
	}
}

func generationResponse(sqlQuery, notes string) chatgpt.ChatCompletionResponse {
	payload, _ := json.Marshal(map[string]string{"sql_query": sqlQuery, "notes": notes})
	return chatgpt.ChatCompletionResponse{
		Choices: []chatgpt.Choice{{
			FinishReason: "stop",
			Message:      chatgpt.Message{Role: "assistant", Content: string(payload)},
		}},
		Usage: chatgpt.Usage{PromptTokens: 120, CompletionTokens: 30, TotalTokens: 150},
	}
}

func revenueTemplate() QueryTemplate {
	return QueryTemplate{
		ID:             1,
		Name:           "total_revenue_by_country",
		QueryText:      `SELECT "Country/Region", SUM("Annual Revenue") AS total_revenue FROM all_companies GROUP BY "Country/Region" ORDER BY total_revenue {order};`,
		ParameterNames: []string{"order"},
		ParameterTypes: []string{"string"},
	}
}

func TestResolveTemplatePathExecutesSubstitutedQuery(t *testing.T) {
	f := newFixture(t)
	f.templates.candidates = []SimilarityResult{{Template: revenueTemplate(), Distance: 0.03}}
	f.chat.responses = []chatgpt.ChatCompletionResponse{
		toolCallResponse("total_revenue_by_country", `{"order":"DESC"}`),
	}

	resp, err := f.svc.Resolve(context.Background(), Request{Query: "total revenue by country, biggest first"})
	require.NoError(t, err)

	require.Equal(t, SourceTemplate, resp.Source)
	require.Equal(t, "total_revenue_by_country", resp.Template)
	require.Len(t, f.executor.executed, 1)
	require.Contains(t, f.executor.executed[0], "ORDER BY total_revenue DESC;")
	require.NotContains(t, f.executor.executed[0], "{order}")

	// The template path never audits.
	require.Empty(t, f.audits.records)
	require.Len(t, f.trending.increments, 1)
	require.NotNil(t, resp.TokenUsage)
	require.Equal(t, 50, resp.TokenUsage.TotalTokens)
}

func TestResolveTemplatePathStringifiesNumericArguments(t *testing.T) {
	f := newFixture(t)
	tmpl := QueryTemplate{
		ID:             2,
		Name:           "top_10_companies_by_revenue",
		QueryText:      `SELECT "Company name" FROM all_companies ORDER BY "Annual Revenue" {order} LIMIT {limit};`,
		ParameterNames: []string{"order", "limit"},
		ParameterTypes: []string{"string", "number"},
	}
	f.templates.candidates = []SimilarityResult{{Template: tmpl, Distance: 0.05}}
	f.chat.responses = []chatgpt.ChatCompletionResponse{
		toolCallResponse("top_10_companies_by_revenue", `{"order":"DESC","limit":10}`),
	}

	_, err := f.svc.Resolve(context.Background(), Request{Query: "top ten companies"})
	require.NoError(t, err)
	require.Contains(t, f.executor.executed[0], "LIMIT 10;")
}

func TestResolveDistanceAtThresholdUsesGeneration(t *testing.T) {
	f := newFixture(t)
	// Exactly at the threshold: strict less-than means generation wins.
	f.templates.candidates = []SimilarityResult{{Template: revenueTemplate(), Distance: 0.1}}
	f.chat.responses = []chatgpt.ChatCompletionResponse{
		generationResponse("SELECT count(*) FROM all_companies", "counts rows"),
	}

	resp, err := f.svc.Resolve(context.Background(), Request{Query: "how many companies are there?"})
	require.NoError(t, err)
	require.Equal(t, SourceGenerated, resp.Source)
	require.Equal(t, "counts rows", resp.Notes)
	require.Equal(t, []string{"SELECT count(*) FROM all_companies"}, f.executor.executed)
	require.Len(t, f.audits.records, 1)
}

func TestResolveToolDeclineFallsThroughToGeneration(t *testing.T) {
	f := newFixture(t)
	f.templates.candidates = []SimilarityResult{{Template: revenueTemplate(), Distance: 0.02}}
	f.chat.responses = []chatgpt.ChatCompletionResponse{
		{
			Choices: []chatgpt.Choice{{FinishReason: "stop", Message: chatgpt.Message{Role: "assistant", Content: "none of these fit"}}},
			Usage:   chatgpt.Usage{PromptTokens: 10, TotalTokens: 12},
		},
		generationResponse("SELECT 1", ""),
	}

	resp, err := f.svc.Resolve(context.Background(), Request{Query: "something the templates cannot answer"})
	require.NoError(t, err)
	require.Equal(t, SourceGenerated, resp.Source)
	require.Len(t, f.chat.requests, 2)
	require.Len(t, f.audits.records, 1)
}

func TestResolveUnknownToolNameFallsThroughToGeneration(t *testing.T) {
	f := newFixture(t)
	f.templates.candidates = []SimilarityResult{{Template: revenueTemplate(), Distance: 0.02}}
	f.chat.responses = []chatgpt.ChatCompletionResponse{
		toolCallResponse("not_a_registered_template", `{}`),
		generationResponse("SELECT 1", ""),
	}

	resp, err := f.svc.Resolve(context.Background(), Request{Query: "question"})
	require.NoError(t, err)
	require.Equal(t, SourceGenerated, resp.Source)
	// The unusable selection produced no execution and no audit of its own.
	require.Len(t, f.executor.executed, 1)
	require.Len(t, f.audits.records, 1)
}

func TestResolveRepairsFailedGenerationOnce(t *testing.T) {
	f := newFixture(t)
	execErr := errors.New(`column "reveue" does not exist`)
	f.executor.execErrs = []error{execErr, nil}
	f.chat.responses = []chatgpt.ChatCompletionResponse{
		generationResponse("SELECT reveue FROM all_companies", ""),
		generationResponse(`SELECT "Annual Revenue" FROM all_companies`, "fixed column name"),
	}

	resp, err := f.svc.Resolve(context.Background(), Request{Query: "show revenue"})
	require.NoError(t, err)
	require.Equal(t, "fixed column name", resp.Notes)
	require.Equal(t, []string{
		"SELECT reveue FROM all_companies",
		`SELECT "Annual Revenue" FROM all_companies`,
	}, f.executor.executed)

	// The repair call sees the original exchange plus the assistant answer
	// and the error report.
	require.Len(t, f.chat.requests, 2)
	first := f.chat.requests[0].Messages
	second := f.chat.requests[1].Messages
	require.Len(t, second, len(first)+2)
	require.Equal(t, "assistant", second[len(second)-2].Role)
	require.Equal(t, "user", second[len(second)-1].Role)
	require.Contains(t, second[len(second)-1].Content, execErr.Error())

	// Token usage accumulates across both generations.
	require.NotNil(t, resp.TokenUsage)
	require.Equal(t, 300, resp.TokenUsage.TotalTokens)

	require.Len(t, f.audits.records, 1)
	record := f.audits.records[0]
	require.Equal(t, `SELECT "Annual Revenue" FROM all_companies`, record.ResolvedSQL)
	require.Contains(t, record.ConversationHistory, "please fix the query")
}

func TestResolveSecondFailureIsFatalButStillAudited(t *testing.T) {
	f := newFixture(t)
	f.executor.execErrs = []error{errors.New("syntax error"), errors.New("still broken")}
	f.chat.responses = []chatgpt.ChatCompletionResponse{
		generationResponse("SELECT broken", ""),
		generationResponse("SELECT still_broken", ""),
	}

	_, err := f.svc.Resolve(context.Background(), Request{Query: "question"})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "sql_error"))
	require.Len(t, f.executor.executed, 2)

	// The failure is still audited with the last generated query.
	require.Len(t, f.audits.records, 1)
	require.Equal(t, "SELECT still_broken", f.audits.records[0].ResolvedSQL)
}

func TestResolveGenerationErrorSkipsAudit(t *testing.T) {
	f := newFixture(t)
	f.chat.errs = []error{errors.New("upstream unavailable")}

	_, err := f.svc.Resolve(context.Background(), Request{Query: "question"})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "llm_error"))
	require.Empty(t, f.audits.records)
	require.Empty(t, f.trending.increments)
}

func TestResolveRepairGenerationErrorIsFatalButAudited(t *testing.T) {
	f := newFixture(t)
	f.executor.execErrs = []error{errors.New("syntax error")}
	f.chat.responses = []chatgpt.ChatCompletionResponse{generationResponse("SELECT broken", "")}
	f.chat.errs = []error{nil, errors.New("upstream unavailable")}

	_, err := f.svc.Resolve(context.Background(), Request{Query: "question"})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "llm_error"))
	// The first generation succeeded, so the interaction is audited.
	require.Len(t, f.audits.records, 1)
	require.Equal(t, "SELECT broken", f.audits.records[0].ResolvedSQL)
}

func TestResolveAuditFailureFailsTheRequest(t *testing.T) {
	f := newFixture(t)
	f.audits.insertErr = errors.New("disk full")
	f.chat.responses = []chatgpt.ChatCompletionResponse{generationResponse("SELECT 1", "")}

	_, err := f.svc.Resolve(context.Background(), Request{Query: "question"})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "audit_error"))
}

func TestResolveTemplateExecutionFailureIsNotRepaired(t *testing.T) {
	f := newFixture(t)
	f.templates.candidates = []SimilarityResult{{Template: revenueTemplate(), Distance: 0.01}}
	f.executor.execErrs = []error{errors.New("relation missing")}
	f.chat.responses = []chatgpt.ChatCompletionResponse{
		toolCallResponse("total_revenue_by_country", `{"order":"ASC"}`),
	}

	_, err := f.svc.Resolve(context.Background(), Request{Query: "question"})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "sql_error"))
	require.Len(t, f.chat.requests, 1)
	require.Empty(t, f.audits.records)
}

func TestResolveEmptyQueryRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Resolve(context.Background(), Request{Query: "   "})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "invalid_input"))
}

func TestResolveRejectsWrongEmbeddingDimension(t *testing.T) {
	f := newFixture(t)
	svc := NewService(Config{SimilarityThreshold: 0.1, CandidateLimit: 5, VectorDim: 384},
		f.templates, f.audits, f.executor, &stubEmbedder{vector: []float32{1, 2, 3}}, f.trending, f.chat, newTestLogger())

	_, err := svc.Resolve(context.Background(), Request{Query: "question"})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "embedding_error"))
}

func TestAddTemplateValidatesInput(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		req  AddTemplateRequest
	}{
		{"empty name", AddTemplateRequest{Query: "SELECT 1"}},
		{"empty query", AddTemplateRequest{Name: "x"}},
		{"arg length mismatch", AddTemplateRequest{Name: "x", Query: "SELECT 1", Args: []string{"a"}, ArgTypes: nil}},
		{"empty arg type", AddTemplateRequest{Name: "x", Query: "SELECT 1", Args: []string{"a"}, ArgTypes: []string{" "}}},
	}
	for _, tc := range cases {
		_, err := f.svc.AddTemplate(context.Background(), tc.req)
		require.Error(t, err, tc.name)
		require.True(t, apperrors.IsCode(err, "invalid_input"), tc.name)
	}
}

func TestAddTemplateDuplicateName(t *testing.T) {
	f := newFixture(t)
	f.templates.insertErr = ErrDuplicateTemplate

	_, err := f.svc.AddTemplate(context.Background(), AddTemplateRequest{
		Name:     "total_revenue_by_country",
		Query:    "SELECT 1",
		Args:     []string{"order"},
		ArgTypes: []string{"string"},
	})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "duplicate_template"))
}

func TestSearchMapsMatches(t *testing.T) {
	f := newFixture(t)
	f.templates.candidates = []SimilarityResult{{Template: revenueTemplate(), Distance: 0.42}}

	results, err := f.svc.Search(context.Background(), "revenue", 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "total_revenue_by_country", results[0].Name)
	require.Equal(t, 0.42, results[0].Distance)
	require.Equal(t, []string{"order"}, results[0].Args)
}

func TestTrendingUsesStore(t *testing.T) {
	f := newFixture(t)
	f.trending.top = []TrendingQuery{{Query: "show revenue", Count: 7}}

	items, err := f.svc.Trending(context.Background())
	require.NoError(t, err)
	require.Equal(t, f.trending.top, items)
}

func TestExtractToolCallRequiresToolCallsFinish(t *testing.T) {
	resp := toolCallResponse("name", `{"order":"ASC"}`)
	resp.Choices[0].FinishReason = "stop"
	_, _, ok := extractToolCall(resp)
	require.False(t, ok)
}

func TestExtractToolCallParsesArguments(t *testing.T) {
	name, args, ok := extractToolCall(toolCallResponse("top_10", `{"order":"DESC","limit":10,"flag":true}`))
	require.True(t, ok)
	require.Equal(t, "top_10", name)
	require.Equal(t, "DESC", args["order"])
	require.Equal(t, "10", args["limit"])
	require.Equal(t, "true", args["flag"])
}

func TestGenerationPromptContainsSchemaAndQuestion(t *testing.T) {
	schema := ResultSet{
		Columns: []string{"table_schema", "table_name", "column_name", "data_type"},
		Rows: [][]any{
			{"public", "all_companies", "Annual Revenue", "text"},
			{"public", "all_companies", nil, "text"},
		},
	}
	prompt := buildGenerationPrompt(schema, "what is the total revenue?")
	require.Contains(t, prompt, "information_schema.columns")
	require.Contains(t, prompt, "(public, all_companies, Annual Revenue, text)")
	require.Contains(t, prompt, "(public, all_companies, NULL, text)")
	require.Contains(t, prompt, "what is the total revenue?")
	require.True(t, strings.Contains(prompt, "sql_query"))
}
