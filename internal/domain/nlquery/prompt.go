package nlquery

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/nbertagnolli/sql-rag/internal/infra/llm/chatgpt"
)

const generationPromptFormat = `I ran this query on my database:

` + "```" + `
%s
` + "```" + `

 and got the following result:

 ` + "```" + `
 %s
 ` + "```" + `

As a senior analyst working in postgres, given the above schemas and data, write a detailed and correct postgres query to answer the analytical question:

%s

Your output should be structured as follows:

1. ` + "`sql_query`" + `: Only the raw SQL query that can be executed directly in psql, without any comments or explanations.
2. ` + "`notes`" + `: A brief description of what the SQL query does, but this is optional. The ` + "`sql_query`" + ` should contain only the SQL query itself.

Make sure the ` + "`sql_query`" + ` is a valid SQL query and contains no comments or additional text.
`

const repairPromptFormat = "This query didn't run. We got this error %s please fix the query so that it will run."

// buildGenerationPrompt renders the schema introspection output and the user
// question into the free-form generation prompt.
func buildGenerationPrompt(schema ResultSet, question string) string {
	return fmt.Sprintf(generationPromptFormat, strings.TrimSpace(SchemaQuery), renderRows(schema), question)
}

func renderRows(rs ResultSet) string {
	var b strings.Builder
	for i, row := range rs.Rows {
		if i > 0 {
			b.WriteString("\n")
		}
		parts := make([]string, len(row))
		for j, value := range row {
			if value == nil {
				parts[j] = "NULL"
				continue
			}
			parts[j] = fmt.Sprintf("%v", value)
		}
		b.WriteString("(" + strings.Join(parts, ", ") + ")")
	}
	return b.String()
}

// sqlOutputFormat constrains generation to the {sql_query, notes} structure.
func sqlOutputFormat() *chatgpt.ResponseFormat {
	return &chatgpt.ResponseFormat{
		Type: "json_schema",
		JSONSchema: &chatgpt.JSONSchema{
			Name:   "chat_sql_output",
			Strict: true,
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"sql_query": map[string]any{"type": "string"},
					"notes":     map[string]any{"type": "string"},
				},
				"required":             []string{"sql_query", "notes"},
				"additionalProperties": false,
			},
		},
	}
}

// toolFromTemplate exposes a query template as a callable function spec.
func toolFromTemplate(t QueryTemplate) chatgpt.Tool {
	properties := make(map[string]any, len(t.ParameterNames))
	for i, name := range t.ParameterNames {
		paramType := "string"
		if i < len(t.ParameterTypes) {
			paramType = t.ParameterTypes[i]
		}
		properties[name] = map[string]any{"title": name, "type": paramType}
	}
	return chatgpt.Tool{
		Type: "function",
		Function: chatgpt.ToolFunction{
			Name: t.Name,
			Description: fmt.Sprintf("%s(%s) - This function will call the following query %s with arguments",
				t.Name, strings.Join(t.ParameterNames, ", "), t.QueryText),
			Parameters: map[string]any{
				"title":      t.Name + "_schema",
				"type":       "object",
				"properties": properties,
				"required":   t.ParameterNames,
			},
		},
	}
}

// promptTokenCounter estimates prompt size when the API omits usage data.
// The tokenizer is loaded lazily: fetching the BPE ranks can fail offline,
// in which case estimates stay at zero.
type promptTokenCounter struct {
	once    sync.Once
	encoder *tiktoken.Tiktoken
}

func (c *promptTokenCounter) Count(messages []chatgpt.Message) int {
	c.once.Do(func() {
		if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			c.encoder = enc
		}
	})
	if c.encoder == nil {
		return 0
	}
	total := 0
	for _, message := range messages {
		total += len(c.encoder.Encode(message.Content, nil, nil))
	}
	return total
}
