package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nbertagnolli/sql-rag/internal/domain/nlquery"
	"github.com/nbertagnolli/sql-rag/internal/infra/config"
	"github.com/nbertagnolli/sql-rag/internal/infra/embedding"
	"github.com/nbertagnolli/sql-rag/internal/infra/llm/chatgpt"
	"github.com/nbertagnolli/sql-rag/internal/infra/templaterepo"
)

var templatesFile string

type templateSpec struct {
	Name     string   `yaml:"name"`
	Query    string   `yaml:"query"`
	Args     []string `yaml:"args"`
	ArgTypes []string `yaml:"argTypes"`
}

type templatesFileSpec struct {
	Templates []templateSpec `yaml:"templates"`
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Embed and register query templates",
	Long: `Embeds each template's SQL and inserts it into the queries table. Without
--file the built-in starter templates are registered.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		specs, err := resolveTemplateSpecs()
		if err != nil {
			return err
		}
		embedder, err := buildEmbedder(cfg)
		if err != nil {
			return err
		}
		pool, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		repo := templaterepo.NewPostgresRepository(pool)

		for _, spec := range specs {
			vector, err := embedder.Embed(ctx, spec.Query)
			if err != nil {
				return fmt.Errorf("embed %s: %w", spec.Name, err)
			}
			template := nlquery.QueryTemplate{
				Name:           spec.Name,
				QueryText:      spec.Query,
				ParameterNames: spec.Args,
				ParameterTypes: spec.ArgTypes,
				Embedding:      vector,
			}
			if _, err := repo.Insert(ctx, template); err != nil {
				if errors.Is(err, nlquery.ErrDuplicateTemplate) {
					fmt.Printf("Skipped %s (already registered)\n", spec.Name)
					continue
				}
				return fmt.Errorf("insert %s: %w", spec.Name, err)
			}
			fmt.Printf("Registered %s\n", spec.Name)
		}
		return nil
	},
}

func init() {
	templatesCmd.Flags().StringVar(&templatesFile, "file", "", "yaml file with templates (defaults to the built-ins)")
}

func resolveTemplateSpecs() ([]templateSpec, error) {
	if templatesFile == "" {
		return builtinTemplates(), nil
	}
	data, err := os.ReadFile(templatesFile)
	if err != nil {
		return nil, fmt.Errorf("read templates file: %w", err)
	}
	var parsed templatesFileSpec
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse templates file: %w", err)
	}
	if len(parsed.Templates) == 0 {
		return nil, fmt.Errorf("templates file contains no templates")
	}
	for _, spec := range parsed.Templates {
		if strings.TrimSpace(spec.Name) == "" || strings.TrimSpace(spec.Query) == "" {
			return nil, fmt.Errorf("every template needs a name and a query")
		}
		if len(spec.Args) != len(spec.ArgTypes) {
			return nil, fmt.Errorf("template %s: args and argTypes must match in length", spec.Name)
		}
	}
	return parsed.Templates, nil
}

func buildEmbedder(cfg *config.Config) (nlquery.Embedder, error) {
	logger := slog.Default()
	if endpoint := strings.TrimSpace(cfg.Embedding.Endpoint); endpoint != "" {
		return embedding.NewRemoteClient(endpoint)
	}
	if strings.TrimSpace(cfg.LLM.APIKey) != "" {
		client, err := chatgpt.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL)
		if err != nil {
			return nil, err
		}
		return embedding.NewChatGPTEmbedder(client, cfg.LLM.EmbeddingModel), nil
	}
	logger.Warn("no embedding backend configured, using deterministic embedder")
	return embedding.NewDeterministicEmbedder(cfg.Embedding.Dimensions), nil
}

func builtinTemplates() []templateSpec {
	return []templateSpec{
		{
			Name: "total_revenue_by_country",
			Query: `
-- This query calculates total revenue by country/region.
SELECT
    "Country/Region",
    SUM("Annual Revenue") AS total_revenue
FROM
    all_companies
GROUP BY
    "Country/Region"
ORDER BY
    total_revenue {order};
`,
			Args:     []string{"order"},
			ArgTypes: []string{"string"},
		},
		{
			Name: "average_annual_revenue_by_closing",
			Query: `
-- The average annual revenue of institutions with a high chance of closing?
SELECT
    AVG("Annual Revenue") AS average_annual_revenue
FROM
    all_companies
-- Filter the rows to include only those with a high likelihood of closing.
WHERE
    "Likelihood to close" >= {likelihood_threshold};
`,
			Args:     []string{"likelihood_threshold"},
			ArgTypes: []string{"number"},
		},
		{
			Name: "top_10_companies_by_revenue",
			Query: `
-- This query lists the top 10 companies based on their annual revenue.
SELECT
    "Company name",
    "Annual Revenue"
FROM
    all_companies
ORDER BY
    "Annual Revenue" {order}
LIMIT {limit};
`,
			Args:     []string{"order", "limit"},
			ArgTypes: []string{"string", "number"},
		},
		{
			Name: "average_likelihood_to_close_by_industry",
			Query: `
-- This query calculates the average likelihood to close deals by industry.
SELECT
    Industry,
    AVG("Likelihood to close") AS average_likelihood_to_close
FROM
    all_companies
GROUP BY
    Industry
ORDER BY
    average_likelihood_to_close {order};
`,
			Args:     []string{"order"},
			ArgTypes: []string{"string"},
		},
	}
}
