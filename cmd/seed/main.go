// Command seed prepares the Postgres schema, loads CSV seed data, and
// registers the starter query templates.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/nbertagnolli/sql-rag/internal/infra/config"
)

var (
	dsn        string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "seed",
	Short: "Database setup for the natural-language query service",
	Long:  `Creates the pgvector schema, loads CSV seed tables, and registers query templates.`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the vector extension and service tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		statements := []string{
			`CREATE EXTENSION IF NOT EXISTS vector`,
			`CREATE TABLE IF NOT EXISTS queries (
				id bigserial PRIMARY KEY,
				name text UNIQUE NOT NULL,
				query text NOT NULL,
				args text ARRAY,
				arg_types text ARRAY,
				embedding vector(384)
			)`,
			`CREATE TABLE IF NOT EXISTS user_queries (
				id bigserial PRIMARY KEY,
				user_query text,
				sql_query text,
				conversation_history text
			)`,
		}
		for _, stmt := range statements {
			if _, err := pool.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("execute %q: %w", firstLine(stmt), err)
			}
		}
		fmt.Println("Schema initialized")
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Postgres DSN (defaults to config/POSTGRES_DSN)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (defaults to CONFIG_PATH)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(tablesCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(tokenCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		os.Setenv("CONFIG_PATH", configPath)
	}
	return config.Load()
}

func connect(ctx context.Context) (*pgxpool.Pool, error) {
	target := strings.TrimSpace(dsn)
	if target == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		target = strings.TrimSpace(cfg.Postgres.DSN)
	}
	if target == "" {
		return nil, fmt.Errorf("postgres dsn is required (--dsn or POSTGRES_DSN)")
	}
	pool, err := pgxpool.New(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return s
}
