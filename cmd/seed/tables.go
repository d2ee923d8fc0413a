package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/nbertagnolli/sql-rag/internal/infra/datasource"
)

var (
	tablesDataDir   string
	tablesBucket    string
	tablesEndpoint  string
	tablesAccessKey string
	tablesSecretKey string
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Load CSV seed files into Postgres tables",
	Long: `Reads every CSV from a local folder or an S3-compatible bucket and loads
each file into a table named after it. Existing tables are replaced and all
columns are created as text.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		source, err := buildSource()
		if err != nil {
			return err
		}
		pool, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		names, err := source.List(ctx)
		if err != nil {
			return fmt.Errorf("list seed files: %w", err)
		}
		if len(names) == 0 {
			return fmt.Errorf("no csv files found")
		}
		for _, name := range names {
			rows, err := loadTable(ctx, pool, source, name)
			if err != nil {
				return fmt.Errorf("load %s: %w", name, err)
			}
			fmt.Printf("Loaded %s (%d rows)\n", tableNameFor(name), rows)
		}
		return nil
	},
}

func init() {
	tablesCmd.Flags().StringVar(&tablesDataDir, "data-dir", "", "local folder with csv files")
	tablesCmd.Flags().StringVar(&tablesBucket, "bucket", "", "S3-compatible bucket with csv files")
	tablesCmd.Flags().StringVar(&tablesEndpoint, "endpoint", "", "S3-compatible endpoint")
	tablesCmd.Flags().StringVar(&tablesAccessKey, "access-key", "", "bucket access key")
	tablesCmd.Flags().StringVar(&tablesSecretKey, "secret-key", "", "bucket secret key")
}

func buildSource() (datasource.Source, error) {
	switch {
	case tablesDataDir != "" && tablesBucket != "":
		return nil, fmt.Errorf("--data-dir and --bucket are mutually exclusive")
	case tablesDataDir != "":
		return datasource.NewLocalDir(tablesDataDir), nil
	case tablesBucket != "":
		if tablesEndpoint == "" {
			return nil, fmt.Errorf("--endpoint is required with --bucket")
		}
		return datasource.NewBucket(tablesEndpoint, tablesAccessKey, tablesSecretKey, tablesBucket)
	default:
		return nil, fmt.Errorf("either --data-dir or --bucket is required")
	}
}

// tableNameFor maps a file name to a table name: extension stripped and
// dashes replaced with underscores.
func tableNameFor(fileName string) string {
	base := path.Base(fileName)
	if idx := strings.Index(base, "."); idx >= 0 {
		base = base[:idx]
	}
	return strings.ReplaceAll(base, "-", "_")
}

func loadTable(ctx context.Context, pool *pgxpool.Pool, source datasource.Source, name string) (int64, error) {
	file, err := source.Open(ctx, name)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	if len(header) == 0 {
		return 0, fmt.Errorf("empty header")
	}

	table := tableNameFor(name)
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+pgx.Identifier{table}.Sanitize()); err != nil {
		return 0, fmt.Errorf("drop table: %w", err)
	}

	columns := make([]string, 0, len(header))
	for _, col := range header {
		columns = append(columns, pgx.Identifier{col}.Sanitize()+" text")
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", pgx.Identifier{table}.Sanitize(), strings.Join(columns, ", "))
	if _, err := pool.Exec(ctx, create); err != nil {
		return 0, fmt.Errorf("create table: %w", err)
	}

	var rows [][]any
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read record: %w", err)
		}
		row := make([]any, len(header))
		for i := range header {
			if i < len(record) {
				row[i] = record[i]
			}
		}
		rows = append(rows, row)
	}

	copied, err := pool.CopyFrom(ctx, pgx.Identifier{table}, header, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy rows: %w", err)
	}
	return copied, nil
}
