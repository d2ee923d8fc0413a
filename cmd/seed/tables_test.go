package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableNameFor(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"all-companies.csv", "all_companies"},
		{"deals.csv", "deals"},
		{"seed/all-deals.backup.csv", "all_deals"},
		{"plain", "plain"},
	}
	for _, tc := range tests {
		if got := tableNameFor(tc.in); got != tc.want {
			t.Fatalf("tableNameFor(%q): expected %q got %q", tc.in, tc.want, got)
		}
	}
}

func TestResolveTemplateSpecsBuiltins(t *testing.T) {
	templatesFile = ""
	specs, err := resolveTemplateSpecs()
	require.NoError(t, err)
	require.Len(t, specs, 4)
	for _, spec := range specs {
		require.NotEmpty(t, spec.Name)
		require.NotEmpty(t, spec.Query)
		require.Len(t, spec.ArgTypes, len(spec.Args))
	}
}

func TestResolveTemplateSpecsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "templates.yaml")
	content := []byte(`
templates:
  - name: orders_by_status
    query: SELECT count(*) FROM orders WHERE status = {status};
    args: [status]
    argTypes: [string]
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	templatesFile = path
	defer func() { templatesFile = "" }()

	specs, err := resolveTemplateSpecs()
	require.NoError(t, err)
	require.Len(t, specs, 1)
	require.Equal(t, "orders_by_status", specs[0].Name)
	require.Equal(t, []string{"status"}, specs[0].Args)
}

func TestResolveTemplateSpecsRejectsMismatchedArgs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "templates.yaml")
	content := []byte(`
templates:
  - name: broken
    query: SELECT 1;
    args: [a, b]
    argTypes: [string]
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	templatesFile = path
	defer func() { templatesFile = "" }()

	_, err := resolveTemplateSpecs()
	require.Error(t, err)
}
