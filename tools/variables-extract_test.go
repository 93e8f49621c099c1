package tools

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/Epistemic-Technology/study-rag/internal/extract"
	"github.com/Epistemic-Technology/study-rag/internal/llm"
	"github.com/Epistemic-Technology/study-rag/internal/llm/llmtest"
)

func extractionCompleter() *llmtest.ScriptedCompleter {
	return &llmtest.ScriptedCompleter{
		Respond: func(prompt string, format llm.ResponseFormat) (string, error) {
			if format == llm.FormatJSONObject {
				return "```json\n{\"SAMPLE_SIZE\": 120, \"UNREQUESTED\": \"x\"}\n```", nil
			}
			return "The study enrolled 120 participants.", nil
		},
	}
}

func TestVariablesExtractToolHandler(t *testing.T) {
	deps := newTestDeps(t, extractionCompleter())
	ctx := context.Background()

	t.Run("study records with CSV export", func(t *testing.T) {
		query := VariablesExtractQuery{
			Study:     "climate",
			Variables: []string{"sample_size", "study_design"},
			ExportCSV: true,
		}
		_, response, err := VariablesExtractToolHandler(ctx, nil, query, deps)
		if err != nil {
			t.Fatalf("VariablesExtractToolHandler failed: %v", err)
		}
		if got := strings.Join(response.Variables, ","); got != "SAMPLE_SIZE,STUDY_DESIGN" {
			t.Errorf("Unexpected variables: %s", got)
		}
		if len(response.Results) != 2 || response.Report.Succeeded != 2 {
			t.Fatalf("Expected 2 results, got %d (report %+v)", len(response.Results), response.Report)
		}
		for _, r := range response.Results {
			if len(r.Values) != 2 {
				t.Errorf("Expected exactly the requested keys, got %v", r.Values)
			}
		}

		wantColumns := []string{extract.DocumentColumn, "SAMPLE_SIZE", "STUDY_DESIGN"}
		if strings.Join(response.Table.Columns, ",") != strings.Join(wantColumns, ",") {
			t.Errorf("Unexpected columns: %v", response.Table.Columns)
		}
		row := response.Table.Rows[0]
		if row[0] != "Machine Learning in Climate Science" || row[1] != "120" || row[2] != extract.NotAvailable {
			t.Errorf("Unexpected first row: %v", row)
		}

		data, err := os.ReadFile(response.CSVPath)
		if err != nil {
			t.Fatalf("Failed to read CSV export: %v", err)
		}
		if !strings.HasPrefix(string(data), "DOCUMENT,SAMPLE_SIZE,STUDY_DESIGN\n") {
			t.Errorf("Unexpected CSV header: %q", strings.SplitN(string(data), "\n", 2)[0])
		}
	})

	t.Run("pdf study loads the source file", func(t *testing.T) {
		query := VariablesExtractQuery{Study: "papers", Variables: []string{"SAMPLE_SIZE"}}
		_, response, err := VariablesExtractToolHandler(ctx, nil, query, deps)
		if err != nil {
			t.Fatalf("VariablesExtractToolHandler failed: %v", err)
		}
		if len(response.Results) != 1 || response.Results[0].Document != "Plasma Trial" {
			t.Fatalf("Unexpected results: %+v", response.Results)
		}
		if response.CSVPath != "" {
			t.Error("CSV should only be written on request")
		}
	})

	t.Run("failing documents are omitted", func(t *testing.T) {
		query := VariablesExtractQuery{
			Documents: []extract.Document{
				{Name: "inline", Text: "A cohort of 120 patients."},
				{Path: "/nonexistent/file.pdf"},
			},
			Preset: "vaccine_coverage",
		}
		_, response, err := VariablesExtractToolHandler(ctx, nil, query, deps)
		if err != nil {
			t.Fatalf("VariablesExtractToolHandler failed: %v", err)
		}
		if response.Report.Requested != 2 || response.Report.Succeeded != 1 || len(response.Report.Omitted) != 1 {
			t.Errorf("Unexpected report: %+v", response.Report)
		}
		if response.Variables[0] != "STUDYID" {
			t.Errorf("Expected preset variables, got %v", response.Variables)
		}
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name  string
			query VariablesExtractQuery
		}{
			{"no variables", VariablesExtractQuery{Study: "climate"}},
			{"unknown preset", VariablesExtractQuery{Study: "climate", Preset: "astronomy"}},
			{"no documents", VariablesExtractQuery{Variables: []string{"A"}}},
			{"unknown study", VariablesExtractQuery{Study: "missing", Variables: []string{"A"}}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, _, err := VariablesExtractToolHandler(ctx, nil, tt.query, deps); err == nil {
					t.Error("Expected error, got nil")
				}
			})
		}
	})
}

func TestVariablesPresetsToolHandler(t *testing.T) {
	deps := newTestDeps(t, &llmtest.ScriptedCompleter{})

	_, response, err := VariablesPresetsToolHandler(context.Background(), nil, VariablesPresetsQuery{}, deps)
	if err != nil {
		t.Fatalf("VariablesPresetsToolHandler failed: %v", err)
	}
	if len(response.Presets) != 4 {
		t.Fatalf("Expected 4 presets, got %d", len(response.Presets))
	}
	for _, p := range response.Presets {
		if len(p.Variables) == 0 {
			t.Errorf("Preset %s has no variables", p.Name)
		}
	}
}
