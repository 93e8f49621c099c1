package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/study-rag/internal/extract"
	"github.com/Epistemic-Technology/study-rag/models"
)

type VariablesExtractQuery struct {
	Study     string             `json:"study,omitempty"`      // Extract from every record of this study
	Documents []extract.Document `json:"documents,omitempty"`  // Or from these files (path) or texts (text)
	Variables []string           `json:"variables,omitempty"`  // Variable names to extract
	Preset    string             `json:"preset,omitempty"`     // Or a built-in variable list (see variables-presets)
	ExportCSV bool               `json:"export_csv,omitempty"` // Also write the table as a CSV file
}

type VariablesExtractResponse struct {
	Variables []string                   `json:"variables"`
	Results   []*models.ExtractionResult `json:"results"`
	Table     models.Table               `json:"table"`
	Report    extract.Report             `json:"report"`
	CSVPath   string                     `json:"csv_path,omitempty"`
}

func VariablesExtractTool() *mcp.Tool {
	inputschema, err := jsonschema.For[VariablesExtractQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "variables-extract",
		Description: "Extract named variables (e.g. SAMPLE_SIZE, STUDY_DESIGN) from each document of a study or from the given documents. Every requested variable appears in every result; values not found are \"Not Available\". Documents that fail are omitted and listed in the report. Returns one table row per document, optionally exported as CSV.",
		InputSchema: inputschema,
	}
}

func VariablesExtractToolHandler(ctx context.Context, req *mcp.CallToolRequest, query VariablesExtractQuery, deps *Deps) (*mcp.CallToolResult, *VariablesExtractResponse, error) {
	deps.Log.Info("variables-extract tool called")

	variables := extract.NormalizeVariables(query.Variables)
	if query.Preset != "" {
		preset, ok := extract.Preset(query.Preset)
		if !ok {
			return nil, nil, fmt.Errorf("unknown preset %q", query.Preset)
		}
		variables = extract.NormalizeVariables(append(variables, preset...))
	}
	if len(variables) == 0 {
		return nil, nil, extract.ErrNoVariables
	}

	docs := query.Documents
	label := "documents"
	if query.Study != "" {
		studyDocs, err := deps.studyDocuments(ctx, query.Study)
		if err != nil {
			return nil, nil, err
		}
		docs = append(studyDocs, docs...)
		label = query.Study
	}
	if len(docs) == 0 {
		return nil, nil, errors.New("study or documents is required")
	}

	results, report, err := deps.Extractor.ExtractCollection(ctx, docs, variables)
	if err != nil {
		return nil, nil, err
	}

	response := &VariablesExtractResponse{
		Variables: variables,
		Results:   results,
		Table:     extract.BuildTable(results, variables),
		Report:    report,
	}
	if query.ExportCSV {
		path, err := extract.ExportCSV(deps.Config.ExportDir, label, response.Table)
		if err != nil {
			return nil, nil, err
		}
		response.CSVPath = path
	}
	return nil, response, nil
}

// studyDocuments turns the records of a study into extraction inputs. PDF
// records are reloaded from their source file; bibliography records use the
// text stored in the bundle.
func (d *Deps) studyDocuments(ctx context.Context, name string) ([]extract.Document, error) {
	_, _, records, err := d.studyRecords(ctx, name)
	if err != nil {
		return nil, err
	}
	docs := make([]extract.Document, 0, len(records))
	for _, r := range records {
		doc := extract.Document{Name: r.Title}
		if doc.Name == "" {
			doc.Name = r.ID
		}
		switch {
		case r.Kind == models.KindPDF && r.SourceFile != "":
			doc.Path = r.SourceFile
		case r.FullText != "":
			doc.Text = r.FullText
		default:
			doc.Text = r.Abstract
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
