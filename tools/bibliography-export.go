package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/study-rag/internal/citations"
	"github.com/Epistemic-Technology/study-rag/models"
)

type BibliographyExportQuery struct {
	Study     string   `json:"study"`
	RecordIDs []string `json:"record_ids,omitempty"` // Export only these records (default: the whole study)
	Format    string   `json:"format,omitempty"`     // Currently only "bibtex" is supported
}

type BibliographyExportResponse struct {
	Format        string   `json:"format"`
	Content       string   `json:"content"`
	RecordCount   int      `json:"record_count"`
	MissingRecord []string `json:"missing_record,omitempty"`
}

func BibliographyExportTool() *mcp.Tool {
	inputschema, err := jsonschema.For[BibliographyExportQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "bibliography-export",
		Description: "Export the records of a study in BibTeX format. If record_ids are specified, exports only those records. Citekeys are generated from the first author's last name and the year, and are unique within the export.",
		InputSchema: inputschema,
	}
}

func BibliographyExportToolHandler(ctx context.Context, req *mcp.CallToolRequest, query BibliographyExportQuery, deps *Deps) (*mcp.CallToolResult, *BibliographyExportResponse, error) {
	deps.Log.Info("bibliography-export tool called")

	format := query.Format
	if format == "" {
		format = "bibtex"
	}
	if strings.ToLower(format) != "bibtex" {
		deps.Log.Error("Unsupported format: %s", format)
		return nil, nil, fmt.Errorf("unsupported format: %s (only 'bibtex' is supported)", format)
	}
	if query.Study == "" {
		return nil, nil, errors.New("study is required")
	}

	_, _, records, err := deps.studyRecords(ctx, query.Study)
	if err != nil {
		deps.Log.Error("Failed to load study %s: %v", query.Study, err)
		return nil, nil, fmt.Errorf("failed to load study %s: %w", query.Study, err)
	}

	var missing []string
	if len(query.RecordIDs) > 0 {
		byID := make(map[string]models.SourceRecord, len(records))
		for _, r := range records {
			byID[r.ID] = r
		}
		selected := make([]models.SourceRecord, 0, len(query.RecordIDs))
		for _, id := range query.RecordIDs {
			r, ok := byID[id]
			if !ok {
				deps.Log.Warn("Record %s not found in study %s", id, query.Study)
				missing = append(missing, id)
				continue
			}
			selected = append(selected, r)
		}
		records = selected
	}

	content := citations.GenerateBibTeXFile(query.Study, records)
	deps.Log.Info("Generated BibTeX file with %d entries", len(records))

	return nil, &BibliographyExportResponse{
		Format:        format,
		Content:       content,
		RecordCount:   len(records),
		MissingRecord: missing,
	}, nil
}
