package tools

import (
	"context"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/study-rag/internal/query"
	"github.com/Epistemic-Technology/study-rag/internal/storage"
	"github.com/Epistemic-Technology/study-rag/models"
)

type StudyQueryQuery struct {
	Study    string `json:"study"`             // Study name from study-list
	Question string `json:"question"`          // Free-form question; "page N" targets a page of a PDF study
	Variant  string `json:"variant,omitempty"` // Prompt style: default, highlight or evidence_based
}

type StudyQueryResponse struct {
	Answer     string             `json:"answer"`
	SourceInfo *models.SourceInfo `json:"source_info"`
	Variant    string             `json:"variant"`
	// PreviewURI points at the page preview resource of the top source, when there is one
	PreviewURI string `json:"preview_uri,omitempty"`
}

func StudyQueryTool() *mcp.Tool {
	inputschema, err := jsonschema.For[StudyQueryQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "study-query",
		Description: "Ask a question about a study. Retrieves the most relevant passages from the study's index (building it on first use) and answers with bracketed citations. source_info describes the single best-matching passage; for PDF studies it carries the 0-based page number usable with page-preview.",
		InputSchema: inputschema,
	}
}

func StudyQueryToolHandler(ctx context.Context, req *mcp.CallToolRequest, q StudyQueryQuery, deps *Deps) (*mcp.CallToolResult, *StudyQueryResponse, error) {
	deps.Log.Info("study-query tool called for %q", q.Study)

	if q.Study == "" || q.Question == "" {
		return nil, nil, errors.New("study and question are required")
	}
	variant := query.ParseVariant(q.Variant)
	response := &StudyQueryResponse{Variant: string(variant)}

	col, err := deps.Builder.Resolve(ctx, q.Study)
	if err != nil {
		deps.Log.Error("Failed to open study %s: %v", q.Study, err)
		response.Answer = query.ErrorMessage(err)
		return nil, response, nil
	}

	answer := deps.Engine.Answer(ctx, col, q.Question, variant)
	response.Answer = answer.AnswerText
	response.SourceInfo = answer.SourceInfo
	response.PreviewURI = previewURI(ctx, deps, q.Study, answer.SourceInfo)
	return nil, response, nil
}

// previewURI maps the source file of a PDF answer back to its record so the
// caller can fetch the page through the resource template.
func previewURI(ctx context.Context, deps *Deps, study string, info *models.SourceInfo) string {
	if info == nil || info.PageNumber == nil || info.SourceFile == "" {
		return ""
	}
	_, _, records, err := deps.studyRecords(ctx, study)
	if err != nil {
		return ""
	}
	for _, r := range records {
		if r.SourceFile == info.SourceFile {
			return storage.PageResourceURI(study, r.ID, *info.PageNumber)
		}
	}
	return ""
}
