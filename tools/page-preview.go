package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/study-rag/internal/pdf"
	"github.com/Epistemic-Technology/study-rag/internal/storage"
)

type PagePreviewQuery struct {
	Study      string `json:"study,omitempty"`
	RecordID   string `json:"record_id,omitempty"`   // PDF record of the study
	SourceFile string `json:"source_file,omitempty"` // Or a PDF file path, e.g. source_info.source_file
	Page       int    `json:"page"`                  // 0-based page index
}

type PagePreviewResponse struct {
	Available  bool   `json:"available"`
	Page       int    `json:"page"`
	SourceFile string `json:"source_file"`
	PageCount  int    `json:"page_count,omitempty"` // Reported when the page is unavailable
	MIMEType   string `json:"mime_type,omitempty"`
	Data       []byte `json:"data,omitempty"`
	URI        string `json:"uri,omitempty"`
}

func PagePreviewTool() *mcp.Tool {
	inputschema, err := jsonschema.For[PagePreviewQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "page-preview",
		Description: "Preview one page (0-based) of a PDF from a study record or a source file, as a single-page PDF. Pages outside the document return available=false.",
		InputSchema: inputschema,
	}
}

func PagePreviewToolHandler(ctx context.Context, req *mcp.CallToolRequest, query PagePreviewQuery, deps *Deps) (*mcp.CallToolResult, *PagePreviewResponse, error) {
	deps.Log.Info("page-preview tool called for page %d", query.Page)

	response := &PagePreviewResponse{Page: query.Page, SourceFile: query.SourceFile}
	if query.Study != "" && query.RecordID != "" {
		_, _, records, err := deps.studyRecords(ctx, query.Study)
		if err != nil {
			return nil, nil, err
		}
		for _, r := range records {
			if r.ID == query.RecordID {
				response.SourceFile = r.SourceFile
				break
			}
		}
		if response.SourceFile == "" {
			return nil, nil, fmt.Errorf("record %s of study %s has no source file", query.RecordID, query.Study)
		}
		response.URI = storage.PageResourceURI(query.Study, query.RecordID, query.Page)
	}
	if response.SourceFile == "" {
		return nil, nil, errors.New("study and record_id, or source_file, is required")
	}

	data, err := deps.Renderer.RenderPage(ctx, response.SourceFile, query.Page)
	if err != nil {
		return nil, nil, err
	}
	if data == nil {
		if n, err := pdf.PageCount(response.SourceFile); err == nil {
			response.PageCount = n
		}
		return nil, response, nil
	}
	response.Available = true
	response.MIMEType = "application/pdf"
	response.Data = data
	return nil, response, nil
}
