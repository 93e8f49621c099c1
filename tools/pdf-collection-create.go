package tools

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/study-rag/internal/operations"
	"github.com/Epistemic-Technology/study-rag/models"
)

type PDFCollectionCreateQuery struct {
	Name  string   `json:"name"`            // Collection name; the study is named pdf_<name>_<timestamp>
	Files []string `json:"files"`           // Absolute local paths or http(s) URLs of PDF files
	Build *bool    `json:"build,omitempty"` // Build the index right away (default true)
}

type PDFCollectionCreateResponse struct {
	Study      models.Study `json:"study"`
	Records    int          `json:"records"`
	Skipped    []string     `json:"skipped,omitempty"`
	Chunks     int          `json:"chunks,omitempty"`
	BuildError string       `json:"build_error,omitempty"`
	Resources  []string     `json:"resources,omitempty"`
}

func PDFCollectionCreateTool() *mcp.Tool {
	inputschema, err := jsonschema.For[PDFCollectionCreateQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "pdf-collection-create",
		Description: "Create a study from PDF files. Text is extracted page by page so answers can cite page numbers and pages can be previewed. Unreadable files are skipped and reported. The study is indexed immediately unless build is false.",
		InputSchema: inputschema,
	}
}

func PDFCollectionCreateToolHandler(ctx context.Context, req *mcp.CallToolRequest, query PDFCollectionCreateQuery, deps *Deps) (*mcp.CallToolResult, *PDFCollectionCreateResponse, error) {
	deps.Log.Info("pdf-collection-create tool called with %d files", len(query.Files))

	params := operations.PDFCollectionParams{
		Name:      query.Name,
		Files:     query.Files,
		BundleDir: deps.Config.BundleDir,
	}
	result, err := operations.CreatePDFCollection(ctx, params, deps.Catalog, deps.Log)
	if err != nil {
		return nil, nil, err
	}

	response := &PDFCollectionCreateResponse{
		Study:   result.Study,
		Records: result.Records,
		Skipped: result.Skipped,
	}
	response.Resources = deps.studyResources(ctx, result.Study.Name)
	if query.Build == nil || *query.Build {
		response.Chunks, response.BuildError = deps.buildIndex(ctx, result.Study)
	}
	return nil, response, nil
}
