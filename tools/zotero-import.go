package tools

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/study-rag/internal/operations"
	"github.com/Epistemic-Technology/study-rag/models"
)

type ZoteroImportQuery struct {
	Collection      string `json:"collection"`                 // Zotero collection key (see zotero-collections)
	Name            string `json:"name,omitempty"`             // Study name (default: the collection key)
	AttachmentLimit int    `json:"attachment_limit,omitempty"` // Max attachments whose full text is downloaded
	Build           bool   `json:"build,omitempty"`            // Build the index right away
}

type ZoteroImportResponse struct {
	Study      models.Study `json:"study"`
	Records    int          `json:"records"`
	Skipped    []string     `json:"skipped,omitempty"`
	Chunks     int          `json:"chunks,omitempty"`
	BuildError string       `json:"build_error,omitempty"`
	Resources  []string     `json:"resources,omitempty"`
}

func ZoteroImportTool() *mcp.Tool {
	inputschema, err := jsonschema.For[ZoteroImportQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "zotero-import",
		Description: "Import a Zotero collection as a bibliography study. Each item contributes its title, authors, date, DOI and abstract; PDF and web snapshot attachments add full text up to attachment_limit items. Set build to index the study immediately.",
		InputSchema: inputschema,
	}
}

func ZoteroImportToolHandler(ctx context.Context, req *mcp.CallToolRequest, query ZoteroImportQuery, deps *Deps) (*mcp.CallToolResult, *ZoteroImportResponse, error) {
	deps.Log.Info("zotero-import tool called for collection %s", query.Collection)

	zoteroAPIKey, libraryID, err := deps.zoteroCredentials()
	if err != nil {
		return nil, nil, err
	}

	limit := query.AttachmentLimit
	if limit == 0 {
		limit = deps.Config.Zotero.AttachmentLimit
	}
	params := operations.ZoteroImportParams{
		Collection:      query.Collection,
		Name:            query.Name,
		AttachmentLimit: limit,
		BundleDir:       deps.Config.BundleDir,
	}
	result, err := operations.ImportZoteroCollection(ctx, zoteroAPIKey, libraryID, params, deps.Catalog, deps.Log)
	if err != nil {
		return nil, nil, err
	}

	response := &ZoteroImportResponse{
		Study:   result.Study,
		Records: result.Records,
		Skipped: result.Skipped,
	}
	response.Resources = deps.studyResources(ctx, result.Study.Name)
	if query.Build {
		response.Chunks, response.BuildError = deps.buildIndex(ctx, result.Study)
	}
	return nil, response, nil
}
