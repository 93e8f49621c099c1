package tools

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/study-rag/models"
)

type StudyListQuery struct {
	LibraryIDs []string `json:"library_ids,omitempty"` // Limit to these Zotero library IDs ("local" for PDF collections)
}

type StudyListResponse struct {
	Studies []StudyInfo `json:"studies"`
	Count   int         `json:"count"`
}

type StudyInfo struct {
	Name       string                `json:"name"`
	BundlePath string                `json:"bundle_path"`
	LibraryID  string                `json:"library_id,omitempty"`
	Kind       models.CollectionKind `json:"kind,omitempty"`
	CreatedAt  string                `json:"created_at,omitempty"`
	Indexed    bool                  `json:"indexed"` // Index is built and cached in this process
}

func StudyListTool() *mcp.Tool {
	inputschema, err := jsonschema.For[StudyListQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "study-list",
		Description: "List the studies in the catalog. Each study is a named collection of bibliographic records or PDFs that can be queried with study-query or used with variables-extract.",
		InputSchema: inputschema,
	}
}

func StudyListToolHandler(ctx context.Context, req *mcp.CallToolRequest, query StudyListQuery, deps *Deps) (*mcp.CallToolResult, *StudyListResponse, error) {
	deps.Log.Info("study-list tool called")

	studies, err := deps.Catalog.ListStudies(ctx, query.LibraryIDs...)
	if err != nil {
		return nil, nil, err
	}

	results := make([]StudyInfo, len(studies))
	for i, s := range studies {
		_, cached := deps.Builder.Cached(s.Name)
		results[i] = StudyInfo{
			Name:       s.Name,
			BundlePath: s.BundlePath,
			LibraryID:  s.LibraryID,
			Kind:       s.Kind,
			CreatedAt:  s.CreatedAt,
			Indexed:    cached,
		}
	}

	return nil, &StudyListResponse{Studies: results, Count: len(results)}, nil
}
