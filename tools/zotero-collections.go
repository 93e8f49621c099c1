package tools

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/study-rag/internal/operations"
)

type ZoteroCollectionsQuery struct {
	TopLevelOnly     bool   `json:"top_level_only,omitempty"`    // List only top-level collections (no parent)
	ParentCollection string `json:"parent_collection,omitempty"` // Filter by parent collection key (for subcollections)
	Limit            int    `json:"limit,omitempty"`             // Max results (default 100)
	Sort             string `json:"sort,omitempty"`              // Sort field (default "title")
}

type ZoteroCollectionsResponse struct {
	Collections []CollectionResult `json:"collections"`
	Count       int                `json:"count"`
}

type CollectionResult struct {
	Key              string `json:"key"`                         // Collection key (unique identifier)
	Name             string `json:"name"`                        // Collection name
	ParentCollection string `json:"parent_collection,omitempty"` // Parent collection key (empty if top-level)
}

func ZoteroCollectionsTool() *mcp.Tool {
	inputschema, err := jsonschema.For[ZoteroCollectionsQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "zotero-collections",
		Description: "List and search collections in a Zotero library. Returns collection names, keys, and hierarchy information. Use the collection keys with zotero-search or zotero-import to turn a collection into a study.",
		InputSchema: inputschema,
	}
}

func ZoteroCollectionsToolHandler(ctx context.Context, req *mcp.CallToolRequest, query ZoteroCollectionsQuery, deps *Deps) (*mcp.CallToolResult, *ZoteroCollectionsResponse, error) {
	deps.Log.Info("zotero-collections tool called")

	zoteroAPIKey, libraryID, err := deps.zoteroCredentials()
	if err != nil {
		return nil, nil, err
	}

	listParams := operations.ListCollectionsParams{
		TopLevelOnly:     query.TopLevelOnly,
		ParentCollection: query.ParentCollection,
		Limit:            query.Limit,
		Sort:             query.Sort,
	}

	collections, err := operations.ListZoteroCollections(ctx, zoteroAPIKey, libraryID, listParams, deps.Log)
	if err != nil {
		return nil, nil, err
	}

	results := make([]CollectionResult, len(collections))
	for i, collection := range collections {
		results[i] = CollectionResult{
			Key:              collection.Key,
			Name:             collection.Name,
			ParentCollection: collection.ParentCollection,
		}
	}

	response := &ZoteroCollectionsResponse{
		Collections: results,
		Count:       len(results),
	}

	return nil, response, nil
}
