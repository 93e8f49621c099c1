package tools

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/study-rag/internal/operations"
)

type ZoteroSearchQuery struct {
	Query      string   `json:"query,omitempty"`      // Quick search text (searches title, creator, year)
	Tags       []string `json:"tags,omitempty"`       // Filter by tags
	ItemTypes  []string `json:"item_types,omitempty"` // Filter by type (e.g., "book", "article", "-attachment")
	Collection string   `json:"collection,omitempty"` // Filter by collection key (optional)
	Limit      int      `json:"limit,omitempty"`      // Max results (default 25)
	Sort       string   `json:"sort,omitempty"`       // Sort field (default "dateModified")
}

type ZoteroSearchResponse struct {
	Items []ZoteroItemResult `json:"items"`
	Count int                `json:"count"`
}

type ZoteroItemResult struct {
	Key         string           `json:"key"`
	Title       string           `json:"title"`
	Creators    []string         `json:"creators,omitempty"`
	ItemType    string           `json:"item_type"`
	Date        string           `json:"date,omitempty"`
	Attachments []AttachmentInfo `json:"attachments,omitempty"`
	Studies     []string         `json:"studies,omitempty"` // Registered studies that already include this item
}

type AttachmentInfo struct {
	Key         string `json:"key"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"` // MIME type (e.g., "application/pdf")
	LinkMode    string `json:"link_mode"`    // imported_file, imported_url, linked_file, linked_url
}

func ZoteroSearchTool() *mcp.Tool {
	inputschema, err := jsonschema.For[ZoteroSearchQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "zotero-search",
		Description: "Search for items in a Zotero library and retrieve their metadata and attachment information. Items already imported into a study list the study names. Use zotero-import with a collection key to turn a collection into a study.",
		InputSchema: inputschema,
	}
}

func ZoteroSearchToolHandler(ctx context.Context, req *mcp.CallToolRequest, query ZoteroSearchQuery, deps *Deps) (*mcp.CallToolResult, *ZoteroSearchResponse, error) {
	deps.Log.Info("zotero-search tool called")

	zoteroAPIKey, libraryID, err := deps.zoteroCredentials()
	if err != nil {
		return nil, nil, err
	}

	searchParams := operations.ZoteroSearchParams{
		Query:      query.Query,
		Tags:       query.Tags,
		ItemTypes:  query.ItemTypes,
		Collection: query.Collection,
		Limit:      query.Limit,
		Sort:       query.Sort,
	}

	items, err := operations.SearchZotero(ctx, zoteroAPIKey, libraryID, searchParams, deps.Log)
	if err != nil {
		return nil, nil, err
	}

	membership := deps.itemStudies(ctx, libraryID)

	results := make([]ZoteroItemResult, len(items))
	for i, item := range items {
		results[i] = ZoteroItemResult{
			Key:      item.Key,
			Title:    item.Title,
			Creators: item.Creators,
			ItemType: item.ItemType,
			Date:     item.Date,
			Studies:  membership[item.Key],
		}
		for _, att := range item.Attachments {
			results[i].Attachments = append(results[i].Attachments, AttachmentInfo{
				Key:         att.Key,
				Filename:    att.Filename,
				ContentType: att.ContentType,
				LinkMode:    att.LinkMode,
			})
		}
	}

	response := &ZoteroSearchResponse{
		Items: results,
		Count: len(results),
	}

	return nil, response, nil
}

// itemStudies maps Zotero item keys to the studies of libraryID whose
// bundles contain them. Unreadable bundles are skipped.
func (d *Deps) itemStudies(ctx context.Context, libraryID string) map[string][]string {
	membership := make(map[string][]string)
	studies, err := d.Catalog.ListStudies(ctx, libraryID)
	if err != nil {
		d.Log.Error("Failed to list studies for library %s: %v", libraryID, err)
		return membership
	}
	for _, study := range studies {
		_, _, records, err := d.studyRecords(ctx, study.Name)
		if err != nil {
			d.Log.Warn("Skipping study %s: %v", study.Name, err)
			continue
		}
		for _, r := range records {
			membership[r.ID] = append(membership[r.ID], study.Name)
		}
	}
	return membership
}
