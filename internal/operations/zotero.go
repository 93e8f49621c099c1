package operations

import (
	"context"
	"errors"
	"fmt"

	"github.com/Epistemic-Technology/zotero/zotero"

	"github.com/Epistemic-Technology/study-rag/internal/documents"
	"github.com/Epistemic-Technology/study-rag/internal/logger"
)

// ZoteroSearchParams contains parameters for searching a Zotero library.
type ZoteroSearchParams struct {
	Query      string   // Quick search text (searches title, creator, year)
	Tags       []string // Filter by tags
	ItemTypes  []string // Filter by type (e.g., "book", "article", "-attachment")
	Collection string   // Filter by collection key (optional)
	Limit      int      // Max results (default 25)
	Sort       string   // Sort field (default "dateModified")
}

// ZoteroItemResult is a Zotero item with its attachments.
type ZoteroItemResult struct {
	Key         string
	Title       string
	Creators    []string
	ItemType    string
	Date        string
	Attachments []AttachmentInfo
}

// AttachmentInfo describes a file attached to a Zotero item.
type AttachmentInfo struct {
	Key         string
	Filename    string
	ContentType string // MIME type (e.g., "application/pdf")
	LinkMode    string // imported_file, imported_url, linked_file, linked_url
	// Readable attachments contribute full text on import
	Readable bool
}

// ListCollectionsParams contains parameters for listing Zotero collections.
type ListCollectionsParams struct {
	TopLevelOnly     bool   // List only top-level collections (no parent)
	ParentCollection string // Filter by parent collection key (for subcollections)
	Limit            int    // Max results (default 100)
	Sort             string // Sort field (default "title")
}

// CollectionResult is a Zotero collection; ParentCollection is empty at the
// top level.
type CollectionResult struct {
	Key              string
	Name             string
	ParentCollection string
}

func validateZoteroCredentials(apiKey, libraryID string) error {
	if apiKey == "" {
		return errors.New("Zotero API key is required")
	}
	if libraryID == "" {
		return errors.New("Zotero library ID is required")
	}
	return nil
}

// SearchZotero searches a library, or one collection of it, and returns the
// matching non-attachment items with their attachments. Items whose
// children cannot be listed are dropped.
func SearchZotero(ctx context.Context, apiKey, libraryID string, params ZoteroSearchParams, log logger.Logger) ([]ZoteroItemResult, error) {
	if err := validateZoteroCredentials(apiKey, libraryID); err != nil {
		return nil, err
	}
	client := zotero.NewClient(libraryID, zotero.LibraryTypeUser, zotero.WithAPIKey(apiKey))

	queryParams := &zotero.QueryParams{
		Q:        params.Query,
		QMode:    "titleCreatorYear",
		Tag:      params.Tags,
		ItemType: params.ItemTypes,
		Limit:    params.Limit,
		Sort:     params.Sort,
	}
	if queryParams.Limit == 0 {
		queryParams.Limit = 25
	}
	if queryParams.Sort == "" {
		queryParams.Sort = "dateModified"
	}
	if len(queryParams.ItemType) == 0 {
		queryParams.ItemType = []string{"-attachment"}
	}

	var items []zotero.Item
	var err error
	if params.Collection != "" {
		items, err = client.CollectionItems(ctx, params.Collection, queryParams)
	} else {
		items, err = client.Items(ctx, queryParams)
	}
	if err != nil {
		log.Error("Zotero search failed: %v", err)
		return nil, fmt.Errorf("failed to search Zotero library: %w", err)
	}
	log.Info("Found %d items in Zotero library", len(items))

	results := make([]ZoteroItemResult, 0, len(items))
	for i := range items {
		item := &items[i]
		if item.Data.ItemType == "attachment" {
			continue
		}

		record := documents.RecordFromZoteroItem(item)
		result := ZoteroItemResult{
			Key:      item.Key,
			Title:    record.Title,
			Creators: record.Authors,
			ItemType: item.Data.ItemType,
			Date:     record.YearOrDate,
		}
		if result.Date == "" {
			result.Date = item.Data.DateAdded
		}

		children, err := client.Children(ctx, item.Key, nil)
		if err != nil {
			log.Error("Failed to retrieve children for item %s: %v", item.Key, err)
			continue
		}
		for _, child := range children {
			if child.Data.ItemType != "attachment" {
				continue
			}
			result.Attachments = append(result.Attachments, AttachmentInfo{
				Key:         child.Key,
				Filename:    child.Data.Filename,
				ContentType: child.Data.ContentType,
				LinkMode:    child.Data.LinkMode,
				Readable:    readableAttachment(child.Data.ContentType),
			})
		}
		results = append(results, result)
	}

	return results, nil
}

// ListZoteroCollections lists the collections of a library: the
// subcollections of ParentCollection, only top-level ones, or all.
func ListZoteroCollections(ctx context.Context, apiKey, libraryID string, params ListCollectionsParams, log logger.Logger) ([]CollectionResult, error) {
	if err := validateZoteroCredentials(apiKey, libraryID); err != nil {
		return nil, err
	}
	client := zotero.NewClient(libraryID, zotero.LibraryTypeUser, zotero.WithAPIKey(apiKey))

	queryParams := &zotero.QueryParams{Limit: params.Limit, Sort: params.Sort}
	if queryParams.Limit == 0 {
		queryParams.Limit = 100
	}
	if queryParams.Sort == "" {
		queryParams.Sort = "title"
	}

	var collections []zotero.Collection
	var err error
	switch {
	case params.ParentCollection != "":
		collections, err = client.CollectionsSub(ctx, params.ParentCollection, queryParams)
	case params.TopLevelOnly:
		collections, err = client.CollectionsTop(ctx, queryParams)
	default:
		collections, err = client.Collections(ctx, queryParams)
	}
	if err != nil {
		log.Error("Failed to retrieve Zotero collections: %v", err)
		return nil, fmt.Errorf("failed to retrieve Zotero collections: %w", err)
	}
	log.Info("Found %d collections in Zotero library", len(collections))

	results := make([]CollectionResult, 0, len(collections))
	for _, c := range collections {
		results = append(results, CollectionResult{
			Key:              c.Data.Key,
			Name:             c.Data.Name,
			ParentCollection: c.Data.ParentCollection.String(),
		})
	}
	return results, nil
}
