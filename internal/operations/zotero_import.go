package operations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Epistemic-Technology/zotero/zotero"

	"github.com/Epistemic-Technology/study-rag/internal/documents"
	"github.com/Epistemic-Technology/study-rag/internal/logger"
	"github.com/Epistemic-Technology/study-rag/models"
)

// DefaultAttachmentLimit caps how many attachments an import downloads.
const DefaultAttachmentLimit = 10

// ZoteroImportParams contains parameters for importing a Zotero collection.
type ZoteroImportParams struct {
	Collection      string // Collection key
	Name            string // Study name (default: the collection key)
	AttachmentLimit int    // Max attachments whose text is downloaded (default 10)
	BundleDir       string
}

// ImportZoteroCollection turns the items of a Zotero collection into a
// bibliography study. Each item contributes its metadata and abstract; the
// first PDF or snapshot attachment of up to AttachmentLimit items adds its
// text as full text.
func ImportZoteroCollection(ctx context.Context, apiKey, libraryID string, params ZoteroImportParams, catalog Registrar, log logger.Logger) (*ImportResult, error) {
	if err := validateZoteroCredentials(apiKey, libraryID); err != nil {
		return nil, err
	}
	if params.Collection == "" {
		return nil, errors.New("collection key is required")
	}
	if params.BundleDir == "" {
		return nil, errors.New("bundle directory is required")
	}
	if params.Name == "" {
		params.Name = params.Collection
	}
	if params.AttachmentLimit <= 0 {
		params.AttachmentLimit = DefaultAttachmentLimit
	}

	client := zotero.NewClient(libraryID, zotero.LibraryTypeUser, zotero.WithAPIKey(apiKey))

	// attachmentText downloads the first readable attachment of an item and
	// returns its text, or "" when the item has none.
	attachmentText := func(itemKey string) (string, error) {
		children, err := client.Children(ctx, itemKey, nil)
		if err != nil {
			return "", fmt.Errorf("failed to retrieve children: %w", err)
		}
		for _, child := range children {
			if child.Data.ItemType != "attachment" || !readableAttachment(child.Data.ContentType) {
				continue
			}
			data, err := documents.GetFromZotero(ctx, child.Key, apiKey, libraryID)
			if err != nil {
				return "", err
			}
			return documents.TextFromData(data, child.Data.Filename)
		}
		return "", nil
	}

	items, err := client.CollectionItems(ctx, params.Collection, &zotero.QueryParams{
		ItemType: []string{"-attachment"},
		Limit:    100,
		Sort:     "title",
	})
	if err != nil {
		log.Error("Failed to retrieve collection %s: %v", params.Collection, err)
		return nil, fmt.Errorf("failed to retrieve collection %s: %w", params.Collection, err)
	}
	log.Info("Importing %d items from collection %s", len(items), params.Collection)

	result := &ImportResult{}
	records := make([]models.SourceRecord, 0, len(items))
	downloaded := 0
	for i := range items {
		item := &items[i]
		if item.Data.ItemType == "attachment" || item.Data.ItemType == "note" {
			continue
		}
		record := documents.RecordFromZoteroItem(item)
		if record.Title == "" {
			result.Skipped = append(result.Skipped, fmt.Sprintf("%s: no title", item.Key))
			continue
		}

		if downloaded < params.AttachmentLimit {
			text, err := attachmentText(item.Key)
			switch {
			case err != nil:
				log.Warn("No attachment text for %s: %v", item.Key, err)
			case text != "":
				record = documents.WithFullText(record, text)
				downloaded++
			}
		}
		records = append(records, record)
	}

	if len(records) == 0 {
		return result, fmt.Errorf("collection %s has no importable items", params.Collection)
	}

	study, err := writeStudy(ctx, params.Name, models.KindBibliography, libraryID, records, params.BundleDir, catalog)
	if err != nil {
		return result, err
	}
	result.Study = *study
	result.Records = len(records)
	log.Info("Imported %d records (%d with attachment text) into study %s", len(records), downloaded, params.Name)
	return result, nil
}

func readableAttachment(contentType string) bool {
	switch strings.ToLower(contentType) {
	case "application/pdf", "text/html", "text/plain", "text/markdown":
		return true
	}
	return false
}
