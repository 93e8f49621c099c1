package documents

import (
	"strings"

	"github.com/Epistemic-Technology/zotero/zotero"

	"github.com/Epistemic-Technology/study-rag/models"
)

// RecordFromZoteroItem maps a Zotero item onto a bibliography record. The
// abstract doubles as full text until a richer source is attached.
func RecordFromZoteroItem(item *zotero.Item) models.SourceRecord {
	record := models.SourceRecord{
		ID:       item.Key,
		Kind:     models.KindBibliography,
		Title:    strings.TrimSpace(item.Data.Title),
		Abstract: strings.TrimSpace(item.Data.AbstractNote),
	}
	record.FullText = record.Abstract

	for _, creator := range item.Data.Creators {
		var name string
		if creator.Name != "" {
			name = creator.Name
		} else if creator.FirstName != "" || creator.LastName != "" {
			name = strings.TrimSpace(creator.FirstName + " " + creator.LastName)
		}
		if name != "" {
			record.Authors = append(record.Authors, name)
		}
	}

	// The zotero library populates Extra with the type-specific fields
	if item.Data.Extra != nil {
		if val, ok := item.Data.Extra["date"].(string); ok {
			record.YearOrDate = strings.TrimSpace(val)
		}
		if val, ok := item.Data.Extra["DOI"].(string); ok {
			record.DOI = strings.TrimSpace(val)
		}
	}

	return record
}

// WithFullText returns record with text appended after the abstract.
func WithFullText(record models.SourceRecord, text string) models.SourceRecord {
	text = strings.TrimSpace(text)
	if text == "" {
		return record
	}
	if record.Abstract == "" {
		record.FullText = text
	} else {
		record.FullText = record.Abstract + "\n\n" + text
	}
	return record
}
