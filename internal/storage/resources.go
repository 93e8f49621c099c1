package storage

import (
	"fmt"
	"net/url"

	"github.com/Epistemic-Technology/study-rag/models"
)

// CalculateResourcePaths lists the resource URIs available for a study.
// Page preview URIs are only listed for PDF records.
func CalculateResourcePaths(study *models.Study, records []models.SourceRecord) []string {
	name := url.PathEscape(study.Name)
	resourcePaths := []string{fmt.Sprintf("study://%s", name)}

	for _, record := range records {
		if record.Kind != models.KindPDF || record.PageCount == 0 {
			continue
		}
		id := url.PathEscape(record.ID)
		resourcePaths = append(resourcePaths,
			fmt.Sprintf("study://%s/records/%s/pages/0", name, id),
			fmt.Sprintf("study://%s/records/%s/pages/{page}", name, id),
		)
	}

	return resourcePaths
}

// PageResourceURI is the preview URI of one 0-based page of a PDF record.
func PageResourceURI(study, recordID string, page int) string {
	return fmt.Sprintf("study://%s/records/%s/pages/%d", url.PathEscape(study), url.PathEscape(recordID), page)
}
