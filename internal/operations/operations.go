package operations

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/Epistemic-Technology/study-rag/internal/bundle"
	"github.com/Epistemic-Technology/study-rag/internal/documents"
	"github.com/Epistemic-Technology/study-rag/internal/logger"
	"github.com/Epistemic-Technology/study-rag/internal/vectorstore"
	"github.com/Epistemic-Technology/study-rag/models"
)

// LocalLibraryID marks studies created from local files rather than Zotero.
const LocalLibraryID = "local"

// Registrar records a study in the catalog.
type Registrar interface {
	RegisterStudy(ctx context.Context, study models.Study) error
}

// ImportResult describes a study written by an import operation.
type ImportResult struct {
	Study   models.Study `json:"study"`
	Records int          `json:"records"`
	// Skipped lists inputs that produced no record, with the reason
	Skipped []string `json:"skipped,omitempty"`
}

// PDFCollectionParams contains parameters for creating a PDF collection.
type PDFCollectionParams struct {
	Name      string    // Human name; the study name is derived from it
	Files     []string  // Local paths or http(s) URLs
	BundleDir string    // Where the bundle and downloaded files are written
	Now       time.Time // Timestamp for the study name (default time.Now)
}

// CollectionID returns the study name for a PDF collection:
// pdf_<slug>_<YYYYMMDD_HHMMSS>.
func CollectionID(name string, now time.Time) string {
	slug := vectorstore.Slug(name, 48)
	if slug == "" {
		slug = "collection"
	}
	return fmt.Sprintf("pdf_%s_%s", slug, now.Format("20060102_150405"))
}

// CreatePDFCollection extracts the text of each file page by page, writes a
// PDF bundle and registers it as a new study. Files that cannot be read are
// skipped; at least one must succeed.
func CreatePDFCollection(ctx context.Context, params PDFCollectionParams, catalog Registrar, log logger.Logger) (*ImportResult, error) {
	if strings.TrimSpace(params.Name) == "" {
		return nil, errors.New("collection name is required")
	}
	if len(params.Files) == 0 {
		return nil, errors.New("at least one PDF file is required")
	}
	if params.BundleDir == "" {
		return nil, errors.New("bundle directory is required")
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}

	id := CollectionID(params.Name, now)
	result := &ImportResult{}
	records := make([]models.SourceRecord, 0, len(params.Files))

	for i, file := range params.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		local, err := localCopy(ctx, file, filepath.Join(params.BundleDir, id))
		if err != nil {
			log.Warn("Skipping %s: %v", file, err)
			result.Skipped = append(result.Skipped, fmt.Sprintf("%s: %v", file, err))
			continue
		}

		doc, err := documents.ExtractPDFText(local)
		if err != nil {
			log.Warn("Skipping %s: %v", file, err)
			result.Skipped = append(result.Skipped, fmt.Sprintf("%s: %v", file, err))
			continue
		}

		log.Info("Extracted %d pages from %s", doc.PageCount, local)
		records = append(records, models.SourceRecord{
			ID:         fmt.Sprintf("pdf-%d", i+1),
			Kind:       models.KindPDF,
			Title:      doc.Title,
			Authors:    doc.Authors,
			YearOrDate: doc.Date,
			SourceFile: local,
			PageCount:  doc.PageCount,
			Pages:      doc.Pages,
		})
	}

	if len(records) == 0 {
		return result, fmt.Errorf("none of the %d files could be read as PDF", len(params.Files))
	}

	study, err := writeStudy(ctx, id, models.KindPDF, LocalLibraryID, records, params.BundleDir, catalog)
	if err != nil {
		return result, err
	}
	result.Study = *study
	result.Records = len(records)
	log.Info("Created PDF collection %s with %d documents", id, len(records))
	return result, nil
}

// localCopy returns an absolute local path for file, downloading URLs into dir.
func localCopy(ctx context.Context, file, dir string) (string, error) {
	if u, err := url.Parse(file); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		data, err := documents.GetFromURL(ctx, file)
		if err != nil {
			return "", err
		}
		if documents.DetectDocumentType(data) != "pdf" {
			return "", fmt.Errorf("%s is not a PDF", file)
		}
		name := path.Base(u.Path)
		if name == "" || name == "/" || name == "." {
			name = "download"
		}
		if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
			name += ".pdf"
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create download directory: %w", err)
		}
		dest := filepath.Join(dir, name)
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return "", fmt.Errorf("failed to save %s: %w", file, err)
		}
		return dest, nil
	}

	abs, err := filepath.Abs(file)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", err
	}
	return abs, nil
}

// writeStudy writes records as a bundle named after the study and registers it.
func writeStudy(ctx context.Context, name string, kind models.CollectionKind, libraryID string, records []models.SourceRecord, bundleDir string, catalog Registrar) (*models.Study, error) {
	slug := vectorstore.Slug(name, 96)
	if slug == "" {
		slug = "study"
	}
	bundlePath, err := filepath.Abs(filepath.Join(bundleDir, slug+".json"))
	if err != nil {
		return nil, err
	}
	if err := bundle.Write(bundlePath, kind, records); err != nil {
		return nil, err
	}

	study := models.Study{
		Name:       name,
		BundlePath: bundlePath,
		LibraryID:  libraryID,
		Kind:       kind,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	if err := catalog.RegisterStudy(ctx, study); err != nil {
		return nil, fmt.Errorf("failed to register study %s: %w", name, err)
	}
	return &study, nil
}
