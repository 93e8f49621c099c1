package resources

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Epistemic-Technology/study-rag/internal/bundle"
	"github.com/Epistemic-Technology/study-rag/internal/logger"
	"github.com/Epistemic-Technology/study-rag/internal/pdf"
	"github.com/Epistemic-Technology/study-rag/internal/pdf/pdftest"
	"github.com/Epistemic-Technology/study-rag/internal/storage"
	"github.com/Epistemic-Technology/study-rag/models"
)

func newTestHandler(t *testing.T) *StudyResourceHandler {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewSQLiteStore(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	source := pdftest.WriteFile(t, "paper.pdf", pdftest.Info{Title: "Paper"}, "first page", "second page")
	records := []models.SourceRecord{{
		ID:         "pdf-0",
		Kind:       models.KindPDF,
		Title:      "Paper",
		SourceFile: source,
		PageCount:  2,
		Pages:      map[int]string{0: "first page", 1: "second page"},
	}}
	bundlePath := filepath.Join(dir, "papers.json")
	if err := bundle.Write(bundlePath, models.KindPDF, records); err != nil {
		t.Fatalf("Failed to write bundle: %v", err)
	}
	study := models.Study{Name: "my papers", BundlePath: bundlePath, LibraryID: "local", Kind: models.KindPDF}
	if err := store.RegisterStudy(context.Background(), study); err != nil {
		t.Fatalf("Failed to register study: %v", err)
	}

	return NewStudyResourceHandler(store, nil, pdf.NewPageRenderer(logger.NewNoOpLogger()))
}

func TestListResources(t *testing.T) {
	h := newTestHandler(t)

	resources, err := h.ListResources(context.Background())
	if err != nil {
		t.Fatalf("ListResources failed: %v", err)
	}
	if len(resources) != 1 {
		t.Fatalf("Expected 1 resource, got %d", len(resources))
	}
	if resources[0].URI != "study://my%20papers" {
		t.Errorf("Unexpected URI: %s", resources[0].URI)
	}
}

func TestReadResource_Summary(t *testing.T) {
	h := newTestHandler(t)
	uri := "study://my%20papers"

	result, err := h.ReadResource(context.Background(), uri)
	if err != nil {
		t.Fatalf("ReadResource failed: %v", err)
	}
	if len(result.Contents) != 1 || result.Contents[0].MIMEType != "application/json" {
		t.Fatalf("Unexpected contents: %+v", result.Contents)
	}

	var summary StudySummary
	if err := json.Unmarshal([]byte(result.Contents[0].Text), &summary); err != nil {
		t.Fatalf("Summary is not JSON: %v", err)
	}
	if summary.Study.Name != "my papers" {
		t.Errorf("Expected study 'my papers', got %q", summary.Study.Name)
	}
	if len(summary.Records) != 1 || summary.Records[0].PageCount != 2 {
		t.Errorf("Unexpected records: %+v", summary.Records)
	}
	if len(summary.Resources) != 3 {
		t.Errorf("Expected 3 resource paths, got %v", summary.Resources)
	}
}

func TestReadResource_Page(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	result, err := h.ReadResource(ctx, "study://my%20papers/records/pdf-0/pages/1")
	if err != nil {
		t.Fatalf("ReadResource failed: %v", err)
	}
	content := result.Contents[0]
	if content.MIMEType != "application/pdf" {
		t.Errorf("Expected application/pdf, got %s", content.MIMEType)
	}
	if !strings.HasPrefix(string(content.Blob), "%PDF") {
		t.Error("Expected page preview to be a PDF document")
	}

	for _, uri := range []string{
		"study://my%20papers/records/pdf-0/pages/2",
		"study://my%20papers/records/pdf-9/pages/0",
	} {
		if _, err := h.ReadResource(ctx, uri); err == nil {
			t.Errorf("Expected not found error for %s", uri)
		}
	}
}

func TestReadResource_InvalidURI(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name string
		uri  string
	}{
		{"wrong scheme", "pdf://my%20papers"},
		{"missing name", "study://"},
		{"unknown path", "study://my%20papers/chunks"},
		{"bad page", "study://my%20papers/records/pdf-0/pages/x"},
		{"unknown study", "study://other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.ReadResource(context.Background(), tt.uri); err == nil {
				t.Errorf("Expected error for %s", tt.uri)
			}
		})
	}
}
