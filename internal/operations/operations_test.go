package operations

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Epistemic-Technology/study-rag/internal/bundle"
	"github.com/Epistemic-Technology/study-rag/internal/logger"
	"github.com/Epistemic-Technology/study-rag/internal/pdf/pdftest"
	"github.com/Epistemic-Technology/study-rag/models"
)

type memCatalog struct {
	mu      sync.Mutex
	studies map[string]models.Study
}

func (c *memCatalog) RegisterStudy(ctx context.Context, study models.Study) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.studies == nil {
		c.studies = make(map[string]models.Study)
	}
	c.studies[study.Name] = study
	return nil
}

func TestCollectionID(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	tests := []struct {
		name string
		want string
	}{
		{"Malaria Trials", "pdf_malaria_trials_20240309_140507"},
		{"  Vaccine: Coverage (2023) ", "pdf_vaccine_coverage_2023_20240309_140507"},
		{"???", "pdf_collection_20240309_140507"},
	}
	for _, tt := range tests {
		if got := CollectionID(tt.name, now); got != tt.want {
			t.Errorf("CollectionID(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestCreatePDFCollection(t *testing.T) {
	ctx := context.Background()
	catalog := &memCatalog{}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	first := pdftest.WriteFile(t, "first.pdf", pdftest.Info{Title: "First Trial", Author: "Ada Smith"},
		"Enrolment began in 2019.", "Outcomes were favourable.")
	second := pdftest.WriteFile(t, "second.pdf", pdftest.Info{Title: "Second Trial"}, "A single page.")
	missing := filepath.Join(t.TempDir(), "missing.pdf")

	params := PDFCollectionParams{
		Name:      "Plasma Trials",
		Files:     []string{first, missing, second},
		BundleDir: t.TempDir(),
		Now:       now,
	}
	result, err := CreatePDFCollection(ctx, params, catalog, logger.NewNoOpLogger())
	if err != nil {
		t.Fatalf("CreatePDFCollection() error = %v", err)
	}

	wantName := "pdf_plasma_trials_20240102_030405"
	if result.Study.Name != wantName {
		t.Errorf("study name = %q, want %q", result.Study.Name, wantName)
	}
	if result.Records != 2 {
		t.Errorf("Records = %d, want 2", result.Records)
	}
	if len(result.Skipped) != 1 || !strings.Contains(result.Skipped[0], "missing.pdf") {
		t.Errorf("Skipped = %v", result.Skipped)
	}

	registered, ok := catalog.studies[wantName]
	if !ok {
		t.Fatalf("study %s was not registered", wantName)
	}
	if registered.Kind != models.KindPDF || registered.LibraryID != LocalLibraryID {
		t.Errorf("registered study = %+v", registered)
	}

	kind, records, err := bundle.Load(registered.BundlePath)
	if err != nil {
		t.Fatalf("bundle.Load() error = %v", err)
	}
	if kind != models.KindPDF {
		t.Errorf("bundle kind = %s, want pdf", kind)
	}
	if len(records) != 2 {
		t.Fatalf("bundle has %d records, want 2", len(records))
	}
	if records[0].Title != "First Trial" || records[0].PageCount != 2 || records[0].SourceFile != first {
		t.Errorf("first record = %+v", records[0])
	}
	if !strings.Contains(records[0].Pages[1], "favourable") {
		t.Errorf("page 1 text = %q", records[0].Pages[1])
	}
}

func TestCreatePDFCollection_FromURL(t *testing.T) {
	pdfBytes := pdftest.Build(pdftest.Info{Title: "Remote Study"}, "Downloaded page.")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/papers/remote.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Write(pdfBytes)
		case "/not-a-pdf":
			w.Write([]byte("<html><body>nope</body></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	catalog := &memCatalog{}
	params := PDFCollectionParams{
		Name:      "Remote",
		Files:     []string{srv.URL + "/papers/remote.pdf", srv.URL + "/not-a-pdf", srv.URL + "/gone.pdf"},
		BundleDir: t.TempDir(),
	}
	result, err := CreatePDFCollection(context.Background(), params, catalog, logger.NewNoOpLogger())
	if err != nil {
		t.Fatalf("CreatePDFCollection() error = %v", err)
	}
	if result.Records != 1 || len(result.Skipped) != 2 {
		t.Fatalf("Records = %d, Skipped = %v", result.Records, result.Skipped)
	}
	var rejected bool
	for _, skipped := range result.Skipped {
		if strings.Contains(skipped, "/not-a-pdf") && strings.Contains(skipped, "is not a PDF") {
			rejected = true
		}
	}
	if !rejected {
		t.Errorf("HTML download should be rejected as not a PDF, Skipped = %v", result.Skipped)
	}

	_, records, err := bundle.Load(result.Study.BundlePath)
	if err != nil {
		t.Fatalf("bundle.Load() error = %v", err)
	}
	if _, err := os.Stat(records[0].SourceFile); err != nil {
		t.Errorf("downloaded file missing: %v", err)
	}
	if filepath.Base(records[0].SourceFile) != "remote.pdf" {
		t.Errorf("SourceFile = %s", records[0].SourceFile)
	}
}

func TestCreatePDFCollection_Errors(t *testing.T) {
	ctx := context.Background()
	log := logger.NewNoOpLogger()
	notPDF := filepath.Join(t.TempDir(), "notes.pdf")
	if err := os.WriteFile(notPDF, []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		params PDFCollectionParams
	}{
		{name: "missing name", params: PDFCollectionParams{Files: []string{"a.pdf"}, BundleDir: t.TempDir()}},
		{name: "no files", params: PDFCollectionParams{Name: "x", BundleDir: t.TempDir()}},
		{name: "no bundle dir", params: PDFCollectionParams{Name: "x", Files: []string{"a.pdf"}}},
		{name: "nothing readable", params: PDFCollectionParams{Name: "x", Files: []string{notPDF}, BundleDir: t.TempDir()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := &memCatalog{}
			if _, err := CreatePDFCollection(ctx, tt.params, catalog, log); err == nil {
				t.Fatal("Expected error but got none")
			}
			if len(catalog.studies) != 0 {
				t.Errorf("no study should be registered, got %v", catalog.studies)
			}
		})
	}
}

func TestWriteStudy_Bibliography(t *testing.T) {
	catalog := &memCatalog{}
	records := []models.SourceRecord{
		{ID: "K1", Kind: models.KindBibliography, Title: "Coverage in Kenya", Abstract: "Abstract.", FullText: "Abstract."},
	}
	study, err := writeStudy(context.Background(), "Vaccine Coverage", models.KindBibliography, "lib-1", records, t.TempDir(), catalog)
	if err != nil {
		t.Fatalf("writeStudy() error = %v", err)
	}
	if filepath.Base(study.BundlePath) != "vaccine_coverage.json" {
		t.Errorf("BundlePath = %s", study.BundlePath)
	}
	kind, loaded, err := bundle.Load(study.BundlePath)
	if err != nil {
		t.Fatalf("bundle.Load() error = %v", err)
	}
	if kind != models.KindBibliography || len(loaded) != 1 || loaded[0].Title != "Coverage in Kenya" {
		t.Errorf("loaded %s %+v", kind, loaded)
	}
	if catalog.studies["Vaccine Coverage"].LibraryID != "lib-1" {
		t.Errorf("catalog = %+v", catalog.studies)
	}
}
