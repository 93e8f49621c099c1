package tools

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Epistemic-Technology/study-rag/internal/bundle"
	"github.com/Epistemic-Technology/study-rag/internal/config"
	"github.com/Epistemic-Technology/study-rag/internal/documents"
	"github.com/Epistemic-Technology/study-rag/internal/extract"
	"github.com/Epistemic-Technology/study-rag/internal/index"
	"github.com/Epistemic-Technology/study-rag/internal/llm"
	"github.com/Epistemic-Technology/study-rag/internal/llm/llmtest"
	"github.com/Epistemic-Technology/study-rag/internal/logger"
	"github.com/Epistemic-Technology/study-rag/internal/pdf"
	"github.com/Epistemic-Technology/study-rag/internal/pdf/pdftest"
	"github.com/Epistemic-Technology/study-rag/internal/query"
	"github.com/Epistemic-Technology/study-rag/internal/segment"
	"github.com/Epistemic-Technology/study-rag/internal/storage"
	"github.com/Epistemic-Technology/study-rag/internal/vectorstore"
	"github.com/Epistemic-Technology/study-rag/models"
)

// newTestDeps wires every service offline against a temporary SQLite
// catalog holding two studies: "climate" (bibliography) and "papers" (one
// two-page PDF record "pdf-0").
func newTestDeps(t *testing.T, completer llm.Completer) *Deps {
	t.Helper()
	dir := t.TempDir()
	log := logger.NewNoOpLogger()

	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("Failed to build config: %v", err)
	}
	cfg.DataDir = dir
	cfg.BundleDir = filepath.Join(dir, "bundles")
	cfg.ExportDir = filepath.Join(dir, "exports")

	store, err := storage.NewSQLiteStore(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	registerTestStudy(t, store, "climate", models.KindBibliography, []models.SourceRecord{
		{
			ID:         "rec-1",
			Kind:       models.KindBibliography,
			Title:      "Machine Learning in Climate Science",
			Authors:    []string{"Smith, John", "Doe, Jane"},
			YearOrDate: "2020-05-15",
			DOI:        "10.1038/s41558-020-0000-0",
			FullText:   "Neural models of the climate system. The climate models were trained on reanalysis data.",
		},
		{
			ID:         "rec-2",
			Kind:       models.KindBibliography,
			Title:      "Introduction to Algorithms",
			Authors:    []string{"Cormen, Thomas", "Leiserson, Charles", "Rivest, Ronald"},
			YearOrDate: "2009",
			FullText:   "Sorting and searching. Graph algorithms and dynamic programming.",
		},
	})

	source := pdftest.WriteFile(t, "trial.pdf", pdftest.Info{Title: "Plasma Trial", Author: "Okafor, Ada"},
		"The trial enrolled 120 patients in Guinea.",
		"Results show reduced mortality after plasma treatment.")
	registerTestStudy(t, store, "papers", models.KindPDF, []models.SourceRecord{{
		ID:         "pdf-0",
		Kind:       models.KindPDF,
		Title:      "Plasma Trial",
		Authors:    []string{"Okafor, Ada"},
		SourceFile: source,
		PageCount:  2,
		Pages: map[int]string{
			0: "The trial enrolled 120 patients in Guinea.",
			1: "Results show reduced mortality after plasma treatment.",
		},
	}})

	vectors := vectorstore.NewMemoryStore(log)
	embedder := &llmtest.HashEmbedder{}
	builder := index.NewBuilder(vectors, embedder, segment.New(0, 0, 0, log), store, log)

	return &Deps{
		Config:    cfg,
		Catalog:   store,
		Builder:   builder,
		Engine:    query.NewEngine(vectors, embedder, completer, log),
		Extractor: extract.NewExtractor(completer, documents.TextLoader{}, log),
		Renderer:  pdf.NewPageRenderer(log),
		Log:       log,
	}
}

func registerTestStudy(t *testing.T, store storage.Store, name string, kind models.CollectionKind, records []models.SourceRecord) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".json")
	if err := bundle.Write(path, kind, records); err != nil {
		t.Fatalf("Failed to write bundle: %v", err)
	}
	study := models.Study{Name: name, BundlePath: path, Kind: kind}
	if err := store.RegisterStudy(context.Background(), study); err != nil {
		t.Fatalf("Failed to register study: %v", err)
	}
}
