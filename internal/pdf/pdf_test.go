package pdf

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/Epistemic-Technology/study-rag/internal/logger"
	"github.com/Epistemic-Technology/study-rag/internal/pdf/pdftest"
)

func TestSplitPdf(t *testing.T) {
	pdfBytes := pdftest.Build(pdftest.Info{Title: "Split"}, "first page", "second page", "third page")

	pages, err := SplitPdf(pdfBytes)
	if err != nil {
		t.Fatalf("SplitPdf failed: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("Expected 3 pages, got %d", len(pages))
	}

	for i, pageData := range pages {
		if len(pageData) == 0 {
			t.Errorf("Page %d is empty", i+1)
			continue
		}
		pageCount, err := api.PageCount(bytes.NewReader(pageData), nil)
		if err != nil {
			t.Errorf("Failed to get page count for page %d: %v", i+1, err)
			continue
		}
		if pageCount != 1 {
			t.Errorf("Page %d should have 1 page, but has %d", i+1, pageCount)
		}
	}
}

func TestSplitPdf_Samples(t *testing.T) {
	samplesDir := filepath.Join("..", "..", "samples")
	files, err := filepath.Glob(filepath.Join(samplesDir, "*.pdf"))
	if err != nil {
		t.Fatalf("Failed to list sample PDFs: %v", err)
	}
	if len(files) == 0 {
		t.Skip("No sample PDFs found in samples directory")
	}

	for _, filePath := range files {
		t.Run(filepath.Base(filePath), func(t *testing.T) {
			pdfBytes, err := os.ReadFile(filePath)
			if err != nil {
				t.Fatalf("Failed to read PDF file %s: %v", filePath, err)
			}
			expectedPageCount, err := api.PageCount(bytes.NewReader(pdfBytes), nil)
			if err != nil {
				t.Fatalf("Failed to get page count: %v", err)
			}
			pages, err := SplitPdf(pdfBytes)
			if err != nil {
				t.Fatalf("SplitPdf failed: %v", err)
			}
			if len(pages) != expectedPageCount {
				t.Errorf("Expected %d pages, got %d", expectedPageCount, len(pages))
			}
		})
	}
}

func TestSplitPdf_EmptyInput(t *testing.T) {
	_, err := SplitPdf([]byte{})
	if err == nil {
		t.Error("Expected error for empty PDF data, got nil")
	}
}

func TestSplitPdf_InvalidInput(t *testing.T) {
	_, err := SplitPdf([]byte("This is not a PDF"))
	if err == nil {
		t.Error("Expected error for invalid PDF data, got nil")
	}
}

func TestPageCount(t *testing.T) {
	path := pdftest.WriteFile(t, "count.pdf", pdftest.Info{Title: "Count"}, "a", "b")
	n, err := PageCount(path)
	if err != nil {
		t.Fatalf("PageCount failed: %v", err)
	}
	if n != 2 {
		t.Errorf("PageCount = %d, want 2", n)
	}
}

func TestRenderPage(t *testing.T) {
	path := pdftest.WriteFile(t, "preview.pdf", pdftest.Info{Title: "Preview"}, "zero", "one", "two")
	renderer := NewPageRenderer(logger.NewNoOpLogger())
	ctx := context.Background()

	tests := []struct {
		name    string
		page    int
		wantNil bool
	}{
		{name: "first page", page: 0},
		{name: "last page", page: 2},
		{name: "negative page", page: -1, wantNil: true},
		{name: "page equal to page count", page: 3, wantNil: true},
		{name: "far past the end", page: 100, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := renderer.RenderPage(ctx, path, tt.page)
			if err != nil {
				t.Fatalf("RenderPage(%d) error = %v", tt.page, err)
			}
			if tt.wantNil {
				if data != nil {
					t.Errorf("RenderPage(%d) returned %d bytes, want nil", tt.page, len(data))
				}
				return
			}
			if data == nil {
				t.Fatalf("RenderPage(%d) returned nil", tt.page)
			}
			n, err := api.PageCount(bytes.NewReader(data), nil)
			if err != nil {
				t.Fatalf("preview is not a valid PDF: %v", err)
			}
			if n != 1 {
				t.Errorf("preview has %d pages, want 1", n)
			}
		})
	}
}

func TestRenderPage_MissingFile(t *testing.T) {
	renderer := NewPageRenderer(logger.NewNoOpLogger())
	_, err := renderer.RenderPage(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), 0)
	if err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestPageAt_OutOfRange(t *testing.T) {
	pages, err := SplitPdf(pdftest.Build(pdftest.Info{}, "only page"))
	if err != nil {
		t.Fatalf("SplitPdf() error = %v", err)
	}
	_, err = pageAt(pages, 1)
	var rangeErr *PreviewOutOfRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("pageAt error = %v, want PreviewOutOfRangeError", err)
	}
	if rangeErr.Page != 1 || rangeErr.PageCount != 1 {
		t.Errorf("unexpected error fields: %+v", rangeErr)
	}
}

func TestRenderPage_RefreshesChangedFile(t *testing.T) {
	path := pdftest.WriteFile(t, "changing.pdf", pdftest.Info{}, "one page")
	renderer := NewPageRenderer(logger.NewNoOpLogger())
	ctx := context.Background()

	if data, err := renderer.RenderPage(ctx, path, 1); err != nil || data != nil {
		t.Fatalf("RenderPage(1) = %d bytes, %v; want nil, nil", len(data), err)
	}

	if err := os.WriteFile(path, pdftest.Build(pdftest.Info{}, "first", "second"), 0o644); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	data, err := renderer.RenderPage(ctx, path, 1)
	if err != nil {
		t.Fatalf("RenderPage(1) error = %v", err)
	}
	if data == nil {
		t.Error("Expected the second page after the file changed")
	}
}
