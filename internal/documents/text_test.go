package documents

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/Epistemic-Technology/study-rag/internal/pdf/pdftest"
	"github.com/Epistemic-Technology/study-rag/models"
)

func TestExtractPDFText(t *testing.T) {
	path := pdftest.WriteFile(t, "trial.pdf",
		pdftest.Info{Title: "Convalescent Plasma Trial", Author: "Ada Smith; Bo Jones", CreationDate: "D:20190412093000Z"},
		"Patients received plasma.", "Survival improved markedly.")

	doc, err := ExtractPDFText(path)
	if err != nil {
		t.Fatalf("ExtractPDFText() error = %v", err)
	}
	if doc.PageCount != 2 {
		t.Errorf("PageCount = %d, want 2", doc.PageCount)
	}
	if doc.Title != "Convalescent Plasma Trial" {
		t.Errorf("Title = %q", doc.Title)
	}
	if !reflect.DeepEqual(doc.Authors, []string{"Ada Smith", "Bo Jones"}) {
		t.Errorf("Authors = %v", doc.Authors)
	}
	if doc.Date != "2019-04-12" {
		t.Errorf("Date = %q, want 2019-04-12", doc.Date)
	}
	if !strings.Contains(doc.Pages[0], "plasma") {
		t.Errorf("page 0 text = %q", doc.Pages[0])
	}
	if !strings.Contains(doc.Pages[1], "Survival") {
		t.Errorf("page 1 text = %q", doc.Pages[1])
	}
}

func TestExtractPDFText_TitleFallsBackToFileName(t *testing.T) {
	path := pdftest.WriteFile(t, "untitled-report.pdf", pdftest.Info{}, "Body text.")
	doc, err := ExtractPDFText(path)
	if err != nil {
		t.Fatalf("ExtractPDFText() error = %v", err)
	}
	if doc.Title != "untitled-report" {
		t.Errorf("Title = %q, want untitled-report", doc.Title)
	}
}

func TestExtractPDFTextFromBytes_Invalid(t *testing.T) {
	if _, err := ExtractPDFTextFromBytes([]byte("not a pdf at all"), "bad.pdf"); err == nil {
		t.Error("Expected error for invalid PDF, got nil")
	}
}

func TestTextLoader(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
		return path
	}

	snapshot, err := createTestZip(map[string]string{
		"index.html": "<html><body><h1>Snapshot Heading</h1><p>Saved page.</p></body></html>",
	})
	if err != nil {
		t.Fatalf("Failed to create test ZIP: %v", err)
	}

	tests := []struct {
		name     string
		path     string
		contains string
	}{
		{
			name:     "pdf",
			path:     pdftest.WriteFile(t, "paper.pdf", pdftest.Info{Title: "Paper"}, "Coverage reached ninety percent."),
			contains: "ninety percent",
		},
		{
			name:     "html",
			path:     write("page.html", "<html><body><h2>Results</h2><script>x()</script><p>Uptake rose.</p></body></html>"),
			contains: "## Results",
		},
		{
			name:     "markdown",
			path:     write("notes.md", "# Notes\nSome findings."),
			contains: "Some findings.",
		},
		{
			name:     "plain text",
			path:     write("notes.txt", "Plain study notes."),
			contains: "Plain study notes.",
		},
		{
			name:     "snapshot sniffed by content",
			path:     write("snapshot.bin", string(snapshot)),
			contains: "# Snapshot Heading",
		},
	}

	loader := TextLoader{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := loader.LoadText(context.Background(), tt.path)
			if err != nil {
				t.Fatalf("LoadText() error = %v", err)
			}
			if !strings.Contains(text, tt.contains) {
				t.Errorf("LoadText() = %q, want it to contain %q", text, tt.contains)
			}
		})
	}
}

func TestTextLoader_Unsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob.bin")
	if err := os.WriteFile(path, []byte{0x00, 0x01, 0x02, 0x03, 0xff, 0xfe}, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := TextLoader{}.LoadText(context.Background(), path)
	var unsupported *UnsupportedFormatError
	if !errors.As(err, &unsupported) {
		t.Fatalf("LoadText() error = %v, want UnsupportedFormatError", err)
	}
}

func TestTextLoader_MissingFile(t *testing.T) {
	_, err := TextLoader{}.LoadText(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	if err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestSplitAuthors(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"Ada Smith", []string{"Ada Smith"}},
		{"Ada Smith; Bo Jones", []string{"Ada Smith", "Bo Jones"}},
		{"Ada Smith, Bo Jones and Cy Lee", []string{"Ada Smith", "Bo Jones", "Cy Lee"}},
		{"Smith, A.; Jones, B.", []string{"Smith, A.", "Jones, B."}},
	}
	for _, tt := range tests {
		if got := SplitAuthors(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitAuthors(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPDFDate(t *testing.T) {
	tests := map[string]string{
		"D:20210315120000Z": "2021-03-15",
		"D:2021":            "2021",
		"20200101":          "2020-01-01",
		"":                  "",
		"yesterday":         "",
	}
	for in, want := range tests {
		if got := pdfDate(in); got != want {
			t.Errorf("pdfDate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeText(t *testing.T) {
	got := SanitizeText("  a\x00b\x07c\tz\n\xff ")
	if got != "abc\tz" {
		t.Errorf("SanitizeText() = %q", got)
	}
}

func TestJoinPages(t *testing.T) {
	got := JoinPages(map[int]string{2: "third", 0: "first", 1: "  "})
	if got != "first\n\nthird" {
		t.Errorf("JoinPages() = %q", got)
	}
}

func TestWithFullText(t *testing.T) {
	record := models.SourceRecord{ID: "r1", Title: "T", Abstract: "Abstract."}
	got := WithFullText(record, " Body. ")
	if got.FullText != "Abstract.\n\nBody." {
		t.Errorf("FullText = %q", got.FullText)
	}
	if WithFullText(record, "  ").FullText != record.FullText {
		t.Error("blank text should leave the record unchanged")
	}
	noAbstract := WithFullText(models.SourceRecord{ID: "r2", Title: "T"}, "Body.")
	if noAbstract.FullText != "Body." {
		t.Errorf("FullText = %q", noAbstract.FullText)
	}
}
