package documents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// UnsupportedFormatError is returned for files whose text cannot be read.
type UnsupportedFormatError struct {
	Path string
	Type string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported document format %q for %s", e.Type, e.Path)
}

// TextLoader reads the plain text of PDF, HTML, Zotero snapshot, markdown
// and text files.
type TextLoader struct{}

// LoadText returns the full text of the file at path, detecting the format
// from its content and extension.
func (TextLoader) LoadText(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return TextFromData(data, path)
}

// TextFromData converts raw document bytes to plain text. name supplies the
// extension hint and the fallback title for PDFs.
func TextFromData(data []byte, name string) (string, error) {
	// Magic bytes win for binary formats; Zotero serves snapshots named
	// *.html as ZIP archives.
	docType := DetectDocumentType(data)
	switch docType {
	case "pdf", "zotero-snapshot", "docx", "zip":
	default:
		if hint := typeFromName(name); hint != "" {
			docType = hint
		}
	}

	switch docType {
	case "pdf":
		doc, err := ExtractPDFTextFromBytes(data, name)
		if err != nil {
			return "", err
		}
		return JoinPages(doc.Pages), nil
	case "html":
		return PreprocessHTML(data)
	case "zotero-snapshot":
		page, err := ExtractHTMLFromZip(data)
		if err != nil {
			return "", err
		}
		return PreprocessHTML(page)
	case "md", "txt":
		return SanitizeText(string(data)), nil
	default:
		return "", &UnsupportedFormatError{Path: name, Type: docType}
	}
}

func typeFromName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "pdf"
	case ".html", ".htm":
		return "html"
	case ".md", ".markdown":
		return "md"
	case ".txt", ".text":
		return "txt"
	}
	return ""
}

// JoinPages concatenates page texts in page order, separated by blank lines.
func JoinPages(pages map[int]string) string {
	idx := make([]int, 0, len(pages))
	for i := range pages {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	parts := make([]string, 0, len(idx))
	for _, i := range idx {
		if text := strings.TrimSpace(pages[i]); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}
