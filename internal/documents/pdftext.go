package documents

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/Epistemic-Technology/study-rag/models"
)

// ExtractPDFText reads the text of every page of the PDF at path. Pages
// without extractable text are kept as empty strings so page numbers stay
// aligned with the file.
func ExtractPDFText(path string) (*models.PDFText, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ExtractPDFTextFromBytes(data, path)
}

// ExtractPDFTextFromBytes is ExtractPDFText for in-memory data. name is used
// as the title when the document info carries none.
func ExtractPDFTextFromBytes(data []byte, name string) (out *models.PDFText, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("failed to parse PDF %s: %v", name, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	out = &models.PDFText{
		PageCount: r.NumPage(),
		Pages:     make(map[int]string, r.NumPage()),
	}
	for i := 1; i <= out.PageCount; i++ {
		out.Pages[i-1] = pageText(r, i)
	}

	info := r.Trailer().Key("Info")
	out.Title = SanitizeText(info.Key("Title").Text())
	if out.Title == "" {
		out.Title = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	}
	out.Authors = SplitAuthors(SanitizeText(info.Key("Author").Text()))
	out.Date = pdfDate(info.Key("CreationDate").Text())
	return out, nil
}

func pageText(r *pdf.Reader, num int) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	p := r.Page(num)
	if p.V.IsNull() {
		return ""
	}
	raw, err := p.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return SanitizeText(raw)
}

// SanitizeText makes extracted text valid UTF-8 and drops control
// characters other than common whitespace.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = strings.ToValidUTF8(s, "")
	r := make([]rune, 0, utf8.RuneCountInString(s))
	for _, ch := range s {
		if ch == '\n' || ch == '\r' || ch == '\t' {
			r = append(r, ch)
			continue
		}
		if ch < 0x20 || ch == utf8.RuneError {
			continue
		}
		r = append(r, ch)
	}
	return strings.TrimSpace(string(r))
}

// SplitAuthors splits a document-info author string on semicolons, "and"
// and commas between full names.
func SplitAuthors(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	sep := ","
	if strings.Contains(s, ";") {
		sep = ";"
	}
	s = strings.ReplaceAll(s, " and ", sep)
	var authors []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			authors = append(authors, part)
		}
	}
	return authors
}

// pdfDate turns a PDF date string such as "D:20210315120000Z" into
// "2021-03-15", or the bare year when that is all it carries.
func pdfDate(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "D:")
	digits := 0
	for digits < len(s) && digits < 8 && s[digits] >= '0' && s[digits] <= '9' {
		digits++
	}
	switch {
	case digits >= 8:
		return s[:4] + "-" + s[4:6] + "-" + s[6:8]
	case digits >= 4:
		return s[:4]
	default:
		return ""
	}
}
