// Package bundle reads and writes source bundles: JSON arrays holding either
// bibliographic records or PDF-extracted records for one study.
package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Epistemic-Technology/study-rag/models"
)

// MalformedBundleError reports a bundle that does not parse as an array of
// records or has a record without a title.
type MalformedBundleError struct {
	Path   string
	Reason string
	Err    error
}

func (e *MalformedBundleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed bundle %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed bundle %s: %s", e.Path, e.Reason)
}

func (e *MalformedBundleError) Unwrap() error { return e.Err }

// Load reads the bundle at path and returns its kind and normalized records.
func Load(path string) (models.CollectionKind, []models.SourceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, &MalformedBundleError{Path: path, Reason: "unreadable", Err: err}
	}
	return Parse(data, path)
}

// Parse decodes bundle bytes. path is used only in error messages.
// The first record decides the kind of the whole bundle.
func Parse(data []byte, path string) (models.CollectionKind, []models.SourceRecord, error) {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", nil, &MalformedBundleError{Path: path, Reason: "not a JSON array of objects", Err: err}
	}

	if len(raw) == 0 {
		return models.KindBibliography, []models.SourceRecord{}, nil
	}

	kind := Classify(raw[0])

	records := make([]models.SourceRecord, 0, len(raw))
	for i, fields := range raw {
		rec, err := decodeRecord(fields, kind, i)
		if err != nil {
			return "", nil, &MalformedBundleError{Path: path, Reason: fmt.Sprintf("record %d", i), Err: err}
		}
		records = append(records, rec)
	}
	return kind, records, nil
}

// Classify returns KindPDF when the record has both pages and source_file.
func Classify(fields map[string]json.RawMessage) models.CollectionKind {
	_, hasPages := fields["pages"]
	_, hasSource := fields["source_file"]
	if hasPages && hasSource {
		return models.KindPDF
	}
	return models.KindBibliography
}

func decodeRecord(fields map[string]json.RawMessage, kind models.CollectionKind, index int) (models.SourceRecord, error) {
	rec := models.SourceRecord{Kind: kind}

	title, err := stringField(fields, "title")
	if err != nil {
		return rec, err
	}
	rec.Title = strings.TrimSpace(title)
	if rec.Title == "" {
		return rec, fmt.Errorf("missing required field title")
	}

	if rec.ID, err = firstStringField(fields, "id", "key"); err != nil {
		return rec, err
	}
	if rec.ID == "" {
		rec.ID = "rec-" + strconv.Itoa(index)
	}

	if rec.Authors, err = authorsField(fields["authors"]); err != nil {
		return rec, err
	}
	if rec.DOI, err = stringField(fields, "doi"); err != nil {
		return rec, err
	}
	if rec.YearOrDate, err = firstStringField(fields, "year", "date", "year_or_date"); err != nil {
		return rec, err
	}

	switch kind {
	case models.KindPDF:
		if rec.SourceFile, err = stringField(fields, "source_file"); err != nil {
			return rec, err
		}
		if rec.Pages, err = pagesField(fields["pages"]); err != nil {
			return rec, err
		}
		if raw, ok := fields["page_count"]; ok {
			if err := json.Unmarshal(raw, &rec.PageCount); err != nil {
				return rec, fmt.Errorf("invalid page_count: %w", err)
			}
		}
		if rec.PageCount == 0 {
			rec.PageCount = len(rec.Pages)
		}
	default:
		if rec.Abstract, err = stringField(fields, "abstract"); err != nil {
			return rec, err
		}
		if rec.FullText, err = stringField(fields, "full_text"); err != nil {
			return rec, err
		}
	}

	return rec, nil
}

// stringField decodes a string field, tolerating absence, null and numbers.
func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("field %s is not a string", name)
}

// firstStringField returns the first non-empty value among names.
func firstStringField(fields map[string]json.RawMessage, names ...string) (string, error) {
	for _, name := range names {
		v, err := stringField(fields, name)
		if err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
	}
	return "", nil
}

// authorsField accepts an array of names or a single "A; B" string.
func authorsField(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return cleanNames(list), nil
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		return cleanNames(strings.Split(joined, ";")), nil
	}
	return nil, fmt.Errorf("field authors is neither a list nor a string")
}

func cleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// pagesField normalizes {"0": "text"}, {"0": {"text": "..."}} and [..] into
// an integer-keyed map.
func pagesField(raw json.RawMessage) (map[int]string, error) {
	pages := make(map[int]string)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return pages, nil
	}

	var byKey map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byKey); err == nil {
		for key, value := range byKey {
			idx, err := strconv.Atoi(strings.TrimSpace(key))
			if err != nil {
				return nil, fmt.Errorf("page key %q is not an integer", key)
			}
			text, err := pageText(value)
			if err != nil {
				return nil, fmt.Errorf("page %d: %w", idx, err)
			}
			pages[idx] = text
		}
		return pages, nil
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		for idx, value := range list {
			text, err := pageText(value)
			if err != nil {
				return nil, fmt.Errorf("page %d: %w", idx, err)
			}
			pages[idx] = text
		}
		return pages, nil
	}

	return nil, fmt.Errorf("field pages is neither an object nor a list")
}

func pageText(raw json.RawMessage) (string, error) {
	if bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Text, nil
	}
	return "", fmt.Errorf("page value is neither a string nor {text}")
}

// bibliographyEntry is the on-disk shape of a bibliography record.
type bibliographyEntry struct {
	ID       string   `json:"id,omitempty"`
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Abstract string   `json:"abstract,omitempty"`
	FullText string   `json:"full_text,omitempty"`
	DOI      string   `json:"doi,omitempty"`
	Year     string   `json:"year,omitempty"`
}

// pdfEntry is the on-disk shape of a PDF record.
type pdfEntry struct {
	ID         string            `json:"id,omitempty"`
	Title      string            `json:"title"`
	Authors    []string          `json:"authors"`
	Date       string            `json:"date,omitempty"`
	Abstract   string            `json:"abstract,omitempty"`
	SourceFile string            `json:"source_file"`
	PageCount  int               `json:"page_count"`
	Pages      map[string]string `json:"pages"`
}

// Write serializes records into the bundle format matching kind and writes
// them to path, creating parent directories.
func Write(path string, kind models.CollectionKind, records []models.SourceRecord) error {
	var entries any
	switch kind {
	case models.KindPDF:
		list := make([]pdfEntry, 0, len(records))
		for _, r := range records {
			pages := make(map[string]string, len(r.Pages))
			for idx, text := range r.Pages {
				pages[strconv.Itoa(idx)] = text
			}
			list = append(list, pdfEntry{
				ID:         r.ID,
				Title:      r.Title,
				Authors:    nonNil(r.Authors),
				Date:       r.YearOrDate,
				Abstract:   r.Abstract,
				SourceFile: r.SourceFile,
				PageCount:  r.PageCount,
				Pages:      pages,
			})
		}
		entries = list
	default:
		list := make([]bibliographyEntry, 0, len(records))
		for _, r := range records {
			list = append(list, bibliographyEntry{
				ID:       r.ID,
				Title:    r.Title,
				Authors:  nonNil(r.Authors),
				Abstract: r.Abstract,
				FullText: r.FullText,
				DOI:      r.DOI,
				Year:     r.YearOrDate,
			})
		}
		entries = list
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal bundle: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create bundle directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	return nil
}

// SortedPages returns the page indices of a record in ascending order.
func SortedPages(r models.SourceRecord) []int {
	idx := make([]int, 0, len(r.Pages))
	for i := range r.Pages {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
