package documents

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/Epistemic-Technology/zotero/zotero"
)

// DetectDocumentType determines the type of document from the raw data
// by checking magic bytes/headers
func DetectDocumentType(data []byte) string {
	if len(data) == 0 {
		return "unknown"
	}

	// For very short data, check if it's text
	if len(data) < 4 {
		if isLikelyText(data) {
			return "txt"
		}
		return "unknown"
	}

	// PDF: starts with %PDF
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return "pdf"
	}

	// HTML: check for common HTML markers
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("<!DOCTYPE html")) ||
		bytes.HasPrefix(trimmed, []byte("<!doctype html")) ||
		bytes.HasPrefix(trimmed, []byte("<html")) ||
		bytes.HasPrefix(trimmed, []byte("<HTML")) {
		return "html"
	}

	// ZIP family: DOCX, Zotero web snapshots, anything else
	if data[0] == 0x50 && data[1] == 0x4B &&
		(data[2] == 0x03 || data[2] == 0x05 || data[2] == 0x07) {
		if bytes.Contains(data[:min(len(data), 1024)], []byte("word/")) {
			return "docx"
		}
		if isZoteroSnapshotZip(data) {
			return "zotero-snapshot"
		}
		return "zip"
	}

	// Plain text / Markdown (if it's valid UTF-8 and has no binary characters)
	if isLikelyText(data) {
		// Simple markdown detection: look for common markdown patterns
		if bytes.Contains(data[:min(len(data), 1024)], []byte("# ")) ||
			bytes.Contains(data[:min(len(data), 1024)], []byte("## ")) ||
			bytes.Contains(data[:min(len(data), 1024)], []byte("```")) {
			return "md"
		}
		return "txt"
	}

	return "unknown"
}

// isLikelyText checks if the data is likely plain text (no binary content)
func isLikelyText(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	sampleSize := min(len(data), 512)
	sample := data[:sampleSize]

	// Check for null bytes (strong indicator of binary content)
	if bytes.Contains(sample, []byte{0}) {
		return false
	}

	// Count printable vs non-printable characters
	printable := 0
	for _, b := range sample {
		if (b >= 32 && b <= 126) || b == '\n' || b == '\r' || b == '\t' {
			printable++
		}
	}

	// If more than 90% is printable, likely text
	return float64(printable)/float64(len(sample)) > 0.9
}

func isHTMLName(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return ext == ".html" || ext == ".htm"
}

// isZoteroSnapshotZip reports whether data is a ZIP archive holding at least
// one HTML page, which is how Zotero serves saved web snapshots.
func isZoteroSnapshotZip(data []byte) bool {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if isHTMLName(f.Name) {
			return true
		}
	}
	return false
}

// ExtractHTMLFromZip returns the main HTML page of a snapshot archive,
// preferring index.html.
func ExtractHTMLFromZip(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open ZIP archive: %w", err)
	}

	var candidates []*zip.File
	for _, f := range zr.File {
		if isHTMLName(f.Name) {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return nil, errors.New("no HTML file found in ZIP archive")
	}

	sort.Slice(candidates, func(i, j int) bool {
		iIndex := path.Base(candidates[i].Name) == "index.html"
		jIndex := path.Base(candidates[j].Name) == "index.html"
		if iIndex != jIndex {
			return iIndex
		}
		return candidates[i].Name < candidates[j].Name
	})

	rc, err := candidates[0].Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", candidates[0].Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// GetFromURL fetches document data from a URL
func GetFromURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// GetFromZotero fetches an attachment file from a Zotero library
func GetFromZotero(ctx context.Context, zoteroID string, apiKey string, libraryID string) ([]byte, error) {
	client := zotero.NewClient(libraryID, zotero.LibraryTypeUser, zotero.WithAPIKey(apiKey))
	data, err := client.File(ctx, zoteroID)
	if err != nil {
		return nil, fmt.Errorf("failed to download Zotero attachment %s: %w", zoteroID, err)
	}
	return data, nil
}
