package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Epistemic-Technology/study-rag/internal/logger"
)

// Renderer produces a preview of one page of a source file. Pages outside
// [0, page_count) yield nil bytes and no error.
type Renderer interface {
	RenderPage(ctx context.Context, sourceFile string, page int) ([]byte, error)
}

// PreviewOutOfRangeError reports a page index outside the document.
type PreviewOutOfRangeError struct {
	Page      int
	PageCount int
}

func (e *PreviewOutOfRangeError) Error() string {
	return fmt.Sprintf("page %d out of range [0, %d)", e.Page, e.PageCount)
}

// PageRenderer previews a page as a standalone single-page PDF. The split
// pages of recently previewed files are kept until the file changes.
type PageRenderer struct {
	log logger.Logger

	mu    sync.Mutex
	split map[string]splitFile
	order []string
}

type splitFile struct {
	modTime time.Time
	pages   [][]byte
}

// maxSplitFiles bounds how many split documents a PageRenderer keeps.
const maxSplitFiles = 8

func NewPageRenderer(log logger.Logger) *PageRenderer {
	return &PageRenderer{log: log, split: make(map[string]splitFile)}
}

// RenderPage returns page (0-based) of sourceFile as single-page PDF bytes.
func (r *PageRenderer) RenderPage(ctx context.Context, sourceFile string, page int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pages, err := r.pages(sourceFile)
	if err != nil {
		return nil, err
	}

	out, err := pageAt(pages, page)
	if err != nil {
		var rangeErr *PreviewOutOfRangeError
		if errors.As(err, &rangeErr) {
			r.log.Debug("No preview for %s: %v", sourceFile, err)
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

func (r *PageRenderer) pages(sourceFile string) ([][]byte, error) {
	info, err := os.Stat(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sourceFile, err)
	}

	r.mu.Lock()
	cached, ok := r.split[sourceFile]
	r.mu.Unlock()
	if ok && cached.modTime.Equal(info.ModTime()) {
		return cached.pages, nil
	}

	data, err := os.ReadFile(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sourceFile, err)
	}
	pages, err := SplitPdf(data)
	if err != nil {
		return nil, fmt.Errorf("failed to split %s: %w", sourceFile, err)
	}
	r.log.Debug("Split %s into %d pages", sourceFile, len(pages))

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.split[sourceFile]; !ok {
		r.order = append(r.order, sourceFile)
	}
	r.split[sourceFile] = splitFile{modTime: info.ModTime(), pages: pages}
	for len(r.order) > maxSplitFiles {
		delete(r.split, r.order[0])
		r.order = r.order[1:]
	}
	return pages, nil
}

func pageAt(pages [][]byte, page int) ([]byte, error) {
	if page < 0 || page >= len(pages) {
		return nil, &PreviewOutOfRangeError{Page: page, PageCount: len(pages)}
	}
	return pages[page], nil
}

// SplitPdf splits a PDF document into single-page documents.
func SplitPdf(data []byte) ([][]byte, error) {
	var pages [][]byte
	pdfContext, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return pages, err
	}
	for pageNum := 1; pageNum <= pdfContext.PageCount; pageNum++ {
		pageReader, err := api.ExtractPage(pdfContext, pageNum)
		if err != nil {
			return pages, err
		}
		pageData, err := io.ReadAll(pageReader)
		if err != nil {
			return pages, err
		}
		pages = append(pages, pageData)
	}
	return pages, nil
}

// PageCount returns the number of pages of the PDF at path.
func PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return api.PageCount(f, nil)
}
