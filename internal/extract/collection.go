package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Epistemic-Technology/study-rag/models"
)

// Loader reads the full text of a document file.
type Loader interface {
	LoadText(ctx context.Context, path string) (string, error)
}

// Document is one input to collection extraction: either a file to load or
// inline text.
type Document struct {
	Name string `json:"name,omitempty"`
	Path string `json:"path,omitempty"`
	Text string `json:"text,omitempty"`
}

// Label identifies the document in results and tables.
func (d Document) Label() string {
	switch {
	case d.Name != "":
		return d.Name
	case d.Path != "":
		return filepath.Base(d.Path)
	default:
		return "document"
	}
}

// Omission is a document left out of a collection result.
type Omission struct {
	Document string `json:"document"`
	Error    string `json:"error"`
}

// Report summarises a collection run.
type Report struct {
	Requested int        `json:"requested"`
	Succeeded int        `json:"succeeded"`
	Omitted   []Omission `json:"omitted,omitempty"`
}

// ExtractDocument loads doc and extracts variables from its text.
func (x *Extractor) ExtractDocument(ctx context.Context, doc Document, variables []string) (*models.ExtractionResult, error) {
	text := doc.Text
	if text == "" {
		if doc.Path == "" {
			return nil, errors.New("document has neither text nor path")
		}
		if x.loader == nil {
			return nil, fmt.Errorf("no loader configured for %s", doc.Path)
		}
		loaded, err := x.loader.LoadText(ctx, doc.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", doc.Path, err)
		}
		text = loaded
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("document %s has no text", doc.Label())
	}

	result, err := x.Extract(ctx, text, variables)
	if err != nil {
		return nil, err
	}
	result.Document = doc.Label()
	return result, nil
}

// ExtractCollection extracts variables from each document in order. A
// document that fails is logged and omitted; the rest still succeed. Only
// cancellation of ctx stops the run early.
func (x *Extractor) ExtractCollection(ctx context.Context, docs []Document, variables []string) ([]*models.ExtractionResult, Report, error) {
	report := Report{Requested: len(docs)}
	if len(NormalizeVariables(variables)) == 0 {
		return nil, report, ErrNoVariables
	}

	results := make([]*models.ExtractionResult, 0, len(docs))
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return results, report, err
		}

		x.log.Info("Extracting document %d/%d: %s", i+1, len(docs), doc.Label())
		result, err := x.ExtractDocument(ctx, doc, variables)
		if err != nil {
			x.log.Error("Omitting %s from extraction: %v", doc.Label(), err)
			report.Omitted = append(report.Omitted, Omission{Document: doc.Label(), Error: err.Error()})
			continue
		}
		results = append(results, result)
	}

	report.Succeeded = len(results)
	if len(report.Omitted) > 0 {
		x.log.Warn("Extraction omitted %d of %d documents", len(report.Omitted), len(docs))
	}
	return results, report, nil
}
