package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/study-rag/internal/bundle"
	"github.com/Epistemic-Technology/study-rag/internal/index"
	"github.com/Epistemic-Technology/study-rag/internal/pdf"
	"github.com/Epistemic-Technology/study-rag/internal/storage"
	"github.com/Epistemic-Technology/study-rag/models"
)

// StudyResourceHandler serves study summaries and PDF page previews.
type StudyResourceHandler struct {
	store    storage.Store
	builder  *index.Builder
	renderer pdf.Renderer
}

// NewStudyResourceHandler creates a new study resource handler. builder may
// be nil, in which case summaries omit index state.
func NewStudyResourceHandler(store storage.Store, builder *index.Builder, renderer pdf.Renderer) *StudyResourceHandler {
	return &StudyResourceHandler{store: store, builder: builder, renderer: renderer}
}

// StudySummary is the JSON body of a study:// resource.
type StudySummary struct {
	Study      models.Study       `json:"study"`
	Records    []RecordSummary    `json:"records"`
	Collection *models.Collection `json:"collection,omitempty"`
	Resources  []string           `json:"resources"`
}

type RecordSummary struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Authors    []string `json:"authors,omitempty"`
	YearOrDate string   `json:"year_or_date,omitempty"`
	PageCount  int      `json:"page_count,omitempty"`
}

// ListResources returns one resource per registered study.
func (h *StudyResourceHandler) ListResources(ctx context.Context) ([]*mcp.Resource, error) {
	studies, err := h.store.ListStudies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list studies: %w", err)
	}

	resources := make([]*mcp.Resource, 0, len(studies))
	for _, s := range studies {
		resources = append(resources, &mcp.Resource{
			URI:         fmt.Sprintf("study://%s", url.PathEscape(s.Name)),
			Name:        s.Name,
			Description: fmt.Sprintf("%s study with its records", s.Kind),
			MIMEType:    "application/json",
		})
	}
	return resources, nil
}

// ReadResource reads a specific resource by URI:
// study://<name> or study://<name>/records/<id>/pages/<page>.
func (h *StudyResourceHandler) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	if !strings.HasPrefix(uri, "study://") {
		return nil, fmt.Errorf("invalid URI scheme, expected study://")
	}

	parts := strings.Split(strings.TrimPrefix(uri, "study://"), "/")
	for i, p := range parts {
		unescaped, err := url.PathUnescape(p)
		if err != nil {
			return nil, fmt.Errorf("invalid URI segment %q: %w", p, err)
		}
		parts[i] = unescaped
	}
	if parts[0] == "" {
		return nil, fmt.Errorf("invalid URI, missing study name")
	}

	switch {
	case len(parts) == 1:
		return h.readSummary(ctx, uri, parts[0])
	case len(parts) == 5 && parts[1] == "records" && parts[3] == "pages":
		page, err := strconv.Atoi(parts[4])
		if err != nil {
			return nil, fmt.Errorf("invalid page index: %s", parts[4])
		}
		return h.readPage(ctx, uri, parts[0], parts[2], page)
	default:
		return nil, fmt.Errorf("unknown resource type in URI: %s", uri)
	}
}

func (h *StudyResourceHandler) readSummary(ctx context.Context, uri, name string) (*mcp.ReadResourceResult, error) {
	study, records, err := h.load(ctx, name)
	if err != nil {
		return nil, err
	}

	summary := StudySummary{
		Study:     *study,
		Records:   make([]RecordSummary, 0, len(records)),
		Resources: storage.CalculateResourcePaths(study, records),
	}
	for _, r := range records {
		summary.Records = append(summary.Records, RecordSummary{
			ID:         r.ID,
			Title:      r.Title,
			Authors:    r.Authors,
			YearOrDate: r.YearOrDate,
			PageCount:  r.PageCount,
		})
	}
	if h.builder != nil {
		if col, ok := h.builder.Cached(name); ok {
			summary.Collection = col
		}
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal study summary: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

func (h *StudyResourceHandler) readPage(ctx context.Context, uri, name, recordID string, page int) (*mcp.ReadResourceResult, error) {
	_, records, err := h.load(ctx, name)
	if err != nil {
		return nil, err
	}

	var sourceFile string
	for _, r := range records {
		if r.ID == recordID && r.Kind == models.KindPDF {
			sourceFile = r.SourceFile
			break
		}
	}
	if sourceFile == "" {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	data, err := h.renderer.RenderPage(ctx, sourceFile, page)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d of %s: %w", page, recordID, err)
	}
	if data == nil {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/pdf",
			Blob:     data,
		}},
	}, nil
}

func (h *StudyResourceHandler) load(ctx context.Context, name string) (*models.Study, []models.SourceRecord, error) {
	study, err := h.store.ResolveStudy(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	_, records, err := bundle.Load(study.BundlePath)
	if err != nil {
		return nil, nil, err
	}
	return study, records, nil
}
