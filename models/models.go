package models

// CollectionKind classifies a source bundle. A bundle is one kind or the other,
// decided by its first record.
type CollectionKind string

const (
	KindBibliography CollectionKind = "bibliography"
	KindPDF          CollectionKind = "pdf"
)

// SourceRecord is one bibliographic or PDF item before segmentation.
type SourceRecord struct {
	ID         string         `json:"id"`
	Kind       CollectionKind `json:"kind"`
	Title      string         `json:"title"`
	Authors    []string       `json:"authors,omitempty"`
	YearOrDate string         `json:"year_or_date,omitempty"`
	DOI        string         `json:"doi,omitempty"`

	// Bibliography records
	Abstract string `json:"abstract,omitempty"`
	FullText string `json:"full_text,omitempty"`

	// PDF records; Pages is keyed by 0-based page index
	SourceFile string         `json:"source_file,omitempty"`
	PageCount  int            `json:"page_count,omitempty"`
	Pages      map[int]string `json:"pages,omitempty"`
}

// Segmentable reports whether the record carries text the segmenter can use.
func (r SourceRecord) Segmentable() bool {
	switch r.Kind {
	case KindPDF:
		for _, text := range r.Pages {
			if text != "" {
				return true
			}
		}
		return false
	default:
		return r.FullText != ""
	}
}

// ChunkMetadata is the provenance copied onto every chunk.
// PageNumber is nil for bibliography chunks.
type ChunkMetadata struct {
	RecordID   string `json:"record_id"`
	Title      string `json:"title"`
	Authors    string `json:"authors,omitempty"`
	YearOrDate string `json:"year_or_date,omitempty"`
	DOI        string `json:"doi,omitempty"`
	SourceFile string `json:"source_file,omitempty"`
	PageNumber *int   `json:"page_number,omitempty"`
	TotalPages int    `json:"total_pages,omitempty"`
}

// Chunk is the unit that is embedded and indexed. Text is the windowed text
// used for embedding, CoreText the narrower excerpt shown when citing.
type Chunk struct {
	ID       string        `json:"chunk_id"`
	Text     string        `json:"text"`
	CoreText string        `json:"core_text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// Collection is a named, queryable index built from one study's bundle.
type Collection struct {
	Name       string         `json:"name"`
	StoreKey   string         `json:"store_key"`
	Kind       CollectionKind `json:"kind"`
	Chunks     []Chunk        `json:"-"`
	ChunkCount int            `json:"chunk_count"`
	// DocumentCount is the number of distinct source records that produced chunks
	DocumentCount int `json:"document_count"`
}

// IsPDF reports whether the collection was built from a PDF bundle.
func (c *Collection) IsPDF() bool {
	return c.Kind == KindPDF
}

// ScoredChunk is a chunk returned from similarity search.
type ScoredChunk struct {
	Chunk
	Score float32 `json:"score"`
}

// SourceInfo is the provenance of the top-ranked chunk for a query.
type SourceInfo struct {
	SourceFile string `json:"source_file,omitempty"`
	PageNumber *int   `json:"page_number,omitempty"`
	Title      string `json:"title"`
	Authors    string `json:"authors,omitempty"`
	Content    string `json:"content"`
}

// QueryResponse is the result of a free-form question against a collection.
type QueryResponse struct {
	AnswerText string      `json:"answer_text"`
	SourceInfo *SourceInfo `json:"source_info"`
}

// ExtractionResult is the variable extraction output for one document.
// Values holds every requested variable; absent values are nil.
type ExtractionResult struct {
	Document string         `json:"document"`
	Values   map[string]any `json:"values"`
}

// Table is an ordered column list with row-major values.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Study is a catalog entry mapping a human study name to its source bundle.
type Study struct {
	Name       string         `json:"name"`
	BundlePath string         `json:"bundle_path"`
	LibraryID  string         `json:"library_id,omitempty"`
	Kind       CollectionKind `json:"kind,omitempty"`
	CreatedAt  string         `json:"created_at,omitempty"`
}

// PDFText is what the PDF text provider returns for one file.
type PDFText struct {
	Title     string         `json:"title"`
	Authors   []string       `json:"authors,omitempty"`
	Date      string         `json:"date,omitempty"`
	PageCount int            `json:"page_count"`
	Pages     map[int]string `json:"pages"`
}

type DocumentData struct {
	Data []byte
	Type string
}
