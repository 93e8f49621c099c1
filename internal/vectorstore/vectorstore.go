// Package vectorstore persists embedded chunks per study and answers
// similarity queries against them.
package vectorstore

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/philippgille/chromem-go"

	"github.com/Epistemic-Technology/study-rag/internal/logger"
	"github.com/Epistemic-Technology/study-rag/models"
)

// Entry is one chunk with its embedding.
type Entry struct {
	Chunk  models.Chunk
	Vector []float32
}

// Store is the vector store contract used by the index builder and query engine.
type Store interface {
	// Upsert inserts or replaces entries in the collection named key.
	Upsert(ctx context.Context, key string, entries []Entry) error

	// Query returns up to topK chunks ordered by descending similarity.
	Query(ctx context.Context, key string, vector []float32, topK int) ([]models.ScoredChunk, error)

	// Count returns the number of stored chunks for key (0 if the collection does not exist).
	Count(ctx context.Context, key string) (int, error)

	// Holds reports whether the collection stores exactly these chunks with
	// unchanged text and metadata.
	Holds(ctx context.Context, key string, chunks []models.Chunk) (bool, error)

	// Delete drops the collection named key.
	Delete(ctx context.Context, key string) error
}

// ChromemStore implements Store on top of chromem-go.
type ChromemStore struct {
	db  *chromem.DB
	log logger.Logger
}

// NewPersistentStore opens (or creates) a chromem database under dir.
func NewPersistentStore(dir string, compress bool, log logger.Logger) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(dir, compress)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database at %s: %w", dir, err)
	}
	log.Info("Opened vector database at %s (%d collections)", dir, len(db.ListCollections()))
	return &ChromemStore{db: db, log: log}, nil
}

// NewMemoryStore returns a store that lives only for the process.
func NewMemoryStore(log logger.Logger) *ChromemStore {
	return &ChromemStore{db: chromem.NewDB(), log: log}
}

// SanitizeKey maps a study name to a storage-safe collection key. A short hash
// of the original name keeps names that normalise identically apart.
func SanitizeKey(study string) string {
	slug := Slug(study, 48)
	if slug == "" {
		slug = "study"
	}

	h := fnv.New32a()
	h.Write([]byte(study))
	return fmt.Sprintf("%s_%08x", slug, h.Sum32())
}

// Slug lowercases s and collapses every run of non-alphanumeric ASCII into a
// single underscore, trimming the result to at most maxLen bytes.
func Slug(s string, maxLen int) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "_")
	if maxLen > 0 && len(slug) > maxLen {
		slug = strings.TrimSuffix(slug[:maxLen], "_")
	}
	return slug
}

func (s *ChromemStore) collection(key string) (*chromem.Collection, error) {
	col, err := s.db.GetOrCreateCollection(key, map[string]string{"hnsw:space": "cosine"}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", key, err)
	}
	return col, nil
}

func (s *ChromemStore) Upsert(ctx context.Context, key string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	col, err := s.collection(key)
	if err != nil {
		return err
	}

	ids := make([]string, len(entries))
	vectors := make([][]float32, len(entries))
	metadatas := make([]map[string]string, len(entries))
	contents := make([]string, len(entries))
	for i, e := range entries {
		if len(e.Vector) == 0 {
			return fmt.Errorf("entry %s has no embedding", e.Chunk.ID)
		}
		ids[i] = e.Chunk.ID
		vectors[i] = e.Vector
		metadatas[i] = encodeMetadata(e.Chunk)
		contents[i] = e.Chunk.Text
	}

	if err := col.Add(ctx, ids, vectors, metadatas, contents); err != nil {
		return fmt.Errorf("failed to add %d documents to %s: %w", len(entries), key, err)
	}
	s.log.Debug("Upserted %d chunks into %s", len(entries), key)
	return nil
}

func (s *ChromemStore) Query(ctx context.Context, key string, vector []float32, topK int) ([]models.ScoredChunk, error) {
	col := s.db.GetCollection(key, nil)
	if col == nil || topK <= 0 {
		return []models.ScoredChunk{}, nil
	}
	n := min(topK, col.Count())
	if n == 0 {
		return []models.ScoredChunk{}, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", key, err)
	}

	out := make([]models.ScoredChunk, 0, len(results))
	for _, r := range results {
		out = append(out, models.ScoredChunk{
			Chunk: decodeChunk(r.ID, r.Content, r.Metadata),
			Score: r.Similarity,
		})
	}
	return out, nil
}

func (s *ChromemStore) Count(ctx context.Context, key string) (int, error) {
	col := s.db.GetCollection(key, nil)
	if col == nil {
		return 0, nil
	}
	return col.Count(), nil
}

func (s *ChromemStore) Holds(ctx context.Context, key string, chunks []models.Chunk) (bool, error) {
	col := s.db.GetCollection(key, nil)
	if col == nil {
		return false, nil
	}
	if col.Count() != len(chunks) {
		return false, nil
	}
	for _, c := range chunks {
		doc, err := col.GetByID(ctx, c.ID)
		if err != nil {
			return false, nil
		}
		if doc.Metadata[contentHashKey] != ContentHash(c) {
			s.log.Debug("Chunk %s in %s changed since it was stored", c.ID, key)
			return false, nil
		}
	}
	return true, nil
}

func (s *ChromemStore) Delete(ctx context.Context, key string) error {
	if s.db.GetCollection(key, nil) == nil {
		return nil
	}
	if err := s.db.DeleteCollection(key); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", key, err)
	}
	return nil
}

const contentHashKey = "content_hash"

// ContentHash fingerprints everything a chunk stores: its text and metadata.
func ContentHash(c models.Chunk) string {
	m := chunkMetadata(c)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := fnv.New64a()
	h.Write([]byte(c.Text))
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(m[k]))
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

func encodeMetadata(c models.Chunk) map[string]string {
	m := chunkMetadata(c)
	m[contentHashKey] = ContentHash(c)
	return m
}

// chromem metadata values are strings only.
func chunkMetadata(c models.Chunk) map[string]string {
	m := map[string]string{
		"record_id": c.Metadata.RecordID,
		"title":     c.Metadata.Title,
		"core_text": c.CoreText,
	}
	if c.Metadata.Authors != "" {
		m["authors"] = c.Metadata.Authors
	}
	if c.Metadata.YearOrDate != "" {
		m["year_or_date"] = c.Metadata.YearOrDate
	}
	if c.Metadata.DOI != "" {
		m["doi"] = c.Metadata.DOI
	}
	if c.Metadata.SourceFile != "" {
		m["source_file"] = c.Metadata.SourceFile
	}
	if c.Metadata.PageNumber != nil {
		m["page_number"] = strconv.Itoa(*c.Metadata.PageNumber)
	}
	if c.Metadata.TotalPages > 0 {
		m["total_pages"] = strconv.Itoa(c.Metadata.TotalPages)
	}
	return m
}

func decodeChunk(id, content string, m map[string]string) models.Chunk {
	c := models.Chunk{
		ID:       id,
		Text:     content,
		CoreText: m["core_text"],
		Metadata: models.ChunkMetadata{
			RecordID:   m["record_id"],
			Title:      m["title"],
			Authors:    m["authors"],
			YearOrDate: m["year_or_date"],
			DOI:        m["doi"],
			SourceFile: m["source_file"],
		},
	}
	if v, ok := m["page_number"]; ok {
		if page, err := strconv.Atoi(v); err == nil {
			c.Metadata.PageNumber = &page
		}
	}
	if v, ok := m["total_pages"]; ok {
		c.Metadata.TotalPages, _ = strconv.Atoi(v)
	}
	if c.CoreText == "" {
		c.CoreText = content
	}
	return c
}

// Ensure ChromemStore implements Store interface
var _ Store = (*ChromemStore)(nil)
