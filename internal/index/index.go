// Package index builds and caches one vector collection per study.
//
// A study is built at most once per process: concurrent requests for the
// same study share a single build, and failed builds are never cached.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/Epistemic-Technology/study-rag/internal/bundle"
	"github.com/Epistemic-Technology/study-rag/internal/llm"
	"github.com/Epistemic-Technology/study-rag/internal/logger"
	"github.com/Epistemic-Technology/study-rag/internal/segment"
	"github.com/Epistemic-Technology/study-rag/internal/vectorstore"
	"github.com/Epistemic-Technology/study-rag/models"
)

const (
	defaultBatchSize  = 64
	defaultMaxWorkers = 4
)

// InvalidStudyError is returned when a study cannot be resolved or its bundle
// yields nothing to index.
type InvalidStudyError struct {
	Study  string
	Reason string
	Err    error
}

func (e *InvalidStudyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid study %q: %s: %v", e.Study, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid study %q: %s", e.Study, e.Reason)
}

func (e *InvalidStudyError) Unwrap() error { return e.Err }

// Catalog resolves a study name to its catalog entry.
type Catalog interface {
	ResolveStudy(ctx context.Context, name string) (*models.Study, error)
}

// Builder owns the process-wide study -> Collection cache.
type Builder struct {
	store     vectorstore.Store
	embedder  llm.Embedder
	segmenter *segment.Segmenter
	catalog   Catalog
	log       logger.Logger

	BatchSize  int
	MaxWorkers int

	mu     sync.RWMutex
	cache  map[string]*models.Collection
	group  singleflight.Group
	passes atomic.Int64
}

// NewBuilder wires a Builder. catalog may be nil when only GetOrBuild is used.
func NewBuilder(store vectorstore.Store, embedder llm.Embedder, segmenter *segment.Segmenter, catalog Catalog, log logger.Logger) *Builder {
	return &Builder{
		store:      store,
		embedder:   embedder,
		segmenter:  segmenter,
		catalog:    catalog,
		log:        log.With("index"),
		BatchSize:  defaultBatchSize,
		MaxWorkers: defaultMaxWorkers,
		cache:      make(map[string]*models.Collection),
	}
}

// EmbeddingPasses is the number of full embedding passes performed so far.
func (b *Builder) EmbeddingPasses() int {
	return int(b.passes.Load())
}

// Cached returns the cached collection for study, if any.
func (b *Builder) Cached(study string) (*models.Collection, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	col, ok := b.cache[study]
	return col, ok
}

// CachedStudies lists the studies currently held in the cache.
func (b *Builder) CachedStudies() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.cache))
	for name := range b.cache {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve looks the study up in the catalog and returns its collection,
// building it on first use.
func (b *Builder) Resolve(ctx context.Context, study string) (*models.Collection, error) {
	if col, ok := b.Cached(study); ok {
		return col, nil
	}
	if b.catalog == nil {
		return nil, &InvalidStudyError{Study: study, Reason: "no catalog configured"}
	}

	entry, err := b.catalog.ResolveStudy(ctx, study)
	if err != nil {
		return nil, &InvalidStudyError{Study: study, Reason: "not found in catalog", Err: err}
	}
	return b.GetOrBuild(ctx, study, entry.BundlePath)
}

// GetOrBuild returns the collection for study, building it from bundlePath on
// a cache miss. A cached collection is returned as-is even if the bundle has
// since changed; use Invalidate to force a rebuild.
//
// If ctx ends first, GetOrBuild returns without the collection while the build
// keeps running and still fills the cache.
func (b *Builder) GetOrBuild(ctx context.Context, study, bundlePath string) (*models.Collection, error) {
	if col, ok := b.Cached(study); ok {
		b.log.Debug("Cache hit for study %q", study)
		return col, nil
	}

	ch := b.group.DoChan(study, func() (any, error) {
		if col, ok := b.Cached(study); ok {
			return col, nil
		}
		b.log.Info("Cache miss for study %q, building from %s", study, bundlePath)

		// The build outlives any single caller; others may be waiting on it.
		col, err := b.build(context.WithoutCancel(ctx), study, bundlePath)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		b.cache[study] = col
		b.mu.Unlock()
		return col, nil
	})

	select {
	case <-ctx.Done():
		b.log.Warn("Stopped waiting for study %q: %v", study, ctx.Err())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &llm.UpstreamTimeoutError{Service: "index", Err: ctx.Err()}
		}
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			b.log.Error("Failed to build study %q: %v", study, res.Err)
			return nil, res.Err
		}
		if res.Shared {
			b.log.Debug("Shared in-flight build for study %q", study)
		}
		return res.Val.(*models.Collection), nil
	}
}

// Invalidate drops the cached collection and its stored vectors so the next
// request rebuilds from the bundle.
func (b *Builder) Invalidate(ctx context.Context, study string) error {
	b.mu.Lock()
	delete(b.cache, study)
	b.mu.Unlock()
	b.group.Forget(study)

	if err := b.store.Delete(ctx, vectorstore.SanitizeKey(study)); err != nil {
		return llm.ClassifyError("vector-store", err)
	}
	b.log.Info("Invalidated study %q", study)
	return nil
}

func (b *Builder) build(ctx context.Context, study, bundlePath string) (*models.Collection, error) {
	kind, records, err := bundle.Load(bundlePath)
	if err != nil {
		return nil, &InvalidStudyError{Study: study, Reason: "bundle could not be loaded", Err: err}
	}

	chunks := b.segmenter.Segment(records, kind)
	if len(chunks) == 0 {
		return nil, &InvalidStudyError{Study: study, Reason: "bundle has no segmentable records"}
	}

	col := &models.Collection{
		Name:          study,
		StoreKey:      vectorstore.SanitizeKey(study),
		Kind:          kind,
		Chunks:        chunks,
		ChunkCount:    len(chunks),
		DocumentCount: countDocuments(chunks),
	}

	reuse, err := b.store.Holds(ctx, col.StoreKey, chunks)
	if err != nil {
		return nil, llm.ClassifyError("vector-store", err)
	}
	if reuse {
		b.log.Info("Reusing stored vectors for study %q (%d chunks)", study, len(chunks))
		return col, nil
	}

	// Drop whatever an earlier version of the bundle left under this key.
	if err := b.store.Delete(ctx, col.StoreKey); err != nil {
		return nil, llm.ClassifyError("vector-store", err)
	}

	entries, err := b.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if err := b.store.Upsert(ctx, col.StoreKey, entries); err != nil {
		return nil, llm.ClassifyError("vector-store", err)
	}

	b.log.Info("Indexed study %q: %d chunks from %d documents (%s)", study, col.ChunkCount, col.DocumentCount, kind)
	return col, nil
}

// embed runs one embedding pass over every chunk's window text.
func (b *Builder) embed(ctx context.Context, chunks []models.Chunk) ([]vectorstore.Entry, error) {
	b.passes.Add(1)

	size := b.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	var batches [][]models.Chunk
	for start := 0; start < len(chunks); start += size {
		batches = append(batches, chunks[start:min(start+size, len(chunks))])
	}
	b.log.Debug("Embedding %d chunks in %d batches", len(chunks), len(batches))

	results, err := llm.ParallelProcess(ctx, batches, b.MaxWorkers, func(ctx context.Context, _ int, batch []models.Chunk) ([]vectorstore.Entry, error) {
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := b.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedding batch returned %d vectors for %d chunks", len(vectors), len(batch))
		}
		entries := make([]vectorstore.Entry, len(batch))
		for i, c := range batch {
			entries[i] = vectorstore.Entry{Chunk: c, Vector: vectors[i]}
		}
		return entries, nil
	})
	if err != nil {
		return nil, llm.ClassifyError("embedding", err)
	}

	entries := make([]vectorstore.Entry, 0, len(chunks))
	for _, r := range results {
		entries = append(entries, r...)
	}
	return entries, nil
}

func countDocuments(chunks []models.Chunk) int {
	seen := make(map[string]struct{})
	for _, c := range chunks {
		seen[c.Metadata.RecordID] = struct{}{}
	}
	return len(seen)
}
