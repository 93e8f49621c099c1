package tools

import (
	"context"
	"fmt"

	"github.com/Epistemic-Technology/study-rag/internal/bundle"
	"github.com/Epistemic-Technology/study-rag/internal/config"
	"github.com/Epistemic-Technology/study-rag/internal/extract"
	"github.com/Epistemic-Technology/study-rag/internal/index"
	"github.com/Epistemic-Technology/study-rag/internal/logger"
	"github.com/Epistemic-Technology/study-rag/internal/pdf"
	"github.com/Epistemic-Technology/study-rag/internal/query"
	"github.com/Epistemic-Technology/study-rag/internal/storage"
	"github.com/Epistemic-Technology/study-rag/models"
)

// Deps holds the services shared by the tool handlers.
type Deps struct {
	Config    *config.Config
	Catalog   storage.Store
	Builder   *index.Builder
	Engine    *query.Engine
	Extractor *extract.Extractor
	Renderer  pdf.Renderer
	Log       logger.Logger
}

func (d *Deps) zoteroCredentials() (apiKey, libraryID string, err error) {
	apiKey = d.Config.Zotero.APIKey
	if apiKey == "" {
		return "", "", fmt.Errorf("ZOTERO_API_KEY environment variable not set")
	}
	libraryID = d.Config.Zotero.LibraryID
	if libraryID == "" {
		return "", "", fmt.Errorf("ZOTERO_LIBRARY_ID environment variable not set")
	}
	return apiKey, libraryID, nil
}

// studyRecords resolves a study through the catalog and loads its bundle.
func (d *Deps) studyRecords(ctx context.Context, name string) (*models.Study, models.CollectionKind, []models.SourceRecord, error) {
	study, err := d.Catalog.ResolveStudy(ctx, name)
	if err != nil {
		return nil, "", nil, err
	}
	kind, records, err := bundle.Load(study.BundlePath)
	if err != nil {
		return nil, "", nil, err
	}
	return study, kind, records, nil
}

// buildIndex builds the index of a newly written study and reports the
// outcome without failing the surrounding operation.
func (d *Deps) buildIndex(ctx context.Context, study models.Study) (int, string) {
	col, err := d.Builder.GetOrBuild(ctx, study.Name, study.BundlePath)
	if err != nil {
		d.Log.Error("Failed to build index for %s: %v", study.Name, err)
		return 0, query.ErrorMessage(err)
	}
	return col.ChunkCount, ""
}

func (d *Deps) studyResources(ctx context.Context, name string) []string {
	study, _, records, err := d.studyRecords(ctx, name)
	if err != nil {
		d.Log.Warn("Failed to list resources for %s: %v", name, err)
		return nil
	}
	return storage.CalculateResourcePaths(study, records)
}
