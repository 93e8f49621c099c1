package tools

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/study-rag/internal/bundle"
	"github.com/Epistemic-Technology/study-rag/internal/storage"
	"github.com/Epistemic-Technology/study-rag/models"
)

type StudyRegisterQuery struct {
	Name       string `json:"name,omitempty"`        // Study name
	BundlePath string `json:"bundle_path,omitempty"` // Path to a bibliography or PDF bundle (JSON)
	LibraryID  string `json:"library_id,omitempty"`  // Zotero library the study came from (optional)
	StudyFiles string `json:"study_files,omitempty"` // Path to a JSON map of study name -> bundle path to import instead
	Build      bool   `json:"build,omitempty"`       // Build the index right away
}

type StudyRegisterResponse struct {
	Study      *models.Study `json:"study,omitempty"`
	Records    int           `json:"records,omitempty"`
	Imported   int           `json:"imported,omitempty"`
	Chunks     int           `json:"chunks,omitempty"`
	BuildError string        `json:"build_error,omitempty"`
	Resources  []string      `json:"resources,omitempty"`
}

func StudyRegisterTool() *mcp.Tool {
	inputschema, err := jsonschema.For[StudyRegisterQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "study-register",
		Description: "Register a study in the catalog from an existing source bundle, or import a study_files.json map of study names to bundle paths. Replaces any study with the same name. Set build to index the study immediately.",
		InputSchema: inputschema,
	}
}

func StudyRegisterToolHandler(ctx context.Context, req *mcp.CallToolRequest, query StudyRegisterQuery, deps *Deps) (*mcp.CallToolResult, *StudyRegisterResponse, error) {
	deps.Log.Info("study-register tool called")

	if query.StudyFiles != "" {
		n, err := deps.Catalog.ImportStudyFiles(ctx, query.StudyFiles, query.LibraryID)
		if err != nil {
			return nil, nil, err
		}
		deps.Log.Info("Imported %d studies from %s", n, query.StudyFiles)
		return nil, &StudyRegisterResponse{Imported: n}, nil
	}

	if query.Name == "" || query.BundlePath == "" {
		return nil, nil, errors.New("name and bundle_path are required")
	}
	bundlePath, err := filepath.Abs(query.BundlePath)
	if err != nil {
		return nil, nil, err
	}

	kind, records, err := bundle.Load(bundlePath)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot register %s: %w", query.Name, err)
	}

	study := models.Study{
		Name:       query.Name,
		BundlePath: bundlePath,
		LibraryID:  query.LibraryID,
		Kind:       kind,
	}
	if err := deps.Catalog.RegisterStudy(ctx, study); err != nil {
		return nil, nil, err
	}
	// A re-registered study must not keep serving its old index
	if _, cached := deps.Builder.Cached(study.Name); cached {
		if err := deps.Builder.Invalidate(ctx, study.Name); err != nil {
			deps.Log.Warn("Failed to drop previous index for %s: %v", study.Name, err)
		}
	}

	response := &StudyRegisterResponse{
		Study:     &study,
		Records:   len(records),
		Resources: storage.CalculateResourcePaths(&study, records),
	}
	if query.Build {
		response.Chunks, response.BuildError = deps.buildIndex(ctx, study)
	}
	return nil, response, nil
}
