package storage

import (
	"context"
	"fmt"

	"github.com/Epistemic-Technology/study-rag/models"
)

// Store is the study catalog: it maps study names to their source bundles.
type Store interface {
	// RegisterStudy adds a study or replaces the entry with the same name
	RegisterStudy(ctx context.Context, study models.Study) error

	// ResolveStudy looks up a study by name; unknown names yield StudyNotFoundError
	ResolveStudy(ctx context.Context, name string) (*models.Study, error)

	// ListStudies returns studies ordered by name, limited to the given
	// library IDs when any are passed
	ListStudies(ctx context.Context, libraryIDs ...string) ([]models.Study, error)

	// DeleteStudy removes a study from the catalog
	DeleteStudy(ctx context.Context, name string) error

	// ImportStudyFiles registers every entry of a JSON object mapping study
	// names to bundle paths and returns how many were imported
	ImportStudyFiles(ctx context.Context, path string, libraryID string) (int, error)

	// Close closes the database connection
	Close() error
}

// StudyNotFoundError is returned when a study name is not in the catalog.
type StudyNotFoundError struct {
	Study string
}

func (e *StudyNotFoundError) Error() string {
	return fmt.Sprintf("study not found: %s", e.Study)
}
