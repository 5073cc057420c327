package jobs

import (
	"context"
	"fmt"

	"github.com/brightloom/reelvault/internal/fingerprint"
	"github.com/brightloom/reelvault/internal/models"
	"github.com/brightloom/reelvault/internal/repository"
)

// IndexUpsertDeps collects the collaborators the IndexUpsert worker needs.
type IndexUpsertDeps struct {
	MediaRepo     *repository.MediaRepository
	CaseFoldPaths bool
}

// NewIndexUpsertWork builds the IndexUpsert worker: the single place the
// catalog is actually written, keyed by (library_id, file_path_norm) so
// repeated scans of the same file update rather than duplicate its row.
// It fans out no further jobs — any image fetches were already admitted by
// MetadataEnrich.
func NewIndexUpsertWork(d IndexUpsertDeps) WorkFunc {
	return func(ctx context.Context, job *models.Job) error {
		p := job.Payload.IndexUpsert

		pathNorm, err := fingerprint.NormalizePath(p.FilePath, d.CaseFoldPaths)
		if err != nil {
			return fmt.Errorf("normalize path %s: %w", p.FilePath, err)
		}

		record := &models.MediaRecord{
			ID:            p.MediaID,
			LibraryID:     p.LibraryID,
			FilePath:      p.FilePath,
			FilePathNorm:  pathNorm,
			Fingerprint:   p.Fingerprint,
			Parsed:        p.Parsed,
			Technical:     p.Technical,
			External:      p.External,
			SeasonNumber:  p.Parsed.Season,
			EpisodeNumber: p.Parsed.Episode,
			Status:        models.ProcessingComplete,
		}
		if err := d.MediaRepo.Upsert(record); err != nil {
			return fmt.Errorf("upsert media record for %s: %w", p.FilePath, err)
		}
		return nil
	}
}
