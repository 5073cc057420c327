package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/brightloom/reelvault/internal/joberr"
	"github.com/brightloom/reelvault/internal/metadata"
	"github.com/brightloom/reelvault/internal/models"
	"github.com/brightloom/reelvault/internal/repository"
)

// MetadataEnrichDeps collects the collaborators the MetadataEnrich worker
// needs.
type MetadataEnrichDeps struct {
	Engine   *Engine
	Provider metadata.Provider
	LibRepo  *repository.LibraryRepository
	Budget   *BudgetGovernor
}

// NewMetadataEnrichWork builds the MetadataEnrich worker: query the
// external provider, rank candidates, and emit IndexUpsert carrying either
// the accepted match or no external id — IndexUpsert always runs, since an
// unmatched file still belongs in the catalog. On acceptance it also fans
// out ImageFetch jobs for the matched poster/backdrop artwork.
func NewMetadataEnrichWork(d MetadataEnrichDeps) WorkFunc {
	return func(ctx context.Context, job *models.Job) error {
		p := job.Payload.MetadataEnrich

		lib, err := d.LibRepo.GetByID(p.LibraryID)
		if err != nil {
			return fmt.Errorf("load library %s: %w", p.LibraryID, err)
		}

		if !d.Budget.AllowMetadataRequest() {
			return joberr.Wrap(joberr.ErrThrottled, fmt.Errorf("metadata provider rate limit exceeded"))
		}

		candidates, err := d.Provider.Search(lib.Kind, p.Query, p.Year)
		if err != nil {
			return fmt.Errorf("search provider for %q: %w", p.Query, err)
		}

		var ranked []metadata.Candidate
		if lib.Kind == models.LibrarySeries {
			ranked = metadata.RankSeriesCandidates(p.Query, p.Year, candidates)
		} else {
			ranked = metadata.RankMovieCandidates(p.Query, p.Year, candidates)
		}

		var external *models.ExternalMetadata
		var accepted metadata.Candidate
		matched := false
		if len(ranked) > 0 && metadata.Accept(p.Query, ranked[0]) {
			accepted = ranked[0]
			matched = true
			ext := metadata.ToExternalMetadata(d.Provider.Name(), accepted)
			external = &ext
		}

		indexReq := models.EnqueueRequest{
			Priority: models.P1,
			Payload: models.JobPayload{
				Kind: models.KindIndexUpsert,
				IndexUpsert: &models.IndexUpsertPayload{
					LibraryID:   p.LibraryID,
					MediaID:     p.MediaID,
					FilePath:    p.FilePath,
					Fingerprint: p.Fingerprint,
					Parsed:      p.Parsed,
					Technical:   p.Technical,
					External:    external,
				},
			},
		}
		if _, err := d.Engine.Admit(indexReq); err != nil && err != ErrQueueSaturated {
			return fmt.Errorf("admit index_upsert for %s: %w", p.FilePath, err)
		}

		if !matched {
			return nil
		}

		mediaType := "movie"
		if lib.Kind == models.LibrarySeries {
			mediaType = "series"
		}

		if accepted.PosterPath != "" {
			if err := admitImageFetch(d.Engine, p.LibraryID, p.MediaID, mediaType, models.ImagePoster, 0, accepted.PosterPath); err != nil {
				return err
			}
		}
		if accepted.BackdropPath != "" {
			if err := admitImageFetch(d.Engine, p.LibraryID, p.MediaID, mediaType, models.ImageBackdrop, 0, accepted.BackdropPath); err != nil {
				return err
			}
		}
		// Profile (cast) images require a separate credits lookup the
		// search endpoint doesn't return; nothing to fan out here yet.
		return nil
	}
}

func admitImageFetch(e *Engine, libraryID, mediaID uuid.UUID, mediaType string, imageType models.ImageType, order int, tmdbPath string) error {
	req := models.EnqueueRequest{
		Priority: imageType.Priority(),
		Payload: models.JobPayload{
			Kind: models.KindImageFetch,
			ImageFetch: &models.ImageFetchPayload{
				LibraryID:  libraryID,
				MediaID:    mediaID,
				MediaType:  mediaType,
				ImageType:  imageType,
				OrderIndex: order,
				Source: models.ImageFetchSource{
					Kind:     models.ImageSourceTMDB,
					TMDBPath: tmdbPath,
				},
			},
		},
	}
	if _, err := e.Admit(req); err != nil && err != ErrQueueSaturated {
		return fmt.Errorf("admit image_fetch (%s): %w", imageType, err)
	}
	return nil
}
