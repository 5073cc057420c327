package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/brightloom/reelvault/internal/ffmpeg"
	"github.com/brightloom/reelvault/internal/fingerprint"
	"github.com/brightloom/reelvault/internal/metadata"
	"github.com/brightloom/reelvault/internal/models"
	"github.com/brightloom/reelvault/internal/repository"
	"github.com/brightloom/reelvault/internal/scanner"
)

// MediaAnalyzeDeps collects the collaborators the MediaAnalyze worker needs.
type MediaAnalyzeDeps struct {
	Engine        *Engine
	Probe         *ffmpeg.FFprobe
	MediaRepo     *repository.MediaRepository
	CaseFoldPaths bool
}

// NewMediaAnalyzeWork builds the MediaAnalyze worker: probe the file's
// technical characteristics, parse its filename, and emit a MetadataEnrich
// job carrying both forward. It never writes to the catalog itself — that
// happens once, idempotently, in IndexUpsert.
func NewMediaAnalyzeWork(d MediaAnalyzeDeps) WorkFunc {
	return func(ctx context.Context, job *models.Job) error {
		p := job.Payload.MediaAnalyze

		result, err := d.Probe.Probe(p.FilePath)
		if err != nil {
			return fmt.Errorf("probe %s: %w", p.FilePath, err)
		}
		technical := &models.TechnicalMetadata{
			DurationSeconds: float64(result.GetDurationSeconds()),
			VideoCodec:      result.GetVideoCodec(),
			AudioCodec:      result.GetAudioCodec(),
			Width:           result.GetWidth(),
			Height:          result.GetHeight(),
			BitrateKbps:     int(result.GetBitrate() / 1000),
		}

		parsedFile := scanner.ParseFilename(p.FilePath)
		parsed := models.ParsedInfo{
			Title:      parsedFile.Title,
			Edition:    parsedFile.Edition,
			Resolution: parsedFile.Resolution,
			Source:     parsedFile.Source,
		}
		if parsedFile.Season > 0 {
			season := parsedFile.Season
			parsed.Season = &season
		}
		if parsedFile.Episode > 0 {
			episode := parsedFile.Episode
			parsed.Episode = &episode
		}
		var year *int
		if parsedFile.Year > 0 {
			y := parsedFile.Year
			year = &y
			parsed.Year = year
		}

		pathNorm, err := fingerprint.NormalizePath(p.FilePath, d.CaseFoldPaths)
		if err != nil {
			return fmt.Errorf("normalize path %s: %w", p.FilePath, err)
		}

		mediaID, err := stableMediaID(d.MediaRepo, p.LibraryID, pathNorm)
		if err != nil {
			return err
		}

		kind := "movie"
		if parsed.Season != nil {
			kind = "series"
		}
		yearKey := ""
		if year != nil {
			yearKey = fmt.Sprint(*year)
		}
		candidateID := fmt.Sprintf("%x", xxhashStr(fmt.Sprintf("%s:%s:%s", kind, metadata.NormalizeTitle(parsed.Title), yearKey)))

		req := models.EnqueueRequest{
			Priority: models.P2,
			Payload: models.JobPayload{
				Kind: models.KindMetadataEnrich,
				MetadataEnrich: &models.MetadataEnrichPayload{
					LibraryID:   p.LibraryID,
					MediaID:     mediaID,
					FilePath:    p.FilePath,
					Fingerprint: p.Fingerprint,
					Parsed:      parsed,
					Technical:   technical,
					CandidateID: candidateID,
					Query:       parsed.Title,
					Year:        year,
				},
			},
		}
		if _, err := d.Engine.Admit(req); err != nil && err != ErrQueueSaturated {
			return fmt.Errorf("admit metadata_enrich for %s: %w", p.FilePath, err)
		}
		return nil
	}
}

// stableMediaID reuses an existing catalog row's ID across rescans (keyed
// by library+normalized path) so a file re-analyzed after a metadata
// refresh doesn't fork into a second MediaRecord.
func stableMediaID(repo *repository.MediaRepository, libraryID uuid.UUID, pathNorm string) (uuid.UUID, error) {
	existing, err := repo.GetByPath(libraryID, pathNorm)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("lookup existing media record: %w", err)
	}
	if existing != nil {
		return existing.ID, nil
	}
	return uuid.Must(uuid.NewV7()), nil
}
