package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brightloom/reelvault/internal/models"
)

// MediaRepository is the Postgres-backed store for catalog entries
// (MediaRecord), covering the IndexUpsert write path and the
// unprocessed/failed-retryable lookups. No job handler calls those lookups.
type MediaRepository struct {
	db *sql.DB
}

func NewMediaRepository(db *sql.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

const mediaColumns = `id, library_id, file_path, file_path_norm, fingerprint, parsed,
	technical, external, season_number, episode_number, parent_id, status,
	retry_count, next_retry_at, date_added, date_modified`

func scanMedia(row interface{ Scan(dest ...interface{}) error }) (*models.MediaRecord, error) {
	m := &models.MediaRecord{}
	var fpRaw, parsedRaw []byte
	var technicalRaw, externalRaw sql.NullString
	err := row.Scan(&m.ID, &m.LibraryID, &m.FilePath, &m.FilePathNorm, &fpRaw, &parsedRaw,
		&technicalRaw, &externalRaw, &m.SeasonNumber, &m.EpisodeNumber, &m.ParentID, &m.Status,
		&m.RetryCount, &m.NextRetryAt, &m.DateAdded, &m.DateModified)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fpRaw, &m.Fingerprint); err != nil {
		return nil, fmt.Errorf("decode fingerprint: %w", err)
	}
	if err := json.Unmarshal(parsedRaw, &m.Parsed); err != nil {
		return nil, fmt.Errorf("decode parsed info: %w", err)
	}
	if technicalRaw.Valid {
		m.Technical = &models.TechnicalMetadata{}
		if err := json.Unmarshal([]byte(technicalRaw.String), m.Technical); err != nil {
			return nil, fmt.Errorf("decode technical metadata: %w", err)
		}
	}
	if externalRaw.Valid {
		m.External = &models.ExternalMetadata{}
		if err := json.Unmarshal([]byte(externalRaw.String), m.External); err != nil {
			return nil, fmt.Errorf("decode external metadata: %w", err)
		}
	}
	return m, nil
}

// Upsert inserts or updates a catalog entry keyed by (library_id,
// file_path_norm) — the IndexUpsert job's terminal write.
func (r *MediaRepository) Upsert(m *models.MediaRecord) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.Must(uuid.NewV7())
	}
	fpRaw, err := json.Marshal(m.Fingerprint)
	if err != nil {
		return err
	}
	parsedRaw, err := json.Marshal(m.Parsed)
	if err != nil {
		return err
	}
	var technicalRaw, externalRaw []byte
	if m.Technical != nil {
		if technicalRaw, err = json.Marshal(m.Technical); err != nil {
			return err
		}
	}
	if m.External != nil {
		if externalRaw, err = json.Marshal(m.External); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO media_records (id, library_id, file_path, file_path_norm, fingerprint,
			parsed, technical, external, season_number, episode_number, parent_id, status,
			retry_count, next_retry_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (library_id, file_path_norm) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			parsed = excluded.parsed,
			technical = COALESCE(excluded.technical, media_records.technical),
			external = COALESCE(excluded.external, media_records.external),
			season_number = excluded.season_number,
			episode_number = excluded.episode_number,
			status = excluded.status,
			retry_count = excluded.retry_count,
			next_retry_at = excluded.next_retry_at,
			date_modified = CURRENT_TIMESTAMP
		RETURNING id, date_added, date_modified`

	return r.db.QueryRow(query, m.ID, m.LibraryID, m.FilePath, m.FilePathNorm, fpRaw,
		parsedRaw, nullIfEmpty(technicalRaw), nullIfEmpty(externalRaw), m.SeasonNumber,
		m.EpisodeNumber, m.ParentID, m.Status, m.RetryCount, m.NextRetryAt).
		Scan(&m.ID, &m.DateAdded, &m.DateModified)
}

func nullIfEmpty(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

func (r *MediaRepository) GetByID(id uuid.UUID) (*models.MediaRecord, error) {
	m, err := scanMedia(r.db.QueryRow(`SELECT `+mediaColumns+` FROM media_records WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("media record not found: %s", id)
	}
	return m, err
}

func (r *MediaRepository) GetByPath(libraryID uuid.UUID, pathNorm string) (*models.MediaRecord, error) {
	m, err := scanMedia(r.db.QueryRow(`
		SELECT `+mediaColumns+` FROM media_records
		WHERE library_id = $1 AND file_path_norm = $2`, libraryID, pathNorm))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (r *MediaRepository) ListByLibrary(libraryID uuid.UUID, limit, offset int) ([]*models.MediaRecord, error) {
	rows, err := r.db.Query(`
		SELECT `+mediaColumns+` FROM media_records
		WHERE library_id = $1 ORDER BY date_added DESC LIMIT $2 OFFSET $3`, libraryID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMedia(rows)
}

// ListUnprocessed returns records still pending metadata/image work —
// grounds the incremental rescan path's get_unprocessed_files query.
func (r *MediaRepository) ListUnprocessed(libraryID uuid.UUID) ([]*models.MediaRecord, error) {
	rows, err := r.db.Query(`
		SELECT `+mediaColumns+` FROM media_records
		WHERE library_id = $1 AND status = 'pending'
		ORDER BY date_added`, libraryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMedia(rows)
}

// ListFailedRetryable returns failed records whose next_retry_at has
// elapsed, for the incremental rescan's get_failed_files query.
func (r *MediaRepository) ListFailedRetryable(libraryID uuid.UUID, now time.Time) ([]*models.MediaRecord, error) {
	rows, err := r.db.Query(`
		SELECT `+mediaColumns+` FROM media_records
		WHERE library_id = $1 AND status = 'failed'
		  AND (next_retry_at IS NULL OR next_retry_at <= $2)
		ORDER BY date_added`, libraryID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMedia(rows)
}

func collectMedia(rows *sql.Rows) ([]*models.MediaRecord, error) {
	var out []*models.MediaRecord
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkProcessingStatus records the outcome of a processing attempt,
// bumping retry_count/next_retry_at on failure per incremental.rs.
func (r *MediaRepository) MarkProcessingStatus(mediaID uuid.UUID, status models.ProcessingStatus, nextRetryAt *time.Time) error {
	_, err := r.db.Exec(`
		UPDATE media_records SET status = $2, next_retry_at = $3,
			retry_count = CASE WHEN $2 = 'failed' THEN retry_count + 1 ELSE retry_count END,
			date_modified = CURRENT_TIMESTAMP
		WHERE id = $1`, mediaID, status, nextRetryAt)
	return err
}

func (r *MediaRepository) Delete(id uuid.UUID) error {
	result, err := r.db.Exec(`DELETE FROM media_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("media record not found: %s", id)
	}
	return nil
}
