package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/brightloom/reelvault/internal/models"
)

// LibraryRepository is the Postgres-backed store for Library configuration.
type LibraryRepository struct {
	db *sql.DB
}

func NewLibraryRepository(db *sql.DB) *LibraryRepository {
	return &LibraryRepository{db: db}
}

const libraryColumns = `id, name, kind, roots, scan_interval_seconds, enabled,
	last_scan_at, next_scan_at, created_at, updated_at`

func scanLibrary(row interface{ Scan(dest ...interface{}) error }) (*models.Library, error) {
	lib := &models.Library{}
	var intervalSecs int64
	err := row.Scan(
		&lib.ID, &lib.Name, &lib.Kind, pq.Array(&lib.Roots), &intervalSecs, &lib.Enabled,
		&lib.LastScanAt, &lib.NextScanAt, &lib.CreatedAt, &lib.UpdatedAt,
	)
	lib.ScanInterval = time.Duration(intervalSecs) * time.Second
	return lib, err
}

func (r *LibraryRepository) Create(lib *models.Library) error {
	if lib.ID == uuid.Nil {
		lib.ID = uuid.Must(uuid.NewV7())
	}
	if !lib.Kind.Valid() {
		return fmt.Errorf("invalid library kind %q", lib.Kind)
	}
	query := `
		INSERT INTO libraries (id, name, kind, roots, scan_interval_seconds, enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`
	return r.db.QueryRow(query, lib.ID, lib.Name, lib.Kind, pq.Array(lib.Roots),
		int64(lib.ScanInterval/time.Second), lib.Enabled).
		Scan(&lib.CreatedAt, &lib.UpdatedAt)
}

func (r *LibraryRepository) GetByID(id uuid.UUID) (*models.Library, error) {
	query := `SELECT ` + libraryColumns + ` FROM libraries WHERE id = $1`
	lib, err := scanLibrary(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("library not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return lib, nil
}

func (r *LibraryRepository) List() ([]*models.Library, error) {
	rows, err := r.db.Query(`SELECT ` + libraryColumns + ` FROM libraries ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Library
	for rows.Next() {
		lib, err := scanLibrary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lib)
	}
	return out, rows.Err()
}

// ListEnabled returns libraries eligible for scanning.
func (r *LibraryRepository) ListEnabled() ([]*models.Library, error) {
	rows, err := r.db.Query(`SELECT ` + libraryColumns + ` FROM libraries WHERE enabled ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Library
	for rows.Next() {
		lib, err := scanLibrary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lib)
	}
	return out, rows.Err()
}

// GetDueForScan returns enabled libraries whose next_scan_at has elapsed.
// Mirrors the teacher scheduler's polling query.
func (r *LibraryRepository) GetDueForScan(now time.Time) ([]*models.Library, error) {
	rows, err := r.db.Query(`SELECT `+libraryColumns+` FROM libraries
		WHERE enabled AND (next_scan_at IS NULL OR next_scan_at <= $1)
		ORDER BY next_scan_at NULLS FIRST`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Library
	for rows.Next() {
		lib, err := scanLibrary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lib)
	}
	return out, rows.Err()
}

// AdvanceNextScan pushes next_scan_at forward by the library's own
// scan_interval, called before dispatching a due scan so the scheduler
// doesn't re-trigger it on the following tick.
func (r *LibraryRepository) AdvanceNextScan(id uuid.UUID, from time.Time) error {
	_, err := r.db.Exec(`
		UPDATE libraries SET last_scan_at = $2,
			next_scan_at = $2 + (scan_interval_seconds * INTERVAL '1 second')
		WHERE id = $1`, id, from)
	return err
}

func (r *LibraryRepository) Update(lib *models.Library) error {
	query := `
		UPDATE libraries
		SET name = $2, roots = $3, scan_interval_seconds = $4, enabled = $5,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`
	result, err := r.db.Exec(query, lib.ID, lib.Name, pq.Array(lib.Roots),
		int64(lib.ScanInterval/time.Second), lib.Enabled)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("library not found: %s", lib.ID)
	}
	return nil
}

func (r *LibraryRepository) Delete(id uuid.UUID) error {
	result, err := r.db.Exec(`DELETE FROM libraries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("library not found: %s", id)
	}
	return nil
}
