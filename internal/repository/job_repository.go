package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brightloom/reelvault/internal/models"
)

// JobRepository is the Postgres-backed store implementing the admit/lease/
// renew/complete/fail/reap contract the priority queue and lease
// housekeeper (C2/C3/C6) are built on.
type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, kind, payload, dedupe_key, state, priority, attempts, max_attempts,
	available_at, lease_owner, lease_expires_at, last_error, created_at, updated_at`

func scanJob(row interface{ Scan(dest ...interface{}) error }) (*models.Job, error) {
	j := &models.Job{}
	var payloadRaw []byte
	var leaseOwner sql.NullString
	var lastError sql.NullString
	err := row.Scan(&j.ID, &j.Kind, &payloadRaw, &j.DedupeKey, &j.State, &j.Priority,
		&j.Attempts, &j.MaxAttempts, &j.AvailableAt, &leaseOwner, &j.LeaseExpiresAt,
		&lastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.LeaseOwner = leaseOwner.String
	j.LastError = lastError.String
	if err := json.Unmarshal(payloadRaw, &j.Payload); err != nil {
		return nil, fmt.Errorf("decode job payload: %w", err)
	}
	j.Payload.Kind = j.Kind
	return j, nil
}

// Admit inserts a new job, or, if an open job (ready/deferred/leased) already
// carries the same dedupe key, merges the request into it: priority is
// elevated to the stronger of the two and available_at is pulled forward.
// Jobs already Completed/Failed/DeadLetter do not block re-admission — their
// dedupe key is no longer "open".
func (r *JobRepository) Admit(req models.EnqueueRequest, maxAttempts int) (models.JobHandle, error) {
	dedupeKey := req.DedupeKey()
	payloadRaw, err := json.Marshal(req.Payload)
	if err != nil {
		return models.JobHandle{}, fmt.Errorf("encode job payload: %w", err)
	}
	availableAt := req.AvailableAt
	if availableAt.IsZero() {
		availableAt = time.Now().UTC()
	}
	id := uuid.Must(uuid.NewV7())

	query := `
		INSERT INTO jobs (id, kind, payload, dedupe_key, state, priority, attempts,
			max_attempts, available_at)
		VALUES ($1, $2, $3, $4, 'ready', $5, 0, $6, $7)
		ON CONFLICT (dedupe_key) WHERE state IN ('ready', 'deferred', 'leased') DO UPDATE
			SET priority = LEAST(jobs.priority, excluded.priority),
			    available_at = LEAST(jobs.available_at, excluded.available_at),
			    updated_at = CURRENT_TIMESTAMP
		RETURNING ` + jobColumns + `, (xmax = 0) AS inserted`

	row := r.db.QueryRow(query, id, req.Payload.Kind, payloadRaw, dedupeKey,
		int(req.Priority), maxAttempts, availableAt)

	j := &models.Job{}
	var payloadRawOut []byte
	var leaseOwner sql.NullString
	var lastError sql.NullString
	var inserted bool
	err = row.Scan(&j.ID, &j.Kind, &payloadRawOut, &j.DedupeKey, &j.State, &j.Priority,
		&j.Attempts, &j.MaxAttempts, &j.AvailableAt, &leaseOwner, &j.LeaseExpiresAt,
		&lastError, &j.CreatedAt, &j.UpdatedAt, &inserted)
	if err != nil {
		return models.JobHandle{}, err
	}
	j.LeaseOwner = leaseOwner.String
	j.LastError = lastError.String
	if err := json.Unmarshal(payloadRawOut, &j.Payload); err != nil {
		return models.JobHandle{}, fmt.Errorf("decode job payload: %w", err)
	}
	j.Payload.Kind = j.Kind

	if inserted {
		return models.Accepted(*j), nil
	}
	return models.MergedInto(*j), nil
}

// LeaseNext atomically claims one ready job of the given kind and priority
// whose available_at has elapsed, using SKIP LOCKED so concurrent workers
// never contend on the same row.
func (r *JobRepository) LeaseNext(kind models.JobKind, priority models.JobPriority, owner string, ttl time.Duration) (*models.Job, error) {
	now := time.Now().UTC()
	expires := now.Add(ttl)

	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRow(`
		SELECT `+jobColumns+`
		FROM jobs
		WHERE kind = $1 AND priority = $2 AND state = 'ready' AND available_at <= $3
		ORDER BY available_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, kind, int(priority), now)

	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(`
		UPDATE jobs SET state = 'leased', lease_owner = $2, lease_expires_at = $3,
			attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`, j.ID, owner, expires)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	j.State = models.StateLeased
	j.LeaseOwner = owner
	j.LeaseExpiresAt = &expires
	j.Attempts++
	return j, nil
}

// Renew extends an existing lease; it fails (0 rows) if the lease has
// already expired and been reclaimed by the housekeeper, or if another
// owner holds it.
func (r *JobRepository) Renew(id uuid.UUID, owner string, newExpiry time.Time) error {
	result, err := r.db.Exec(`
		UPDATE jobs SET lease_expires_at = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND lease_owner = $2 AND state = 'leased'`, id, owner, newExpiry)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("lease not held by %s for job %s", owner, id)
	}
	return nil
}

// Complete marks a leased job done.
func (r *JobRepository) Complete(id uuid.UUID, owner string) error {
	result, err := r.db.Exec(`
		UPDATE jobs SET state = 'completed', lease_owner = NULL, lease_expires_at = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND lease_owner = $2`, id, owner)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("lease not held by %s for job %s", owner, id)
	}
	return nil
}

// Fail records a failed attempt. If retryAt is non-nil the job returns to
// Ready immediately with available_at set to retryAt, so LeaseNext skips it
// until then; otherwise it moves straight to DeadLetter.
func (r *JobRepository) Fail(id uuid.UUID, owner string, errMsg string, retryAt *time.Time) error {
	var query string
	var args []interface{}
	if retryAt != nil {
		query = `
			UPDATE jobs SET state = 'ready', lease_owner = NULL, lease_expires_at = NULL,
				available_at = $3, last_error = $4, updated_at = CURRENT_TIMESTAMP
			WHERE id = $1 AND lease_owner = $2`
		args = []interface{}{id, owner, *retryAt, errMsg}
	} else {
		query = `
			UPDATE jobs SET state = 'dead_letter', lease_owner = NULL, lease_expires_at = NULL,
				last_error = $3, updated_at = CURRENT_TIMESTAMP
			WHERE id = $1 AND lease_owner = $2`
		args = []interface{}{id, owner, errMsg}
	}
	result, err := r.db.Exec(query, args...)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("lease not held by %s for job %s", owner, id)
	}
	return nil
}

// ExpiredLease identifies one lease past its expiry, along with the
// attempts count the housekeeper needs to compute its reclaim backoff.
type ExpiredLease struct {
	ID       uuid.UUID
	Attempts int
}

// LeaseExpired returns every leased job whose lease_expires_at has passed,
// for the housekeeper to reclaim (C6).
func (r *JobRepository) LeaseExpired(now time.Time) ([]ExpiredLease, error) {
	rows, err := r.db.Query(`
		SELECT id, attempts FROM jobs
		WHERE state = 'leased' AND lease_expires_at < $1`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExpiredLease
	for rows.Next() {
		var l ExpiredLease
		if err := rows.Scan(&l.ID, &l.Attempts); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ReapLease resets one expired lease back to Ready, pushing available_at
// out by the caller-computed backoff so a dead worker's job doesn't come
// right back up for immediate re-lease.
func (r *JobRepository) ReapLease(id uuid.UUID, availableAt time.Time) error {
	_, err := r.db.Exec(`
		UPDATE jobs SET state = 'ready', lease_owner = NULL, lease_expires_at = NULL,
			available_at = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND state = 'leased'`, id, availableAt)
	return err
}

// CountByState returns queue depth per state, used for watermark checks.
func (r *JobRepository) CountByState(state models.JobState) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT count(*) FROM jobs WHERE state = $1`, state).Scan(&n)
	return n, err
}

// CountInFlightForLibrary returns jobs currently leased whose payload names
// the given library, backing the per-library in-flight cap (C4).
func (r *JobRepository) CountInFlightForLibrary(libraryID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(`
		SELECT count(*) FROM jobs
		WHERE state = 'leased' AND COALESCE(
			payload->'FolderScan'->>'LibraryID',
			payload->'MediaAnalyze'->>'LibraryID',
			payload->'MetadataEnrich'->>'LibraryID',
			payload->'IndexUpsert'->>'LibraryID',
			payload->'ImageFetch'->>'LibraryID'
		) = $1`, libraryID.String()).Scan(&n)
	return n, err
}

func (r *JobRepository) GetByID(id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(r.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	return j, err
}

func (r *JobRepository) ListRecent(limit int) ([]*models.Job, error) {
	rows, err := r.db.Query(`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
