package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/brightloom/reelvault/internal/config"
	"github.com/brightloom/reelvault/internal/joberr"
	"github.com/brightloom/reelvault/internal/models"
	"github.com/brightloom/reelvault/internal/notifications"
	"github.com/brightloom/reelvault/internal/repository"
)

// Engine is the admission/priority/leasing core (C2/C3): it owns the
// Postgres-backed job state machine and uses the asynq-backed Queue purely
// as a wakeup signal so workers don't have to poll.
type Engine struct {
	repo     *repository.JobRepository
	queue    *Queue
	cfg      config.OrchestratorConfig
	notifier *notifications.EventNotifier
}

func NewEngine(repo *repository.JobRepository, queue *Queue, cfg config.OrchestratorConfig) *Engine {
	return &Engine{repo: repo, queue: queue, cfg: cfg}
}

// WithNotifier attaches an EventNotifier so Complete/Fail publish
// job-state-change events for the external HTTP/SSE layer to relay. Safe
// to skip entirely: a nil notifier means Complete/Fail simply don't publish.
func (e *Engine) WithNotifier(n *notifications.EventNotifier) *Engine {
	e.notifier = n
	return e
}

// ErrQueueSaturated is returned when admission is rejected because the
// queue is at or beyond the critical watermark and the request isn't P0.
var ErrQueueSaturated = fmt.Errorf("queue at critical watermark")

// Admit applies the watermark/admission rules from spec.md §4.2 and then
// inserts or merges the job via JobRepository.Admit. On a freshly accepted
// (non-merged) job it notifies the asynq transport so a worker of that kind
// wakes up and drains the ready queue.
func (e *Engine) Admit(req models.EnqueueRequest) (models.JobHandle, error) {
	ready, err := e.repo.CountByState(models.StateReady)
	if err != nil {
		return models.JobHandle{}, fmt.Errorf("count ready jobs: %w", err)
	}
	if ready >= e.cfg.CriticalWatermark && req.Priority != models.P0 {
		return models.JobHandle{}, ErrQueueSaturated
	}
	// At the high watermark, only P0/P1 are admitted; P2/P3 are dropped
	// silently from the caller's perspective by returning the saturation
	// error, matching spec.md's "reject below high watermark for low
	// priority" admission rule.
	if ready >= e.cfg.HighWatermark && req.Priority > models.P1 {
		return models.JobHandle{}, ErrQueueSaturated
	}

	handle, err := e.repo.Admit(req, e.cfg.MaxAttempts)
	if err != nil {
		return models.JobHandle{}, err
	}
	if !handle.Merged {
		if err := e.queue.NotifyDispatch(handle.Job.Kind, handle.Job.ID.String()); err != nil {
			// A failed notification is not returned to the caller: the
			// job stays Ready and is leased via LeaseNext the next time a
			// dispatch task of the same kind drains the queue.
			return handle, nil
		}
	}
	return handle, nil
}

// priorityCycle implements weighted round-robin across P0..P3 using the
// weights in spec.md §4.3 (8/4/2/1): a deterministic 15-slot cycle visits
// P0 eight times, P1 four, P2 twice, P3 once, so a caller repeatedly asking
// "what's next" drains higher priorities faster without starving the rest.
var priorityCycle = buildPriorityCycle()

func buildPriorityCycle() []models.JobPriority {
	weights := map[models.JobPriority]int{
		models.P0: models.P0.Weight(),
		models.P1: models.P1.Weight(),
		models.P2: models.P2.Weight(),
		models.P3: models.P3.Weight(),
	}
	remaining := map[models.JobPriority]int{}
	for p, w := range weights {
		remaining[p] = w
	}
	total := 0
	for _, w := range weights {
		total += w
	}
	order := []models.JobPriority{models.P0, models.P1, models.P2, models.P3}
	var cycle []models.JobPriority
	for len(cycle) < total {
		for _, p := range order {
			if remaining[p] > 0 {
				cycle = append(cycle, p)
				remaining[p]--
			}
		}
	}
	return cycle
}

// LeaseNext claims the next available job of the given kind, trying
// priorities in weighted round-robin order starting at cursor and falling
// through to lower priorities if the preferred bucket is empty. It returns
// the leased job, the cycle position to resume from next call, or (nil,
// cursor, nil) if nothing is ready.
func (e *Engine) LeaseNext(kind models.JobKind, owner string, cursor int) (*models.Job, int, error) {
	n := len(priorityCycle)
	for i := 0; i < n; i++ {
		idx := (cursor + i) % n
		p := priorityCycle[idx]
		job, err := e.repo.LeaseNext(kind, p, owner, e.cfg.LeaseTTL)
		if err != nil {
			return nil, idx, err
		}
		if job != nil {
			return job, (idx + 1) % n, nil
		}
	}
	return nil, cursor, nil
}

// RenewIfDue extends a lease once the elapsed fraction of its TTL crosses
// LeaseRenewFraction, with a minimum margin before hard expiry — the
// "renew_at_fraction"/"renew_min_margin_ms" contract from spec.md §4.2.
func (e *Engine) RenewIfDue(job *models.Job, owner string) error {
	if job.LeaseExpiresAt == nil {
		return nil
	}
	total := e.cfg.LeaseTTL
	remaining := time.Until(*job.LeaseExpiresAt)
	elapsedFrac := 1 - float64(remaining)/float64(total)
	if elapsedFrac < e.cfg.LeaseRenewFraction && remaining > e.cfg.LeaseRenewMinMargin {
		return nil
	}
	newExpiry := time.Now().Add(total)
	if err := e.repo.Renew(job.ID, owner, newExpiry); err != nil {
		return err
	}
	job.LeaseExpiresAt = &newExpiry
	return nil
}

func (e *Engine) Complete(job *models.Job, owner string) error {
	if err := e.repo.Complete(job.ID, owner); err != nil {
		return err
	}
	e.publish(job, notifications.EventJobCompleted, "")
	return nil
}

// Fail records a failed attempt and schedules a retry per the classification
// produced by the Retry/Backoff Engine, or moves the job to DeadLetter once
// MaxAttempts is exhausted. A Skip classification (permission denied and
// similar access failures) gets only one retry regardless of MaxAttempts,
// since a second permission failure almost never self-resolves.
func (e *Engine) Fail(job *models.Job, owner string, cause error) error {
	class := joberr.Classify(cause)
	if class == joberr.Permanent || job.Attempts >= job.MaxAttempts {
		if err := e.repo.Fail(job.ID, owner, cause.Error(), nil); err != nil {
			return err
		}
		e.publish(job, notifications.EventJobDeadLetter, cause.Error())
		return nil
	}
	if class == joberr.Skip && job.Attempts >= 2 {
		if err := e.repo.Fail(job.ID, owner, cause.Error(), nil); err != nil {
			return err
		}
		e.publish(job, notifications.EventJobDeadLetter, cause.Error())
		return nil
	}
	delay := joberr.NextBackoff(e.cfg, job.Attempts, class)
	retryAt := time.Now().Add(delay)
	if err := e.repo.Fail(job.ID, owner, cause.Error(), &retryAt); err != nil {
		return err
	}
	e.publish(job, notifications.EventJobFailed, cause.Error())
	return nil
}

func (e *Engine) publish(job *models.Job, eventType notifications.EventType, message string) {
	if e.notifier == nil {
		return
	}
	libID, _ := job.Payload.LibraryID()
	e.notifier.Publish(context.Background(), notifications.Event{
		Type:      eventType,
		LibraryID: libID,
		JobID:     job.ID,
		Message:   message,
	})
}
