package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/brightloom/reelvault/internal/joberr"
	"github.com/brightloom/reelvault/internal/models"
)

// WorkFunc performs the work for one leased job. It returns a plain error;
// classification into Gone/Skip/Transient/Permanent/Throttled happens in
// runOne via joberr.Classify, so handlers should wrap filesystem/network
// errors with joberr.Wrap only when they know something Classify's default
// heuristics wouldn't (e.g. a provider 429 as ErrThrottled).
type WorkFunc func(ctx context.Context, job *models.Job) error

// NewWorkerOwner builds a unique lease-owner identity for one worker
// goroutine, so renewals/completions are attributable and a lease
// contended by two owners fails loudly instead of silently overwriting.
func NewWorkerOwner(kind models.JobKind) string {
	return fmt.Sprintf("%s-%s", kind.Short(), uuid.Must(uuid.NewV7()).String())
}

// Handler adapts a WorkFunc into the asynq dispatch-trigger handler for one
// job kind. A dispatch task is a coalesced wakeup, not a work item itself,
// so on firing the handler drains every ready job of that kind (cycling
// priorities via LeaseNext) until none remain.
func (e *Engine) Handler(kind models.JobKind, owner string, work WorkFunc) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		cursor := 0
		for {
			job, next, err := e.LeaseNext(kind, owner, cursor)
			if err != nil {
				return fmt.Errorf("lease next %s job: %w", kind, err)
			}
			if job == nil {
				return nil
			}
			cursor = next
			e.runOne(ctx, job, owner, work)
		}
	}
}

// runOne executes work for a leased job, renewing its lease on a ticker for
// the duration of the call so a slow probe or provider request doesn't lose
// the lease to the housekeeper mid-flight, then completes/retries/dead-letters
// it according to the returned error's classification.
func (e *Engine) runOne(ctx context.Context, job *models.Job, owner string, work WorkFunc) {
	renewCtx, cancelRenew := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(e.cfg.LeaseTTL / 4)
		defer ticker.Stop()
		for {
			select {
			case <-renewCtx.Done():
				return
			case <-ticker.C:
				if err := e.RenewIfDue(job, owner); err != nil {
					log.Printf("[jobs] lease renew failed for %s %s: %v", job.Kind, job.ID, err)
				}
			}
		}
	}()

	err := work(ctx, job)
	cancelRenew()
	wg.Wait()

	if err == nil {
		if cerr := e.Complete(job, owner); cerr != nil {
			log.Printf("[jobs] complete failed for %s %s: %v", job.Kind, job.ID, cerr)
		}
		return
	}

	// Gone means the resource the job targeted (a folder, a source file)
	// disappeared out from under it: that's a successful no-op, not a
	// failure to retry.
	if joberr.Classify(err) == joberr.Gone {
		if cerr := e.Complete(job, owner); cerr != nil {
			log.Printf("[jobs] complete (gone) failed for %s %s: %v", job.Kind, job.ID, cerr)
		}
		return
	}

	if ferr := e.Fail(job, owner, err); ferr != nil {
		log.Printf("[jobs] fail failed for %s %s: %v", job.Kind, job.ID, ferr)
	}
}
