package jobs

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/brightloom/reelvault/internal/config"
	"github.com/brightloom/reelvault/internal/joberr"
	"github.com/brightloom/reelvault/internal/repository"
)

// Housekeeper periodically reclaims expired leases so a crashed or wedged
// worker doesn't strand a job in Leased forever (spec.md §4.2/C6).
type Housekeeper struct {
	repo     *repository.JobRepository
	cfg      config.OrchestratorConfig
	interval time.Duration
	cron     *cron.Cron
}

func NewHousekeeper(repo *repository.JobRepository, cfg config.OrchestratorConfig, interval time.Duration) *Housekeeper {
	return &Housekeeper{
		repo:     repo,
		cfg:      cfg,
		interval: interval,
		cron:     cron.New(cron.WithSeconds()),
	}
}

// Start schedules the reap sweep using a cron spec derived from the
// configured interval rather than a raw ticker, so the same scheduling
// primitive backs the housekeeper, the scan scheduler and the watcher's
// poll fallback (C8).
func (h *Housekeeper) Start() error {
	spec := everySpec(h.interval)
	_, err := h.cron.AddFunc(spec, h.sweep)
	if err != nil {
		return err
	}
	h.cron.Start()
	return nil
}

func (h *Housekeeper) Stop() {
	h.cron.Stop()
}

// sweep reclaims every lease past its expiry. A dead worker's abandoned job
// is not itself a failed attempt, so it's classified Transient here: the
// reclaim still pushes available_at out by backoff(attempts), per spec.md
// §4.2, rather than making the job immediately re-leasable.
func (h *Housekeeper) sweep() {
	now := time.Now().UTC()
	expired, err := h.repo.LeaseExpired(now)
	if err != nil {
		log.Printf("[housekeeper] reap error: %v", err)
		return
	}
	for _, lease := range expired {
		delay := joberr.NextBackoff(h.cfg, lease.Attempts, joberr.Transient)
		if err := h.repo.ReapLease(lease.ID, now.Add(delay)); err != nil {
			log.Printf("[housekeeper] reap lease %s: %v", lease.ID, err)
			continue
		}
	}
	if n := len(expired); n > 0 {
		log.Printf("[housekeeper] reclaimed %d expired lease(s)", n)
	}
}

// everySpec builds a "@every" cron spec, robfig/cron's supported shorthand
// for fixed-interval schedules.
func everySpec(d time.Duration) string {
	if d <= 0 {
		d = 15 * time.Second
	}
	return "@every " + d.String()
}
