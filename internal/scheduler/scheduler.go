// Package scheduler triggers FolderScan admission for libraries whose
// scan_interval has elapsed, replacing the teacher's fixed ticker loop with
// a robfig/cron schedule so it shares the same scheduling primitive as the
// lease housekeeper.
package scheduler

import (
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/brightloom/reelvault/internal/models"
	"github.com/brightloom/reelvault/internal/repository"
)

// OnScanDue is called once per library that has become due, carrying the
// reason so the caller can admit a FolderScan job tagged accordingly.
type OnScanDue func(libraryID uuid.UUID, reason models.ScanReason)

// Scheduler polls for libraries due for a scheduled scan and advances their
// next_scan_at before invoking the callback, so a slow callback or a
// restart between tick and admission can't double-trigger the same due
// library.
type Scheduler struct {
	libRepo  *repository.LibraryRepository
	callback OnScanDue
	interval time.Duration
	cron     *cron.Cron
}

func New(libRepo *repository.LibraryRepository, interval time.Duration, cb OnScanDue) *Scheduler {
	return &Scheduler{
		libRepo:  libRepo,
		callback: cb,
		interval: interval,
		cron:     cron.New(cron.WithSeconds()),
	}
}

// Start schedules the due-library check on a cron "@every" spec derived
// from interval.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(everySpec(s.interval), s.check); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("[scheduler] scan-due checker started (interval %s)", s.interval)
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) check() {
	now := time.Now().UTC()
	libs, err := s.libRepo.GetDueForScan(now)
	if err != nil {
		log.Printf("[scheduler] error checking due libraries: %v", err)
		return
	}

	for _, lib := range libs {
		log.Printf("[scheduler] library %q is due for scan", lib.Name)

		if err := s.libRepo.AdvanceNextScan(lib.ID, now); err != nil {
			log.Printf("[scheduler] error advancing next_scan_at for %s: %v", lib.Name, err)
			continue
		}

		s.callback(lib.ID, models.ReasonMaintenanceSweep)
	}
}

func everySpec(d time.Duration) string {
	if d <= 0 {
		d = 60 * time.Second
	}
	return "@every " + d.String()
}
