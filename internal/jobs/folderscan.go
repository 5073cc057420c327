package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/brightloom/reelvault/internal/models"
	"github.com/brightloom/reelvault/internal/repository"
	"github.com/brightloom/reelvault/internal/scanner"
)

// FolderScanDeps collects the collaborators the FolderScan worker needs.
type FolderScanDeps struct {
	Engine  *Engine
	Scanner *scanner.Scanner
	LibRepo *repository.LibraryRepository
	Budget  *BudgetGovernor
}

// NewFolderScanWork builds the FolderScan worker: enumerate the folder
// (recursing one level for series libraries, none for movies), then admit
// a MediaAnalyze job per eligible file found. A root-level walk failure
// (folder gone, permission denied, hung mount) fails the job itself;
// per-file fingerprinting failures are logged and the file is skipped
// without failing the scan.
func NewFolderScanWork(d FolderScanDeps) WorkFunc {
	return func(ctx context.Context, job *models.Job) error {
		p := job.Payload.FolderScan

		lib, err := d.LibRepo.GetByID(p.LibraryID)
		if err != nil {
			return fmt.Errorf("load library %s: %w", p.LibraryID, err)
		}

		release := d.Budget.AcquireLibrarySlot(p.LibraryID.String())
		defer release()

		depth := scanner.MaxDepthForKind(lib.Kind)
		files, errs := d.Scanner.Walk(ctx, p.FolderPath, depth)
		if files == nil && len(errs) > 0 {
			return errs[0]
		}
		for _, walkErr := range errs {
			log.Printf("[jobs:folder_scan] skipping unreadable entry under %s: %v", p.FolderPath, walkErr)
		}

		for _, f := range files {
			req := models.EnqueueRequest{
				Priority: models.P2,
				Payload: models.JobPayload{
					Kind: models.KindMediaAnalyze,
					MediaAnalyze: &models.MediaAnalyzePayload{
						LibraryID:   p.LibraryID,
						FilePath:    f.Path,
						Fingerprint: f.Fingerprint,
						Reason:      p.Reason,
					},
				},
			}
			if _, err := d.Engine.Admit(req); err != nil && err != ErrQueueSaturated {
				return fmt.Errorf("admit media_analyze for %s: %w", f.Path, err)
			}
		}
		return nil
	}
}
