package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/brightloom/reelvault/internal/config"
	"github.com/brightloom/reelvault/internal/db"
	"github.com/brightloom/reelvault/internal/ffmpeg"
	"github.com/brightloom/reelvault/internal/jobs"
	"github.com/brightloom/reelvault/internal/metadata"
	"github.com/brightloom/reelvault/internal/models"
	"github.com/brightloom/reelvault/internal/notifications"
	"github.com/brightloom/reelvault/internal/preview"
	"github.com/brightloom/reelvault/internal/repository"
	"github.com/brightloom/reelvault/internal/scanner"
	"github.com/brightloom/reelvault/internal/scheduler"
	"github.com/brightloom/reelvault/internal/version"
	"github.com/brightloom/reelvault/internal/watcher"
)

const bannerArt = `
   _____            _ __     __          _ _
  / ____|          | |\ \   / /         | | |
 | |     ___   ___ | | \ \_/ /_ _ _   _| | |_
 | |    / _ \ / _ \| |  \   / _' | | | | | __|
 | |___| (_) | (_) | |   | | (_| | |_| | | |_
  \_____\___/ \___/|_|   |_|\__,_|\__,_|_|\__|
`

func main() {
	fmt.Println(bannerArt)
	fmt.Printf("  reelvaultd %s\n\n", version.Load().Version)

	cfg := config.Load()

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer database.Close()
	log.Println("database connected")

	if err := db.Migrate(database, "migrations"); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}
	cfg.MergeFromDB(database)

	libRepo := repository.NewLibraryRepository(database)
	jobRepo := repository.NewJobRepository(database)
	mediaRepo := repository.NewMediaRepository(database)

	queue := jobs.NewQueue(cfg.RedisAddr)
	notifier := notifications.NewEventNotifier(cfg.RedisAddr)
	defer notifier.Close()

	engine := jobs.NewEngine(jobRepo, queue, cfg.Orchestrator).WithNotifier(notifier)
	budget := jobs.NewBudgetGovernor(cfg.Orchestrator)
	housekeeper := jobs.NewHousekeeper(jobRepo, cfg.Orchestrator, cfg.Orchestrator.HousekeeperInterval)

	probe := ffmpeg.NewFFprobe(cfg.FFprobePath)
	provider := metadata.NewTMDBProvider(envOrWarn("TMDB_API_KEY"))
	previewGen := preview.NewGenerator(cfg.FFmpegPath, cfg.DataDir+"/previews")

	caseFoldPaths := false
	scan := scanner.NewScanner(caseFoldPaths)

	// Register the five C7 worker handlers. Each is a thin dispatch loop
	// (Engine.Handler) wrapping the kind's WorkFunc, woken by asynq and
	// draining every ready job of that kind before going back to sleep.
	queue.RegisterHandler(models.KindFolderScan, engine.Handler(models.KindFolderScan,
		jobs.NewWorkerOwner(models.KindFolderScan),
		jobs.NewFolderScanWork(jobs.FolderScanDeps{
			Engine:  engine,
			Scanner: scan,
			LibRepo: libRepo,
			Budget:  budget,
		})))

	queue.RegisterHandler(models.KindMediaAnalyze, engine.Handler(models.KindMediaAnalyze,
		jobs.NewWorkerOwner(models.KindMediaAnalyze),
		jobs.NewMediaAnalyzeWork(jobs.MediaAnalyzeDeps{
			Engine:        engine,
			Probe:         probe,
			MediaRepo:     mediaRepo,
			CaseFoldPaths: caseFoldPaths,
		})))

	queue.RegisterHandler(models.KindMetadataEnrich, engine.Handler(models.KindMetadataEnrich,
		jobs.NewWorkerOwner(models.KindMetadataEnrich),
		jobs.NewMetadataEnrichWork(jobs.MetadataEnrichDeps{
			Engine:   engine,
			Provider: provider,
			LibRepo:  libRepo,
			Budget:   budget,
		})))

	queue.RegisterHandler(models.KindIndexUpsert, engine.Handler(models.KindIndexUpsert,
		jobs.NewWorkerOwner(models.KindIndexUpsert),
		jobs.NewIndexUpsertWork(jobs.IndexUpsertDeps{
			MediaRepo:     mediaRepo,
			CaseFoldPaths: caseFoldPaths,
		})))

	queue.RegisterHandler(models.KindImageFetch, engine.Handler(models.KindImageFetch,
		jobs.NewWorkerOwner(models.KindImageFetch),
		jobs.NewImageFetchWork(jobs.ImageFetchDeps{
			HTTPClient: &http.Client{Timeout: 30 * time.Second},
			Preview:    previewGen,
			CacheDir:   cfg.DataDir + "/images",
		})))

	go func() {
		if err := queue.Start(context.Background()); err != nil {
			log.Printf("job queue worker error: %v", err)
		}
	}()
	defer queue.Stop()

	if err := housekeeper.Start(); err != nil {
		log.Fatalf("start housekeeper: %v", err)
	}
	defer housekeeper.Stop()

	fsWatcher, err := watcher.New(libRepo, cfg.Orchestrator.WatcherDebounce,
		cfg.Orchestrator.WatcherMaxBatch, cfg.Orchestrator.WatcherPollInterval,
		func(libraryID uuid.UUID, folderPath string, reason models.ScanReason) {
			admitFolderScan(engine, libraryID, folderPath, reason)
		})
	if err != nil {
		log.Printf("filesystem watcher failed to start: %v", err)
	} else {
		fsWatcher.Start()
		defer fsWatcher.Stop()
	}

	scanScheduler := scheduler.New(libRepo, 60*time.Second,
		func(libraryID uuid.UUID, reason models.ScanReason) {
			lib, err := libRepo.GetByID(libraryID)
			if err != nil {
				log.Printf("[scheduler] library lookup error: %v", err)
				return
			}
			for _, root := range lib.Roots {
				admitFolderScan(engine, libraryID, root, reason)
			}
		})
	if err := scanScheduler.Start(); err != nil {
		log.Printf("scan scheduler failed to start: %v", err)
	}
	defer scanScheduler.Stop()

	log.Printf("reelvaultd running; port %d configured for the out-of-scope HTTP/SSE layer", cfg.Port)
	select {}
}

// admitFolderScan enqueues a FolderScan job for one root directory. A
// saturated queue is ignored silently and other admission errors are logged;
// neither fails the process, and the scheduler/watcher try again on their
// next tick.
func admitFolderScan(engine *jobs.Engine, libraryID uuid.UUID, folderPath string, reason models.ScanReason) {
	req := models.EnqueueRequest{
		Priority: models.P2,
		Payload: models.JobPayload{
			Kind: models.KindFolderScan,
			FolderScan: &models.FolderScanPayload{
				LibraryID:      libraryID,
				FolderPath:     folderPath,
				FolderPathNorm: folderPath,
				Reason:         reason,
			},
		},
	}
	if _, err := engine.Admit(req); err != nil && err != jobs.ErrQueueSaturated {
		log.Printf("admit folder_scan for %s: %v", folderPath, err)
	}
}

func envOrWarn(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Printf("warning: %s not set, metadata lookups will fail", key)
	}
	return v
}
