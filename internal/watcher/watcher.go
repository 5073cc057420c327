// Package watcher implements the filesystem watcher (C8): it debounces
// bursts of fsnotify events per library into a small number of FolderScan
// triggers, falling back to periodic reconciliation for mounts where
// inotify-style watches are unreliable or exhausted.
package watcher

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/brightloom/reelvault/internal/models"
	"github.com/brightloom/reelvault/internal/repository"
	"github.com/brightloom/reelvault/internal/scanner"
)

// OnScanTrigger is invoked once per directory that needs a FolderScan,
// tagged with why it was triggered.
type OnScanTrigger func(libraryID uuid.UUID, folderPath string, reason models.ScanReason)

// pendingBatch accumulates distinct changed directories for one library
// between the first event and the debounce flush.
type pendingBatch struct {
	dirs  map[string]struct{}
	count int
	timer *time.Timer
}

// Watcher monitors enabled library roots for filesystem changes and
// debounces them into FolderScan triggers.
type Watcher struct {
	libRepo  *repository.LibraryRepository
	callback OnScanTrigger

	debounce     time.Duration
	maxBatch     int
	pollInterval time.Duration

	fsWatcher *fsnotify.Watcher
	poll      *cron.Cron

	mu      sync.Mutex
	watched map[string]uuid.UUID // watched directory -> library ID
	pending map[uuid.UUID]*pendingBatch

	stop chan struct{}
}

func New(libRepo *repository.LibraryRepository, debounce time.Duration, maxBatch int, pollInterval time.Duration, cb OnScanTrigger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		libRepo:      libRepo,
		callback:     cb,
		debounce:     debounce,
		maxBatch:     maxBatch,
		pollInterval: pollInterval,
		fsWatcher:    fw,
		poll:         cron.New(cron.WithSeconds()),
		watched:      make(map[string]uuid.UUID),
		pending:      make(map[uuid.UUID]*pendingBatch),
		stop:         make(chan struct{}),
	}, nil
}

// Start begins watching all enabled libraries' roots and the periodic
// reconciliation fallback.
func (w *Watcher) Start() error {
	go w.eventLoop()
	w.Refresh()

	if _, err := w.poll.AddFunc(everySpec(w.pollInterval), func() { w.Refresh() }); err != nil {
		return err
	}
	w.poll.Start()
	log.Println("[watcher] filesystem watcher started")
	return nil
}

func (w *Watcher) Stop() {
	close(w.stop)
	w.poll.Stop()
	w.fsWatcher.Close()
}

// Refresh reconciles the watched directory set against enabled libraries'
// roots, adding new roots and dropping ones no longer enabled. Runs both at
// startup and on the poll fallback cron so a watch silently dropped by the
// OS (e.g. inotify instance limit) is eventually re-added.
func (w *Watcher) Refresh() {
	libs, err := w.libRepo.ListEnabled()
	if err != nil {
		log.Printf("[watcher] error loading enabled libraries: %v", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	desired := make(map[string]uuid.UUID)
	for _, lib := range libs {
		for _, root := range lib.Roots {
			desired[root] = lib.ID
		}
	}

	for p := range w.watched {
		keep := false
		for root := range desired {
			if p == root || strings.HasPrefix(p, root+string(filepath.Separator)) {
				keep = true
				break
			}
		}
		if !keep {
			w.fsWatcher.Remove(p)
			delete(w.watched, p)
		}
	}

	for p, libID := range desired {
		if _, ok := w.watched[p]; ok {
			continue
		}
		if err := w.addRecursive(p, libID); err != nil {
			log.Printf("[watcher] error adding %s: %v", p, err)
		}
	}
}

func (w *Watcher) addRecursive(root string, libID uuid.UUID) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if err := w.fsWatcher.Add(path); err != nil {
				return nil
			}
			w.watched[path] = libID
		}
		return nil
	})
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Printf("[watcher] error: %v", err)
		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".tmp") || strings.HasSuffix(base, ".part") {
		return
	}

	isCreate := event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
	isRemove := event.Has(fsnotify.Remove)
	if !isCreate && !isRemove {
		return
	}

	if isCreate {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if libID := w.resolveLibrary(event.Name); libID != uuid.Nil {
				w.mu.Lock()
				w.fsWatcher.Add(event.Name)
				w.watched[event.Name] = libID
				w.mu.Unlock()
			}
			return
		}
	}

	if !scanner.IsVideoFile(event.Name) {
		return
	}

	libID := w.resolveLibrary(event.Name)
	if libID == uuid.Nil {
		return
	}

	w.queueEvent(libID, filepath.Dir(event.Name))
}

// queueEvent adds a changed directory to libID's pending batch, flushing
// immediately with ReasonWatcherOverflow if maxBatch is exceeded before the
// debounce timer would have fired, or resetting the debounce timer
// otherwise.
func (w *Watcher) queueEvent(libID uuid.UUID, dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	batch, ok := w.pending[libID]
	if !ok {
		batch = &pendingBatch{dirs: make(map[string]struct{})}
		w.pending[libID] = batch
	}
	batch.dirs[dir] = struct{}{}
	batch.count++

	if batch.count > w.maxBatch {
		if batch.timer != nil {
			batch.timer.Stop()
		}
		delete(w.pending, libID)
		go w.flush(libID, batch, models.ReasonWatcherOverflow)
		return
	}

	if batch.timer != nil {
		batch.timer.Stop()
	}
	batch.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, libID)
		w.mu.Unlock()
		w.flush(libID, batch, models.ReasonHotChange)
	})
}

func (w *Watcher) flush(libID uuid.UUID, batch *pendingBatch, reason models.ScanReason) {
	for dir := range batch.dirs {
		w.callback(libID, dir, reason)
	}
}

func (w *Watcher) resolveLibrary(path string) uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Dir(path)
	for dir != "/" && dir != "." {
		if libID, ok := w.watched[dir]; ok {
			return libID
		}
		next := filepath.Dir(dir)
		if next == dir {
			break
		}
		dir = next
	}
	return uuid.Nil
}

func everySpec(d time.Duration) string {
	if d <= 0 {
		d = 5 * time.Minute
	}
	return "@every " + d.String()
}
