// Package scanner implements the FolderScan worker's filesystem discovery:
// walking a library root, skipping symlink cycles and hung network mounts,
// and fingerprinting every eligible file it finds. Grounded in the
// teacher's original scanner.go concurrency shape (buffered channel +
// worker pool, mount-timeout stat, symlink-cycle guard), generalized away
// from its per-media-type catalog writes since that responsibility now
// belongs to the MediaAnalyze/IndexUpsert jobs the FolderScan handler
// admits from what Walk discovers.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/brightloom/reelvault/internal/fingerprint"
	"github.com/brightloom/reelvault/internal/joberr"
	"github.com/brightloom/reelvault/internal/models"
)

const (
	numWalkWorkers = 8
	mountStatTimeout = 10 * time.Second
)

// DiscoveredFile is one eligible media file found under a scanned folder,
// already fingerprinted so the caller can dedupe against existing catalog
// entries without a second filesystem pass.
type DiscoveredFile struct {
	Path        string
	Fingerprint models.MediaFingerprint
}

// Scanner walks library folders looking for media files.
type Scanner struct {
	caseInsensitivePaths bool
}

func NewScanner(caseInsensitivePaths bool) *Scanner {
	return &Scanner{caseInsensitivePaths: caseInsensitivePaths}
}

// MaxDepthForKind returns the recursion depth FolderScan applies for a
// library kind: movies are scanned flat (0 = folderPath only), series
// recurse exactly one level to pick up season subdirectories.
func MaxDepthForKind(kind models.LibraryKind) int {
	if kind == models.LibrarySeries {
		return 1
	}
	return 0
}

// Walk enumerates eligible video files under folderPath down to maxDepth
// directory levels (0 = folderPath itself only, no subdirectories),
// fingerprinting each one concurrently. A hung network mount is detected
// via a bounded stat and skipped rather than blocking the whole scan;
// symlinked directories already visited (by resolved path) are not walked
// twice.
func (s *Scanner) Walk(ctx context.Context, folderPath string, maxDepth int) ([]DiscoveredFile, []error) {
	if err := s.checkMount(folderPath); err != nil {
		return nil, []error{err}
	}
	root := filepath.Clean(folderPath)

	visited := make(map[string]bool)
	pathCh := make(chan string, numWalkWorkers*4)
	resultCh := make(chan DiscoveredFile, numWalkWorkers*4)
	errCh := make(chan error, numWalkWorkers*4)

	var workers sync.WaitGroup
	for i := 0; i < numWalkWorkers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for path := range pathCh {
				fp, err := fingerprint.Identify(path)
				if err != nil {
					errCh <- fmt.Errorf("%s: %w", path, err)
					continue
				}
				resultCh <- DiscoveredFile{Path: path, Fingerprint: fp}
			}
		}()
	}

	walkErr := make(chan error, 1)
	go func() {
		walkErr <- filepath.WalkDir(folderPath, func(path string, d os.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				return nil // inaccessible entries are skipped, not fatal
			}
			if d.IsDir() {
				if path != root && depthOf(root, path) > maxDepth {
					return filepath.SkipDir
				}
				real, evalErr := filepath.EvalSymlinks(path)
				if evalErr != nil {
					return nil
				}
				if visited[real] {
					return filepath.SkipDir
				}
				visited[real] = true
				return nil
			}
			if !IsVideoFile(path) {
				return nil
			}
			pathCh <- path
			return nil
		})
		close(pathCh)
	}()

	go func() {
		workers.Wait()
		close(resultCh)
		close(errCh)
	}()

	var files []DiscoveredFile
	var errs []error
	resultsOpen, errsOpen := true, true
	for resultsOpen || errsOpen {
		select {
		case f, ok := <-resultCh:
			if !ok {
				resultsOpen = false
				continue
			}
			files = append(files, f)
		case e, ok := <-errCh:
			if !ok {
				errsOpen = false
				continue
			}
			errs = append(errs, e)
		}
	}

	if err := <-walkErr; err != nil && err != context.Canceled {
		errs = append(errs, fmt.Errorf("walk %s: %w", folderPath, err))
	}
	return files, errs
}

// depthOf returns how many directory levels path sits below root.
func depthOf(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

// checkMount stats folderPath with a bounded timeout so a hung NFS/SMB
// mount can't block an entire scan indefinitely.
func (s *Scanner) checkMount(folderPath string) error {
	ctx, cancel := context.WithTimeout(context.Background(), mountStatTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := os.Stat(folderPath)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return joberr.Wrap(joberr.ErrTransient, fmt.Errorf("mount timeout statting %s (possible hung NFS/SMB)", folderPath))
	case err := <-done:
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return joberr.Wrap(joberr.ErrGone, fmt.Errorf("stat %s: %w", folderPath, err))
			}
			if errors.Is(err, fs.ErrPermission) {
				return joberr.Wrap(joberr.ErrSkip, fmt.Errorf("stat %s: %w", folderPath, err))
			}
			return joberr.Wrap(joberr.ErrTransient, fmt.Errorf("stat %s: %w", folderPath, err))
		}
		return nil
	}
}

// NormalizePath exposes the scanner's path-identity convention to callers
// building dedupe keys from a discovered file.
func (s *Scanner) NormalizePath(path string) (string, error) {
	return fingerprint.NormalizePath(path, s.caseInsensitivePaths)
}
