package jobs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/brightloom/reelvault/internal/models"
	"github.com/brightloom/reelvault/internal/preview"
)

// tmdbImageBaseURL is TMDB's unauthenticated image CDN; no API key is
// needed to fetch a poster/backdrop once its relative path is known.
const tmdbImageBaseURL = "https://image.tmdb.org/t/p/original"

// ImageFetchDeps collects the collaborators the ImageFetch worker needs.
type ImageFetchDeps struct {
	HTTPClient *http.Client
	Preview    *preview.Generator
	CacheDir   string
}

// NewImageFetchWork builds the ImageFetch worker: download a remote TMDB
// image, writing through a temp file and atomic rename so a reader never
// observes a partially written download, or generate a local episode
// thumbnail, which ffmpeg writes directly into the preview generator's
// output directory.
func NewImageFetchWork(d ImageFetchDeps) WorkFunc {
	client := d.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return func(ctx context.Context, job *models.Job) error {
		p := job.Payload.ImageFetch

		destDir := filepath.Join(d.CacheDir, p.MediaType, p.MediaID.String())
		if err := os.MkdirAll(destDir, 0755); err != nil {
			return fmt.Errorf("create image cache dir: %w", err)
		}
		destPath := filepath.Join(destDir, fmt.Sprintf("%s_%d.jpg", p.ImageType, p.OrderIndex))

		switch p.Source.Kind {
		case models.ImageSourceTMDB:
			return downloadAtomic(ctx, client, tmdbImageBaseURL+p.Source.TMDBPath, destPath)
		case models.ImageSourceEpisodeThumbnail:
			_, err := d.Preview.GenerateThumbnail(p.Source.MediaFileID.String(), p.Source.SourcePath, p.Source.DurationSec)
			return err
		default:
			return fmt.Errorf("unknown image source kind %q", p.Source.Kind)
		}
	}
}

// downloadAtomic fetches url into destPath via a sibling temp file, fsync,
// and rename, so a crash or concurrent reader never sees a truncated file.
func downloadAtomic(ctx context.Context, client *http.Client, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build image request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch image %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch image %s: status %d", url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp image file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("write image body: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync image file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp image file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename image into place: %w", err)
	}
	return nil
}
