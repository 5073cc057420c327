package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/brightloom/reelvault/internal/models"
)

func TestWalkFindsMediaFilesAndSkipsOthers(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "movie.mkv"), "data")
	mustWrite(t, filepath.Join(dir, "readme.txt"), "not media")
	sub := filepath.Join(dir, "Season 01")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(sub, "episode.mp4"), "data")

	s := NewScanner(false)
	files, errs := s.Walk(context.Background(), dir, 1)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 media files, got %d: %+v", len(files), files)
	}
	for _, f := range files {
		if f.Fingerprint.Size == 0 {
			t.Errorf("expected non-zero size for %s", f.Path)
		}
	}
}

func TestWalkMovieDepthZeroSkipsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "movie.mkv"), "data")
	sub := filepath.Join(dir, "extras")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(sub, "behind-the-scenes.mp4"), "data")

	s := NewScanner(false)
	files, errs := s.Walk(context.Background(), dir, MaxDepthForKind(models.LibraryMovies))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(files) != 1 {
		t.Fatalf("expected depth-0 walk to find only the root file, got %d: %+v", len(files), files)
	}
}

func TestWalkReportsErrorForMissingPath(t *testing.T) {
	s := NewScanner(false)
	_, errs := s.Walk(context.Background(), "/nonexistent/does/not/exist", 1)
	if len(errs) == 0 {
		t.Fatal("expected an error for a missing scan root")
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}
