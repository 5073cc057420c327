package joberr

import (
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/brightloom/reelvault/internal/config"
)

func TestClassifyRecognizesFilesystemSentinels(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Classification
	}{
		{"gone-sentinel", Wrap(ErrGone, fmt.Errorf("boom")), Gone},
		{"not-exist", fmt.Errorf("stat x: %w", fs.ErrNotExist), Gone},
		{"skip-sentinel", Wrap(ErrSkip, fmt.Errorf("boom")), Skip},
		{"permission", fmt.Errorf("stat x: %w", fs.ErrPermission), Skip},
		{"throttled", Wrap(ErrThrottled, fmt.Errorf("429")), Throttled},
		{"permanent", Wrap(ErrPermanent, fmt.Errorf("bad payload")), Permanent},
		{"unrecognized-defaults-transient", fmt.Errorf("connection reset"), Transient},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Classify(c.err); got != c.want {
				t.Errorf("Classify(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}

func TestNextBackoffUsesFastRetryWindowOnFirstAttempt(t *testing.T) {
	cfg := config.OrchestratorConfig{
		FastRetryWindow: 30 * time.Second,
		BackoffBase:     2 * time.Second,
		BackoffMax:      10 * time.Minute,
	}
	if got := NextBackoff(cfg, 1, Transient); got != cfg.FastRetryWindow {
		t.Errorf("expected fast retry window on first attempt, got %s", got)
	}
}

func TestNextBackoffCapsAtBackoffMax(t *testing.T) {
	cfg := config.OrchestratorConfig{
		FastRetryWindow:   30 * time.Second,
		BackoffBase:       2 * time.Second,
		BackoffMax:        1 * time.Minute,
		BackoffJitterFrac: 0,
	}
	got := NextBackoff(cfg, 20, Transient)
	if got > cfg.BackoffMax {
		t.Errorf("expected backoff capped at %s, got %s", cfg.BackoffMax, got)
	}
}

func TestHeavyLibraryTrackerExpiresOldEvents(t *testing.T) {
	tracker := NewHeavyLibraryTracker(time.Minute)
	now := time.Now()
	tracker.RecordRetry("lib1", now.Add(-2*time.Minute))
	tracker.RecordRetry("lib1", now)
	if tracker.IsHeavy("lib1", 2) {
		t.Error("expected the 2-minute-old event to have expired out of the window")
	}
	tracker.RecordRetry("lib1", now)
	if !tracker.IsHeavy("lib1", 2) {
		t.Error("expected two recent events within the window to count as heavy")
	}
}
