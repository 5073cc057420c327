// Package joberr classifies worker errors by retry behavior rather than by
// Go type, and computes the retry/backoff schedule that follows from a
// classification. It sits below internal/jobs so both the engine and
// leaf packages (fingerprint, scanner, metadata, segment) can wrap their
// own errors with these sentinels without creating an import cycle.
package joberr

import (
	"errors"
	"io/fs"
	"math/rand"
	"syscall"
	"time"

	"github.com/brightloom/reelvault/internal/config"
)

// Classification groups errors by how the orchestrator should react,
// matching spec.md §7's Gone/Skip/Transient/Permanent/Throttled/Cancelled
// taxonomy.
type Classification int

const (
	Gone Classification = iota
	Skip
	Transient
	Permanent
	Throttled
	Cancelled
)

var (
	ErrGone      = errors.New("resource gone")
	ErrSkip      = errors.New("resource skipped")
	ErrTransient = errors.New("transient failure")
	ErrPermanent = errors.New("permanent failure")
	ErrThrottled = errors.New("throttled")
	ErrCancelled = errors.New("cancelled")
)

// Classify inspects a worker error and returns its retry classification,
// recognizing the sentinels above, common filesystem errors (ENOENT ->
// Gone, EACCES -> Skip), and context cancellation. Unrecognized errors
// default to Transient, the safe "retry with backoff" choice.
func Classify(err error) Classification {
	switch {
	case err == nil:
		return Transient
	case errors.Is(err, ErrGone), errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOENT):
		return Gone
	case errors.Is(err, ErrSkip), errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EACCES):
		return Skip
	case errors.Is(err, ErrPermanent):
		return Permanent
	case errors.Is(err, ErrThrottled):
		return Throttled
	case errors.Is(err, ErrCancelled):
		return Cancelled
	case errors.Is(err, ErrTransient):
		return Transient
	default:
		return Transient
	}
}

// Wrap ties an underlying cause to a classification sentinel so Classify
// can recover it later via errors.Is, while preserving the original
// message via Error().
func Wrap(sentinel, cause error) error {
	return &wrapped{sentinel: sentinel, cause: cause}
}

type wrapped struct {
	sentinel error
	cause    error
}

func (w *wrapped) Error() string { return w.cause.Error() }
func (w *wrapped) Unwrap() error { return w.sentinel }

// NextBackoff computes the delay before the next retry attempt: exponential
// growth from BackoffBase capped at BackoffMax, with +/-jitter, a fast-retry
// window for the first attempt, and an extra slowdown factor for throttled
// causes.
func NextBackoff(cfg config.OrchestratorConfig, attempts int, class Classification) time.Duration {
	if attempts <= 1 {
		return cfg.FastRetryWindow
	}

	base := float64(cfg.BackoffBase)
	for i := 1; i < attempts; i++ {
		base *= 2
		if base > float64(cfg.BackoffMax) {
			base = float64(cfg.BackoffMax)
			break
		}
	}
	if class == Throttled {
		base *= cfg.HeavyLibraryFactor
		if base > float64(cfg.BackoffMax) {
			base = float64(cfg.BackoffMax)
		}
	}

	jitter := base * cfg.BackoffJitterFrac
	delta := (rand.Float64()*2 - 1) * jitter
	result := time.Duration(base + delta)
	if result < 0 {
		result = cfg.FastRetryWindow
	}
	return result
}

// HeavyLibraryTracker counts retry-heavy jobs per library over a sliding
// window given at construction, to detect libraries whose files are
// systematically failing. Nothing in the job engine records retries into
// it, and NextBackoff does not consult it: HeavyLibraryFactor is applied
// only to Throttled failures.
type HeavyLibraryTracker struct {
	window time.Duration
	events map[string][]time.Time
}

func NewHeavyLibraryTracker(window time.Duration) *HeavyLibraryTracker {
	return &HeavyLibraryTracker{window: window, events: make(map[string][]time.Time)}
}

func (t *HeavyLibraryTracker) RecordRetry(libraryID string, at time.Time) {
	cutoff := at.Add(-t.window)
	events := t.events[libraryID]
	kept := events[:0]
	for _, e := range events {
		if e.After(cutoff) {
			kept = append(kept, e)
		}
	}
	t.events[libraryID] = append(kept, at)
}

// IsHeavy reports whether a library has crossed the retry-count threshold
// within the tracking window.
func (t *HeavyLibraryTracker) IsHeavy(libraryID string, threshold int) bool {
	return len(t.events[libraryID]) >= threshold
}
