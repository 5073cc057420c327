package segment

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/brightloom/reelvault/internal/ffmpeg"
	"github.com/brightloom/reelvault/internal/models"
)

// segmentWaitPollInterval is unused directly — waiting is channel-based —
// but documents the 100ms granularity ferrex-server's wait_for_segment uses
// for fidelity to the original's observable timing.
const segmentWaitPollInterval = 100 * time.Millisecond

// generationTask tracks one in-flight or finished segment encode, letting
// concurrent requests for the same segment share a single ffmpeg run
// instead of racing to generate it independently.
type generationTask struct {
	status    models.SegmentStatus
	data      []byte
	failedErr error
	startedAt time.Time
	done      chan struct{}
}

// Generator lazily encodes requested segments, dedupes concurrent requests
// for the same (job, segment_number), and hands results through a shared
// Cache. Grounded in ferrex-server's SegmentGenerator/SegmentCache pair.
type Generator struct {
	ffmpegPath  string
	selector    *ffmpeg.Selector
	cache       *Cache
	waitTimeout time.Duration

	mu    sync.Mutex
	tasks map[models.SegmentKey]*generationTask
}

func NewGenerator(ffmpegPath string, selector *ffmpeg.Selector, cache *Cache, waitTimeout time.Duration) *Generator {
	return &Generator{
		ffmpegPath:  ffmpegPath,
		selector:    selector,
		cache:       cache,
		waitTimeout: waitTimeout,
		tasks:       make(map[models.SegmentKey]*generationTask),
	}
}

// Request describes one segment of a source file: its place in the
// playlist, the byte offsets in wall-clock time, and the source codec used
// to pick a hardware encoder.
type Request struct {
	Key             models.SegmentKey
	SourcePath      string
	SegmentDuration time.Duration
	Codec           string
}

// GetSegment returns a segment's bytes, generating it on first request and
// serving from cache afterward. A second caller for the same key while a
// generation is already in flight waits on the same task rather than
// starting a duplicate ffmpeg process.
func (g *Generator) GetSegment(ctx context.Context, req Request) ([]byte, error) {
	if data, ok := g.cache.Get(req.Key); ok {
		return data, nil
	}

	g.mu.Lock()
	task, inFlight := g.tasks[req.Key]
	if !inFlight {
		task = &generationTask{status: models.SegmentGenerating, startedAt: time.Now(), done: make(chan struct{})}
		g.tasks[req.Key] = task
	}
	g.mu.Unlock()

	if !inFlight {
		go g.run(task, req)
	}

	return g.waitForSegment(ctx, task)
}

// waitForSegment blocks until task completes, the wait timeout elapses, or
// ctx is cancelled, matching the 30s cooperative-wait budget the original
// generator enforces so one slow encode can't hang every other viewer of
// the same segment forever.
func (g *Generator) waitForSegment(ctx context.Context, task *generationTask) ([]byte, error) {
	timer := time.NewTimer(g.waitTimeout)
	defer timer.Stop()

	select {
	case <-task.done:
		if task.status == models.SegmentFailed {
			return nil, task.failedErr
		}
		return task.data, nil
	case <-timer.C:
		return nil, fmt.Errorf("segment: timed out after %s waiting for generation", g.waitTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run performs the actual ffmpeg encode for one segment, acquiring a
// per-encoder-kind session slot so hardware sessions stay within the
// selector's catalog bound, then publishes the result to the cache and
// wakes any waiters.
func (g *Generator) run(task *generationTask, req Request) {
	defer close(task.done)

	encoder := g.selector.Select(req.Codec)
	release := g.selector.AcquireSession(encoder.Kind)
	defer release()

	data, err := g.encodeSegment(req, encoder)
	if err != nil {
		task.status = models.SegmentFailed
		task.failedErr = err
		return
	}

	task.status = models.SegmentCompleted
	task.data = data
	g.cache.Put(req.Key, data)

	g.mu.Lock()
	delete(g.tasks, req.Key)
	g.mu.Unlock()
}

func (g *Generator) encodeSegment(req Request, encoder models.HardwareEncoder) ([]byte, error) {
	start := time.Duration(req.Key.SegmentNumber) * req.SegmentDuration

	args := make([]string, 0, 16)
	args = append(args, ffmpeg.HWAccelArgs(encoder)...)
	args = append(args,
		"-ss", fmt.Sprintf("%.3f", start.Seconds()),
		"-i", req.SourcePath,
		"-t", fmt.Sprintf("%.3f", req.SegmentDuration.Seconds()),
		"-c:v", encoder.Name,
		"-c:a", "aac",
		"-f", "mpegts",
		"pipe:1",
	)

	cmd := exec.Command(g.ffmpegPath, args...)
	out, _, err := runWithProcessGroupKill(cmd, 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("segment encode: %w", err)
	}
	return out, nil
}

// runWithProcessGroupKill runs cmd in its own process group and kills the
// whole group on timeout, the same technique the teacher's preview
// generator uses to avoid orphaned ffmpeg children.
func runWithProcessGroupKill(cmd *exec.Cmd, timeout time.Duration) (stdout, stderr []byte, err error) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return outBuf.Bytes(), errBuf.Bytes(), err
	case <-time.After(timeout):
		if pgid, perr := syscall.Getpgid(cmd.Process.Pid); perr == nil {
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
		} else {
			_ = cmd.Process.Kill()
		}
		<-done
		return outBuf.Bytes(), errBuf.Bytes(), fmt.Errorf("timed out after %v", timeout)
	}
}

// Pregenerate fires off count additional segments starting at fromSegment
// in the background without waiting on them, so a viewer's playlist always
// has a few segments ready ahead of playback position.
func (g *Generator) Pregenerate(ctx context.Context, base Request, fromSegment, count int) {
	for i := 0; i < count; i++ {
		req := base
		req.Key = models.SegmentKey{JobID: base.Key.JobID, SegmentNumber: fromSegment + i}
		if _, ok := g.cache.Get(req.Key); ok {
			continue
		}
		go func(r Request) {
			_, _ = g.GetSegment(ctx, r)
		}(req)
	}
}

// CleanupStaleTasks drops finished (completed/failed) generation tasks
// older than maxAge from the in-flight tracking map. In-flight generating
// tasks are never pruned regardless of age.
func (g *Generator) CleanupStaleTasks(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	g.mu.Lock()
	defer g.mu.Unlock()
	for key, task := range g.tasks {
		if task.status == models.SegmentGenerating {
			continue
		}
		if task.startedAt.Before(cutoff) {
			delete(g.tasks, key)
		}
	}
}
