package segment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brightloom/reelvault/internal/models"
)

func TestWaitForSegmentReturnsCompletedData(t *testing.T) {
	g := NewGenerator("ffmpeg", nil, NewCache(1024), time.Second)
	task := &generationTask{done: make(chan struct{})}
	task.status = models.SegmentCompleted
	task.data = []byte("seg")
	close(task.done)

	data, err := g.waitForSegment(context.Background(), task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "seg" {
		t.Errorf("got %q, want %q", data, "seg")
	}
}

func TestWaitForSegmentReturnsFailureErr(t *testing.T) {
	g := NewGenerator("ffmpeg", nil, NewCache(1024), time.Second)
	task := &generationTask{done: make(chan struct{})}
	task.status = models.SegmentFailed
	task.failedErr = errors.New("encode failed")
	close(task.done)

	_, err := g.waitForSegment(context.Background(), task)
	if err == nil || err.Error() != "encode failed" {
		t.Errorf("got %v, want encode failed", err)
	}
}

func TestWaitForSegmentTimesOut(t *testing.T) {
	g := NewGenerator("ffmpeg", nil, NewCache(1024), 10*time.Millisecond)
	task := &generationTask{done: make(chan struct{})} // never closed

	_, err := g.waitForSegment(context.Background(), task)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestCleanupStaleTasksPrunesOnlyFinishedAndOld(t *testing.T) {
	g := NewGenerator("ffmpeg", nil, NewCache(1024), time.Second)
	old := &generationTask{status: models.SegmentCompleted, startedAt: time.Now().Add(-time.Hour), done: make(chan struct{})}
	fresh := &generationTask{status: models.SegmentCompleted, startedAt: time.Now(), done: make(chan struct{})}
	inflight := &generationTask{status: models.SegmentGenerating, startedAt: time.Now().Add(-time.Hour), done: make(chan struct{})}

	g.tasks[key(0)] = old
	g.tasks[key(1)] = fresh
	g.tasks[key(2)] = inflight

	g.CleanupStaleTasks(10 * time.Minute)

	if _, ok := g.tasks[key(0)]; ok {
		t.Errorf("expected old finished task to be pruned")
	}
	if _, ok := g.tasks[key(1)]; !ok {
		t.Errorf("expected fresh finished task to survive")
	}
	if _, ok := g.tasks[key(2)]; !ok {
		t.Errorf("expected in-flight task to survive regardless of age")
	}
}
