// Package jobs implements the scan orchestrator's priority queue, admission
// control, leasing, retry/backoff, budget governance, and per-kind worker
// handlers on top of a Postgres-backed state machine with asynq as the
// distributed execution transport.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/brightloom/reelvault/internal/models"
)

// taskType returns the asynq task type for a job kind's dispatch-trigger
// task. The task body only carries the job ID; the real state lives in
// Postgres via JobRepository, since asynq alone cannot express leases,
// merge-priority admission, or attempts bookkeeping.
func taskType(kind models.JobKind) string {
	return "dispatch:" + kind.Short()
}

type dispatchPayload struct {
	JobID string `json:"job_id"`
}

// Queue wraps asynq as the transport substrate: an Enqueue with a
// deterministic TaskID backs the fast-path dedupe notification that wakes a
// worker as soon as a job is admitted, while RegisterHandler/Start/Stop run
// the asynq consumer loop.
type Queue struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	inspector *asynq.Inspector
}

func NewQueue(redisAddr string) *Queue {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	client := asynq.NewClient(redisOpt)
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 8,
				"default":  4,
				"low":      1,
			},
		},
	)
	mux := asynq.NewServeMux()
	inspector := asynq.NewInspector(redisOpt)
	return &Queue{client: client, server: server, mux: mux, inspector: inspector}
}

// isTaskConflict checks whether the error indicates a task ID conflict,
// using errors.Is for unwrapped sentinel values and a string fallback.
func isTaskConflict(err error) bool {
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "task ID conflicts") || strings.Contains(msg, "duplicate task")
}

// NotifyDispatch wakes a worker for the given job kind/id using a
// deterministic TaskID so redundant notifications for the same job
// collapse into one queued wakeup. If a completed/archived task with the
// same ID is lingering, it is cleared first; if the task is still
// active, the conflict is treated as a harmless no-op.
func (q *Queue) NotifyDispatch(kind models.JobKind, jobID string) error {
	data, err := json.Marshal(dispatchPayload{JobID: jobID})
	if err != nil {
		return fmt.Errorf("marshal dispatch payload: %w", err)
	}
	tt := taskType(kind)
	task := asynq.NewTask(tt, data, asynq.TaskID(tt+":"+jobID))
	_, err = q.client.Enqueue(task, asynq.Queue(queueForKind(kind)))
	if err == nil {
		return nil
	}
	if !isTaskConflict(err) {
		return fmt.Errorf("enqueue dispatch: %w", err)
	}
	for _, queueName := range []string{"default", "critical", "low"} {
		if delErr := q.inspector.DeleteTask(queueName, tt+":"+jobID); delErr == nil {
			_, err = q.client.Enqueue(task, asynq.Queue(queueForKind(kind)))
			if err == nil {
				return nil
			}
			break
		}
	}
	if isTaskConflict(err) {
		return nil
	}
	return fmt.Errorf("enqueue dispatch: %w", err)
}

func queueForKind(kind models.JobKind) string {
	switch kind {
	case models.KindIndexUpsert, models.KindImageFetch:
		return "critical"
	case models.KindFolderScan:
		return "low"
	default:
		return "default"
	}
}

// RegisterHandler wires an asynq handler for a job kind's dispatch task.
// Handlers should treat the payload purely as a wakeup signal and re-read
// job state from JobRepository before acting.
func (q *Queue) RegisterHandler(kind models.JobKind, handler asynq.HandlerFunc) {
	q.mux.HandleFunc(taskType(kind), handler)
}

func (q *Queue) Start(ctx context.Context) error {
	log.Println("[jobs] worker transport starting")
	return q.server.Start(q.mux)
}

func (q *Queue) Stop() {
	q.server.Shutdown()
	q.client.Close()
	q.inspector.Close()
}
