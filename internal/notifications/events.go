// Package notifications publishes scan-orchestrator state changes to a
// Redis channel. It is a thin fire-and-forget wire to the out-of-scope
// HTTP/SSE layer, not a delivery-guaranteed queue: a publish with no
// subscriber connected is simply dropped, the same way the teacher's
// webhook sender drops a notification no channel is listening for.
package notifications

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventType categorizes a published state change.
type EventType string

const (
	EventJobCompleted  EventType = "job_completed"
	EventJobFailed     EventType = "job_failed"
	EventJobDeadLetter EventType = "job_dead_letter"
	EventScanProgress  EventType = "scan_progress"
)

// Event is the payload published on the shared channel.
type Event struct {
	Type      EventType `json:"type"`
	LibraryID uuid.UUID `json:"library_id,omitempty"`
	JobID     uuid.UUID `json:"job_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

const channelName = "reelvault:events"

// EventNotifier publishes job/scan events to Redis pub/sub.
type EventNotifier struct {
	client *redis.Client
}

func NewEventNotifier(addr string) *EventNotifier {
	return &EventNotifier{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Publish sends ev on the shared event channel. A publish failure (Redis
// unreachable, encoding error) is logged, not propagated; an event with no
// subscribers is not an error and is dropped silently, so job processing
// never blocks on whether anything is listening.
func (n *EventNotifier) Publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	ev.At = ev.At.UTC()
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[notifications] encode event: %v", err)
		return
	}
	if err := n.client.Publish(ctx, channelName, data).Err(); err != nil {
		log.Printf("[notifications] publish event: %v", err)
	}
}

func (n *EventNotifier) Close() error {
	return n.client.Close()
}
