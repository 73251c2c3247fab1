// Package eventbus provides a typed pub/sub abstraction for the
// outbound Activity and system-event streams (spec.md §6, §9's "ambient
// callbacks" redesign note). It mirrors the teacher's event-bus
// provider (internal/events/bus/bus.go), narrowed to two subjects:
// git.activity.<project_id> and git.system.<project_id>. The coordinator
// publishes activities on the first; no component of this module
// publishes on the system subject.
package eventbus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is one message on the bus.
type Event struct {
	ID        string
	Type      string
	Source    string
	Timestamp time.Time
	Data      map[string]any
}

// NewEvent creates an Event stamped with a fresh id and the current time.
func NewEvent(eventType, source string, data map[string]any) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Handler processes one delivered Event.
type Handler func(ctx context.Context, event *Event) error

// Subscription represents one active subscription.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// Bus is the typed pub/sub surface the coordinator publishes activities
// and system events onto.
type Bus interface {
	Publish(ctx context.Context, subject string, event *Event) error
	Subscribe(subject string, handler Handler) (Subscription, error)
	Close()
	IsConnected() bool
}

// ActivitySubject returns the subject an Activity for projectID is
// published on.
func ActivitySubject(projectID string) string {
	return "git.activity." + projectID
}

// SystemSubject returns the subject a system event (watchingOn,
// watchingOff, error) for projectID is published on.
func SystemSubject(projectID string) string {
	return "git.system." + projectID
}
