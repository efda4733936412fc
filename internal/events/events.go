// Package events announces domain changes on an AMQP topic exchange.
// Publishing is best effort: callers log failures and move on.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"findash/internal/core"
	applog "findash/internal/log"
)

type Type string

const (
	RecordCreated   Type = "record.created"
	RecordUpdated   Type = "record.updated"
	RecordDeleted   Type = "record.deleted"
	LookupsChanged  Type = "lookups.changed"
	BackupCompleted Type = "backup.completed"
	StoreRestored   Type = "store.restored"
)

// Event is the message body. The type doubles as the routing key.
type Event struct {
	Type       Type            `json:"type"`
	ID         *int64          `json:"id,omitempty"`
	RecordType core.RecordType `json:"recordType,omitempty"`
	Lookup     string          `json:"lookup,omitempty"`
	Name       string          `json:"name,omitempty"`
	At         time.Time       `json:"at"`
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func FromJSON(data []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return e, err
}

func RecordEvent(t Type, typ core.RecordType, id int64, at time.Time) Event {
	return Event{Type: t, ID: &id, RecordType: typ, At: at.UTC()}
}

// Publisher sends events somewhere.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop discards every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// Emit publishes e and logs a failure instead of returning it.
func Emit(ctx context.Context, p Publisher, logger *slog.Logger, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.WarnContext(ctx, "Event not published", applog.FieldEventType, e.Type, applog.FieldError, err)
	}
}
