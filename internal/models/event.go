package models

import (
	"crypto/rand"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// EventType classifies an execution timeline entry.
type EventType string

const (
	EventJobCreated         EventType = "JOB_CREATED"
	EventExecutionStarted   EventType = "EXECUTION_STARTED"
	EventExecutionPaused    EventType = "EXECUTION_PAUSED"
	EventExecutionResumed   EventType = "EXECUTION_RESUMED"
	EventExecutionCancelled EventType = "EXECUTION_CANCELLED"
	EventExecutionCompleted EventType = "EXECUTION_COMPLETED"
	EventExecutionFailed    EventType = "EXECUTION_FAILED"
	EventClipQueued         EventType = "CLIP_QUEUED"
	EventClipStarted        EventType = "CLIP_STARTED"
	EventClipCompleted      EventType = "CLIP_COMPLETED"
	EventClipFailed         EventType = "CLIP_FAILED"
	EventEngineSelected     EventType = "ENGINE_SELECTED"
	EventProgressUpdate     EventType = "PROGRESS_UPDATE"
)

// EventID wraps a ULID. ULIDs are lexicographically time-ordered, which gives
// the per-job timeline its insertion-order tie-break when instants collide.
type EventID ulid.ULID

// NewEventID generates a new event id.
func NewEventID() EventID {
	return EventID(ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader))
}

// ParseEventID parses an event id string.
func ParseEventID(s string) (EventID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return EventID{}, fmt.Errorf("invalid event id: %w", err)
	}
	return EventID(id), nil
}

// String returns the string representation of the event id.
func (e EventID) String() string {
	return ulid.ULID(e).String()
}

// IsZero returns true if the event id is the zero value.
func (e EventID) IsZero() bool {
	return ulid.ULID(e).Compare(ulid.ULID{}) == 0
}

// Value implements driver.Valuer.
func (e EventID) Value() (driver.Value, error) {
	if e.IsZero() {
		return nil, nil
	}
	return e.String(), nil
}

// Scan implements sql.Scanner.
func (e *EventID) Scan(value any) error {
	if value == nil {
		*e = EventID{}
		return nil
	}
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("unsupported type for event id: %T", value)
	}
	if s == "" {
		*e = EventID{}
		return nil
	}
	id, err := ulid.Parse(s)
	if err != nil {
		return fmt.Errorf("scanning event id: %w", err)
	}
	*e = EventID(id)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e EventID) MarshalJSON() ([]byte, error) {
	if e.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + e.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *EventID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*e = EventID{}
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid event id JSON: %s", string(data))
	}
	return e.Scan(string(data[1 : len(data)-1]))
}

// GormDataType returns the GORM data type for EventID.
func (EventID) GormDataType() string {
	return "varchar(26)"
}

// ExecutionEvent is one append-only timeline entry for a job. Events are
// never mutated or deleted; ordering within a job is by recorded instant,
// ties broken by event id (insertion order).
type ExecutionEvent struct {
	ID    EventID `gorm:"primarykey;type:varchar(26)" json:"event_id"`
	JobID UUID    `gorm:"not null;type:varchar(36);index" json:"job_id"`

	Type       EventType `gorm:"not null;size:40" json:"event_type"`
	RecordedAt time.Time `gorm:"not null;index" json:"recorded_at"`

	ClipID  *UUID  `gorm:"type:varchar(36)" json:"clip_id,omitempty"`
	Message string `gorm:"size:4096" json:"message,omitempty"`
}

// TableName returns the table name for ExecutionEvent.
func (ExecutionEvent) TableName() string {
	return "execution_events"
}

// BeforeCreate generates the event id and instant if not already set.
func (e *ExecutionEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID.IsZero() {
		e.ID = NewEventID()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = Now()
	}
	return nil
}
