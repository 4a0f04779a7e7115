// Package models defines the persisted entities for proxyforge.
package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UUID wraps uuid.UUID for database storage as a primary key.
// Job, ClipTask, and WatchFolder identities are server-generated UUIDs.
type UUID uuid.UUID

// NewUUID generates a new random UUID.
func NewUUID() UUID {
	return UUID(uuid.New())
}

// ParseUUID parses a UUID string.
func ParseUUID(s string) (UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, fmt.Errorf("invalid UUID: %w", err)
	}
	return UUID(id), nil
}

// MustParseUUID parses a UUID string and panics on error.
func MustParseUUID(s string) UUID {
	id, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the canonical string representation of the UUID.
func (u UUID) String() string {
	return uuid.UUID(u).String()
}

// Short returns the first 8 characters of the UUID, used in report filenames.
func (u UUID) Short() string {
	return u.String()[:8]
}

// IsZero returns true if the UUID is the zero value.
func (u UUID) IsZero() bool {
	return uuid.UUID(u) == uuid.UUID{}
}

// Value implements driver.Valuer for database storage.
func (u UUID) Value() (driver.Value, error) {
	if u.IsZero() {
		return nil, nil
	}
	return u.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (u *UUID) Scan(value any) error {
	if value == nil {
		*u = UUID{}
		return nil
	}

	switch v := value.(type) {
	case string:
		if v == "" {
			*u = UUID{}
			return nil
		}
		id, err := uuid.Parse(v)
		if err != nil {
			return fmt.Errorf("scanning UUID: %w", err)
		}
		*u = UUID(id)
	case []byte:
		if len(v) == 0 {
			*u = UUID{}
			return nil
		}
		id, err := uuid.Parse(string(v))
		if err != nil {
			return fmt.Errorf("scanning UUID: %w", err)
		}
		*u = UUID(id)
	default:
		return fmt.Errorf("unsupported type for UUID: %T", value)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (u UUID) MarshalJSON() ([]byte, error) {
	if u.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + u.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *UUID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*u = UUID{}
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid UUID JSON: %s", string(data))
	}
	s := string(data[1 : len(data)-1])
	if s == "" {
		*u = UUID{}
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return fmt.Errorf("parsing UUID JSON: %w", err)
	}
	*u = UUID(id)
	return nil
}

// GormDataType returns the GORM data type for UUID.
func (UUID) GormDataType() string {
	return "varchar(36)"
}

// Now returns the current instant in UTC. All persisted timestamps are UTC;
// ordering and comparison are done on the instant, not the rendered string.
func Now() time.Time {
	return time.Now().UTC()
}

// FormatInstant renders an instant as an ISO-8601 UTC string.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseInstant parses an ISO-8601 UTC string back to an instant.
// The round-trip preserves the instant.
func ParseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing instant %q: %w", s, err)
	}
	return t.UTC(), nil
}
