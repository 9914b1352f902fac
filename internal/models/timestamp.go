package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the wire format for every instant in a Snapshot:
// ISO-8601, UTC, second precision.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Timestamp is an instant whose zero value means "unknown".
// Directory attributes that were absent or failed to parse are carried as the
// zero Timestamp and serialise as JSON null, never as the Unix epoch.
type Timestamp struct {
	time.Time
}

// NewTimestamp returns t truncated to whole seconds in UTC.
func NewTimestamp(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{Time: t.UTC().Truncate(time.Second)}
}

// Known reports whether the timestamp carries a value.
func (t Timestamp) Known() bool {
	return !t.IsZero()
}

// DaysSince returns the whole days elapsed between t and now.
// The second return value is false when t is unknown.
func (t Timestamp) DaysSince(now time.Time) (int, bool) {
	if !t.Known() {
		return 0, false
	}
	return int(now.Sub(t.Time).Hours() / 24), true
}

// String renders the timestamp in TimestampLayout, or "Never" when unknown.
func (t Timestamp) String() string {
	if !t.Known() {
		return "Never"
	}
	return t.UTC().Format(TimestampLayout)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Known() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(TimestampLayout))
}

// UnmarshalJSON implements json.Unmarshaler. It accepts null, RFC 3339
// strings with or without fractional seconds, and the PowerShell
// "/Date(1700000000000)/" encoding.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTimestamp parses the textual timestamp encodings seen in directory
// exports. An empty string yields the unknown Timestamp without error.
func ParseTimestamp(s string) (Timestamp, error) {
	if s == "" {
		return Timestamp{}, nil
	}
	var ms int64
	if _, err := fmt.Sscanf(s, "/Date(%d)/", &ms); err == nil {
		return NewTimestamp(time.UnixMilli(ms)), nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "1/2/2006 3:04:05 PM"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			return NewTimestamp(parsed), nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognised timestamp %q", s)
}
