// Package core holds the domain types shared by the processor and the
// watcher: incoming error events, per-issue aggregates and evaluation
// windows.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Timestamp layouts accepted on inbound events. The exporter emits
// fractional-second UTC timestamps; RFC3339 is accepted as a fallback
// for synthetic events.
var eventTimeLayouts = []string{
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02T15:04:05Z",
	time.RFC3339Nano,
}

var (
	// ErrNoFingerprint is returned for events that carry no issue identifier.
	ErrNoFingerprint = errors.New("event has no fingerprint")
	// ErrBadTimestamp is returned for events with an unparseable dateReceived.
	ErrBadTimestamp = errors.New("event has an invalid dateReceived timestamp")
)

// EventUser identifies the user an error event was reported for.
type EventUser struct {
	ID string `json:"id"`
}

// Event is a single error-event record drained from the exporter queue.
// Fields mirror the exporter's JSON; everything not modeled here rides
// along in Payload untouched.
type Event struct {
	EventID      string    `json:"eventID"`
	Fingerprints []string  `json:"fingerprints"`
	DateReceived string    `json:"dateReceived"`
	User         EventUser `json:"user"`
	Release      string    `json:"release"`
	Environment  string    `json:"environment"`
	Message      string    `json:"message"`
	Module       string    `json:"module"`
	GroupID      string    `json:"groupId"`

	// Payload is the raw message body, kept opaque.
	Payload json.RawMessage `json:"-"`

	received time.Time
}

// ParseEvent decodes and validates a raw queue message body. Events that
// fail here are poison messages: the caller logs and discards them.
func ParseEvent(body []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}

	if event.Fingerprint() == "" {
		return nil, ErrNoFingerprint
	}

	received, err := parseEventTime(event.DateReceived)
	if err != nil {
		return nil, err
	}
	event.received = received
	event.Payload = append(json.RawMessage(nil), body...)

	return &event, nil
}

func parseEventTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, ErrBadTimestamp
	}
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, value)
}

// Fingerprint returns the issue identifier for the event. Fingerprints
// arrive as an array but the default grouping algorithm emits a single
// value, so only the first entry is significant.
func (e *Event) Fingerprint() string {
	if len(e.Fingerprints) == 0 {
		return ""
	}
	return e.Fingerprints[0]
}

// Received returns the event's UTC receive time.
func (e *Event) Received() time.Time {
	return e.received
}

// BucketDate returns the UTC calendar date the event is aggregated
// under, formatted for the issue_buckets.bucket_date column.
func (e *Event) BucketDate() string {
	return e.received.Format("2006-01-02")
}

// UserID returns the reporting user's identifier, or "" when the event
// was anonymous.
func (e *Event) UserID() string {
	return e.User.ID
}
