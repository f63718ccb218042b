package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	body := []byte(`{
		"eventID": "abc123",
		"fingerprints": ["fp-1"],
		"dateReceived": "2026-08-25T12:30:45.123456Z",
		"user": {"id": "user-1"},
		"release": "2026.8.1",
		"environment": "prod",
		"message": "TypeError: x is undefined",
		"module": "browser/components",
		"groupId": "g-9"
	}`)

	event, err := ParseEvent(body)
	require.NoError(t, err)

	assert.Equal(t, "abc123", event.EventID)
	assert.Equal(t, "fp-1", event.Fingerprint())
	assert.Equal(t, "user-1", event.UserID())
	assert.Equal(t, "TypeError: x is undefined", event.Message)
	assert.Equal(t, "2026-08-25", event.BucketDate())

	expected := time.Date(2026, 8, 25, 12, 30, 45, 123456000, time.UTC)
	assert.True(t, event.Received().Equal(expected))
	assert.JSONEq(t, string(body), string(event.Payload))
}

func TestParseEventAcceptsRFC3339(t *testing.T) {
	event, err := ParseEvent([]byte(`{
		"eventID": "e1",
		"fingerprints": ["fp"],
		"dateReceived": "2026-08-25T12:00:00Z"
	}`))
	require.NoError(t, err)
	assert.Equal(t, "2026-08-25", event.BucketDate())
}

func TestParseEventAnonymousUser(t *testing.T) {
	event, err := ParseEvent([]byte(`{
		"eventID": "e1",
		"fingerprints": ["fp"],
		"dateReceived": "2026-08-25T12:00:00.000000Z"
	}`))
	require.NoError(t, err)
	assert.Empty(t, event.UserID())
}

func TestParseEventErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"missing fingerprint", `{"eventID":"e1","dateReceived":"2026-08-25T12:00:00.000000Z"}`, ErrNoFingerprint},
		{"empty fingerprint list", `{"eventID":"e1","fingerprints":[],"dateReceived":"2026-08-25T12:00:00.000000Z"}`, ErrNoFingerprint},
		{"missing timestamp", `{"eventID":"e1","fingerprints":["fp"]}`, ErrBadTimestamp},
		{"garbage timestamp", `{"eventID":"e1","fingerprints":["fp"],"dateReceived":"yesterday"}`, ErrBadTimestamp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tt.body))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := ParseEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestWindowContains(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	w := Window{Start: now.Add(-time.Hour), Now: now}

	assert.True(t, w.Contains(now))
	assert.True(t, w.Contains(now.Add(-30*time.Minute)))
	assert.False(t, w.Contains(w.Start))
	assert.False(t, w.Contains(now.Add(time.Minute)))

	unbounded := Window{Now: now}
	assert.True(t, unbounded.Contains(now.Add(-1000*time.Hour)))
}
