package triggers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"errorwatch/core"
)

const sampleFile = `
triggers:
  - id: new-issues
    kind: new_issue
    recipients: [oncall@example.com]
  - id: big-issues
    kind: event_threshold
    recipients: [oncall@example.com, lead@example.com]
    tiers: [1000, 100, 10]
  - id: spikes
    kind: rate
    enabled: false
    recipients: [oncall@example.com]
    window_days: 7
    max_events: 500
`

func TestParse(t *testing.T) {
	defs, err := Parse([]byte(sampleFile))
	require.NoError(t, err)
	require.Len(t, defs, 3)

	assert.Equal(t, "new-issues", defs[0].ID)
	assert.True(t, defs[0].Enabled, "enabled should default to true")

	assert.Equal(t, []int64{10, 100, 1000}, defs[1].Tiers, "tiers should be normalized ascending")
	assert.Equal(t, "events", defs[1].Metric())

	assert.False(t, defs[2].Enabled)

	enabled := Enabled(defs)
	require.Len(t, enabled, 2)
	assert.Equal(t, "new-issues", enabled[0].ID)
	assert.Equal(t, "big-issues", enabled[1].ID)
}

func TestParseRejectsBadDefinitions(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"unknown kind", `
triggers:
  - id: x
    kind: anomaly
    recipients: [a@example.com]
`},
		{"missing recipients", `
triggers:
  - id: x
    kind: new_issue
`},
		{"non-email recipient", `
triggers:
  - id: x
    kind: new_issue
    recipients: [not-an-address]
`},
		{"threshold without tiers", `
triggers:
  - id: x
    kind: user_threshold
    recipients: [a@example.com]
`},
		{"non-positive tier", `
triggers:
  - id: x
    kind: event_threshold
    recipients: [a@example.com]
    tiers: [0, 10]
`},
		{"rate without window", `
triggers:
  - id: x
    kind: rate
    recipients: [a@example.com]
    max_events: 10
`},
		{"duplicate ids", `
triggers:
  - id: x
    kind: new_issue
    recipients: [a@example.com]
  - id: x
    kind: rate
    recipients: [a@example.com]
    window_days: 1
    max_events: 1
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.body))
			assert.Error(t, err)
		})
	}
}

// fixedStats returns canned counts, standing in for the store's bucket
// queries.
type fixedStats struct {
	events int64
	users  uint64
	err    error
}

func (s fixedStats) EventCount(context.Context, string, string) (int64, error) {
	return s.events, s.err
}

func (s fixedStats) DistinctUserEstimate(context.Context, string, string) (uint64, error) {
	return s.users, s.err
}

func testWindow() core.Window {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	return core.Window{Start: now.Add(-5 * time.Minute), Now: now}
}

func TestNewIssueEvaluator(t *testing.T) {
	window := testWindow()
	eval, err := NewEvaluator(Definition{ID: "n", Kind: KindNewIssue})
	require.NoError(t, err)

	fresh := core.IssueAggregate{
		Fingerprint: "abc",
		FirstSeen:   window.Now.Add(-time.Minute),
		IsNew:       true,
	}
	match, err := eval.Evaluate(context.Background(), window, fresh, nil)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, KindNewIssue, match.DedupKey)

	old := core.IssueAggregate{
		Fingerprint: "abc",
		FirstSeen:   window.Start.Add(-time.Hour),
	}
	match, err = eval.Evaluate(context.Background(), window, old, nil)
	require.NoError(t, err)
	assert.Nil(t, match, "issues first seen before the window never match")
}

func TestThresholdEvaluatorHighestTier(t *testing.T) {
	eval, err := NewEvaluator(Definition{
		ID:    "t",
		Kind:  KindEventThreshold,
		Tiers: []int64{10, 100, 1000},
	})
	require.NoError(t, err)

	cases := []struct {
		events int64
		key    string
	}{
		{5, ""},
		{10, "threshold:events:10"},
		{99, "threshold:events:10"},
		{150, "threshold:events:100"},
		{5000, "threshold:events:1000"},
	}
	for _, tc := range cases {
		issue := core.IssueAggregate{Fingerprint: "abc", TotalEvents: tc.events}
		match, err := eval.Evaluate(context.Background(), testWindow(), issue, nil)
		require.NoError(t, err)
		if tc.key == "" {
			assert.Nil(t, match, "events=%d", tc.events)
			continue
		}
		require.NotNil(t, match, "events=%d", tc.events)
		assert.Equal(t, tc.key, match.DedupKey)
	}
}

func TestUserThresholdEvaluator(t *testing.T) {
	eval, err := NewEvaluator(Definition{
		ID:    "u",
		Kind:  KindUserThreshold,
		Tiers: []int64{50},
	})
	require.NoError(t, err)

	match, err := eval.Evaluate(context.Background(), testWindow(),
		core.IssueAggregate{Fingerprint: "abc", DistinctUsers: 49}, nil)
	require.NoError(t, err)
	assert.Nil(t, match)

	match, err = eval.Evaluate(context.Background(), testWindow(),
		core.IssueAggregate{Fingerprint: "abc", DistinctUsers: 50}, nil)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "threshold:users:50", match.DedupKey)
}

func TestRateEvaluator(t *testing.T) {
	eval, err := NewEvaluator(Definition{
		ID:         "r",
		Kind:       KindRate,
		WindowDays: 7,
		MaxEvents:  100,
	})
	require.NoError(t, err)
	issue := core.IssueAggregate{Fingerprint: "abc"}

	match, err := eval.Evaluate(context.Background(), testWindow(), issue, fixedStats{events: 100})
	require.NoError(t, err)
	assert.Nil(t, match, "at the limit is not over the limit")

	match, err = eval.Evaluate(context.Background(), testWindow(), issue, fixedStats{events: 101})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, KindRate, match.DedupKey)

	_, err = eval.Evaluate(context.Background(), testWindow(), issue, fixedStats{err: assert.AnError})
	assert.Error(t, err)
}

func TestNewEvaluatorUnknownKind(t *testing.T) {
	_, err := NewEvaluator(Definition{ID: "x", Kind: "bogus"})
	assert.Error(t, err)
}
