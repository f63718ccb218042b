package triggers

import (
	"context"
	"fmt"

	"errorwatch/core"
	"errorwatch/storage"
)

// Match is one rule hit pending dispatch. DedupKey is deterministic for
// the condition it announces: evaluating an unchanged condition again
// yields the same key, and the alert record for that key suppresses the
// repeat.
type Match struct {
	Rule     Definition
	Issue    core.IssueAggregate
	DedupKey string

	// Reason is a one-line human description of what matched, used in
	// the alert body.
	Reason string
}

// Evaluator decides whether one issue matches one rule within a run's
// window. A nil match with a nil error means no hit.
type Evaluator interface {
	Evaluate(ctx context.Context, window core.Window, issue core.IssueAggregate, stats storage.IssueStats) (*Match, error)
}

// NewEvaluator builds the evaluator variant for the definition's kind.
func NewEvaluator(def Definition) (Evaluator, error) {
	switch def.Kind {
	case KindNewIssue:
		return &newIssueEvaluator{def: def}, nil
	case KindEventThreshold, KindUserThreshold:
		return &thresholdEvaluator{def: def}, nil
	case KindRate:
		return &rateEvaluator{def: def}, nil
	default:
		return nil, fmt.Errorf("rule %q: unknown kind %q", def.ID, def.Kind)
	}
}

// newIssueEvaluator matches issues whose first event arrived inside the
// window. An issue matches at most one run: later windows start after
// its first_seen.
type newIssueEvaluator struct {
	def Definition
}

func (e *newIssueEvaluator) Evaluate(_ context.Context, window core.Window, issue core.IssueAggregate, _ storage.IssueStats) (*Match, error) {
	if !issue.IsNew || !window.Contains(issue.FirstSeen) {
		return nil, nil
	}
	return &Match{
		Rule:     e.def,
		Issue:    issue,
		DedupKey: KindNewIssue,
		Reason:   fmt.Sprintf("new issue, first seen %s", issue.FirstSeen.UTC().Format("2006-01-02 15:04:05")),
	}, nil
}

// thresholdEvaluator matches when the watched metric sits at or above a
// configured tier. Only the highest crossed tier is reported; the tier
// is baked into the dedup key, so each tier announces once and a higher
// tier announces again later.
type thresholdEvaluator struct {
	def Definition
}

func (e *thresholdEvaluator) Evaluate(_ context.Context, _ core.Window, issue core.IssueAggregate, _ storage.IssueStats) (*Match, error) {
	var value int64
	switch e.def.Kind {
	case KindEventThreshold:
		value = issue.TotalEvents
	case KindUserThreshold:
		value = int64(issue.DistinctUsers)
	}

	var crossed int64
	for _, tier := range e.def.Tiers {
		if value >= tier {
			crossed = tier
		}
	}
	if crossed == 0 {
		return nil, nil
	}
	return &Match{
		Rule:     e.def,
		Issue:    issue,
		DedupKey: fmt.Sprintf("threshold:%s:%d", e.def.Metric(), crossed),
		Reason:   fmt.Sprintf("%s reached %d (tier %d)", e.def.Metric(), value, crossed),
	}, nil
}

// rateEvaluator matches when the trailing window_days of buckets hold
// more than max_events events. The trailing window includes today's
// bucket.
type rateEvaluator struct {
	def Definition
}

func (e *rateEvaluator) Evaluate(ctx context.Context, window core.Window, issue core.IssueAggregate, stats storage.IssueStats) (*Match, error) {
	fromDate := window.Now.UTC().AddDate(0, 0, -(e.def.WindowDays - 1)).Format("2006-01-02")
	count, err := stats.EventCount(ctx, issue.Fingerprint, fromDate)
	if err != nil {
		return nil, fmt.Errorf("counting events for %s: %w", issue.Fingerprint, err)
	}
	if count <= e.def.MaxEvents {
		return nil, nil
	}
	return &Match{
		Rule:     e.def,
		Issue:    issue,
		DedupKey: KindRate,
		Reason:   fmt.Sprintf("%d events in the last %dd (limit %d)", count, e.def.WindowDays, e.def.MaxEvents),
	}, nil
}
