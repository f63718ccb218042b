package core

import "time"

// IssueAggregate is the per-issue roll-up read by the rule engine.
// Counts are monotonic; DistinctUsers is the merged sketch estimate over
// the requested buckets. IsNew is derived at load time: it is true only
// when the issue's first event falls inside the evaluation window.
type IssueAggregate struct {
	Fingerprint string
	FirstSeen   time.Time
	LastSeen    time.Time
	Message     string
	Module      string
	GroupID     string

	TotalEvents   int64
	DistinctUsers uint64
	IsNew         bool
}

// Window is the half-open interval (Start, Now] a watcher run evaluates.
// Start is the previous finished run's timestamp; a zero Start means no
// run has ever finished and everything is in scope.
type Window struct {
	Start time.Time
	Now   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && !t.After(w.Start) {
		return false
	}
	return !t.After(w.Now)
}
