// Package watcher runs the periodic rule evaluation cycle: load the
// window since the last finished run, evaluate every enabled rule
// against the issues that changed, dispatch matches, then advance run
// state. One watcher instance is assumed; two running concurrently can
// double-send because no distributed lock is taken.
package watcher

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"errorwatch/core"
	"errorwatch/metrics"
	"errorwatch/storage"
	"errorwatch/triggers"
)

const runRetention = 7 * 24 * time.Hour

// Config holds the watcher's runtime options.
type Config struct {
	// SleepDelay separates evaluation cycles in loop mode.
	SleepDelay time.Duration

	// DryRun evaluates and sends without persisting run state or alert
	// records.
	DryRun bool
}

// Watcher owns the evaluation loop.
type Watcher struct {
	store      storage.Store
	rules      []triggers.Definition
	dispatcher *Dispatcher
	health     *HealthReporter
	cfg        Config
	now        func() time.Time
	logger     *zap.SugaredLogger
}

func New(store storage.Store, rules []triggers.Definition, dispatcher *Dispatcher, health *HealthReporter, cfg Config, logger *zap.SugaredLogger) *Watcher {
	return &Watcher{
		store:      store,
		rules:      rules,
		dispatcher: dispatcher,
		health:     health,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger,
	}
}

// Run evaluates in a loop until the context is cancelled, or exactly
// once when once is set. A failed cycle is logged and retried after the
// sleep delay; run state did not advance, so the next cycle re-covers
// the same window.
func (w *Watcher) Run(ctx context.Context, once bool) error {
	for {
		if err := w.RunOnce(ctx); err != nil {
			metrics.WatcherRunFailures.Inc()
			w.logger.Errorw("Watcher run failed", "error", err)
		}
		if once {
			return nil
		}
		select {
		case <-ctx.Done():
			w.logger.Info("Watcher stopping")
			return nil
		case <-time.After(w.cfg.SleepDelay):
		}
	}
}

// RunOnce performs one full evaluation cycle. Per-rule failures are
// isolated inside the cycle; an error return means the cycle aborted
// before run state advanced.
func (w *Watcher) RunOnce(ctx context.Context) error {
	now := w.now().UTC()

	start, err := w.store.LastFinishedRun(ctx)
	if err != nil {
		return fmt.Errorf("loading last finished run: %w", err)
	}
	window := core.Window{Start: start, Now: now}

	var runID int64
	if !w.cfg.DryRun {
		runID, err = w.store.StartRun(ctx, now)
		if err != nil {
			return fmt.Errorf("starting run: %w", err)
		}
	}

	issues, err := w.store.ChangedIssues(ctx, start)
	if err != nil {
		return fmt.Errorf("loading changed issues: %w", err)
	}
	for i := range issues {
		issue := &issues[i]
		issue.IsNew = window.Contains(issue.FirstSeen)
		issue.TotalEvents, err = w.store.EventCount(ctx, issue.Fingerprint, "")
		if err != nil {
			return fmt.Errorf("loading event count for %s: %w", issue.Fingerprint, err)
		}
		issue.DistinctUsers, err = w.store.DistinctUserEstimate(ctx, issue.Fingerprint, "")
		if err != nil {
			return fmt.Errorf("loading user estimate for %s: %w", issue.Fingerprint, err)
		}
	}

	enabled := triggers.Enabled(w.rules)
	w.logger.Infow("Evaluating rules",
		"rules", len(enabled),
		"issues", len(issues),
		"windowStart", window.Start,
	)
	var dispatchFailures int
	for _, rule := range enabled {
		dispatchFailures += w.evaluateRule(ctx, rule, window, issues)
	}
	if dispatchFailures > 0 {
		// Matches that did send are covered by their alert records, so
		// re-evaluating the same window cannot double-send them.
		return fmt.Errorf("%d alert dispatches failed; run state not advanced", dispatchFailures)
	}

	if !w.cfg.DryRun {
		if err := w.store.FinishRun(ctx, runID); err != nil {
			return fmt.Errorf("finishing run: %w", err)
		}
		if err := w.store.PruneRuns(ctx, now.Add(-runRetention)); err != nil {
			// The cycle already advanced; stale run rows only cost space.
			w.logger.Warnw("Failed to prune old runs", "error", err)
		}
	}

	w.health.Report()
	return nil
}

// evaluateRule runs one rule over the changed issues and returns how
// many dispatches failed. Evaluator construction errors, per-issue
// evaluation errors and panics are contained here so one misconfigured
// rule cannot block the rest; dispatch failures are reported up so the
// run does not advance past an unsent alert.
func (w *Watcher) evaluateRule(ctx context.Context, rule triggers.Definition, window core.Window, issues []core.IssueAggregate) (failed int) {
	defer func() {
		if r := recover(); r != nil {
			metrics.TriggerFailures.WithLabelValues(rule.ID).Inc()
			w.logger.Errorw("Recovered from panic evaluating rule",
				"rule", rule.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	eval, err := triggers.NewEvaluator(rule)
	if err != nil {
		metrics.TriggerFailures.WithLabelValues(rule.ID).Inc()
		w.logger.Errorw("Skipping misconfigured rule", "rule", rule.ID, "error", err)
		return failed
	}

	for _, issue := range issues {
		match, err := eval.Evaluate(ctx, window, issue, w.store)
		if err != nil {
			metrics.TriggerFailures.WithLabelValues(rule.ID).Inc()
			w.logger.Warnw("Rule evaluation failed for issue",
				"rule", rule.ID,
				"fingerprint", issue.Fingerprint,
				"error", err,
			)
			continue
		}
		if match == nil {
			continue
		}
		if err := w.dispatcher.Dispatch(ctx, *match); err != nil {
			failed++
			w.logger.Warnw("Alert dispatch failed",
				"rule", rule.ID,
				"fingerprint", issue.Fingerprint,
				"error", err,
			)
		}
	}
	return failed
}
