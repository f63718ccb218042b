package watcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"errorwatch/metrics"
	"errorwatch/notify"
	"errorwatch/triggers"
)

// AlertStore is the slice of the store the dispatcher needs.
// *storage.SQLStore and storage.MockStore satisfy it.
type AlertStore interface {
	HasAlert(ctx context.Context, ruleID, fingerprint, dedupKey string) (bool, error)
	RecordAlert(ctx context.Context, ruleID, fingerprint, dedupKey string, sentAt time.Time) error
}

// Dispatcher turns rule matches into notifications, deduplicated
// through alert records. In dry-run mode it sends (or prints) but never
// records, so repeated dry runs over unchanged data behave identically.
type Dispatcher struct {
	store   AlertStore
	backend notify.AlertBackend
	dryRun  bool
	now     func() time.Time
	logger  *zap.SugaredLogger
}

func NewDispatcher(store AlertStore, backend notify.AlertBackend, dryRun bool, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		store:   store,
		backend: backend,
		dryRun:  dryRun,
		now:     time.Now,
		logger:  logger,
	}
}

// Dispatch handles one match: skip if already announced, otherwise send
// and record. The record is written only after a confirmed send; a
// crash between the two at worst repeats one send next run, which beats
// silently dropping an alert.
func (d *Dispatcher) Dispatch(ctx context.Context, match triggers.Match) error {
	ruleID := match.Rule.ID
	fingerprint := match.Issue.Fingerprint

	has, err := d.store.HasAlert(ctx, ruleID, fingerprint, match.DedupKey)
	if err != nil {
		return fmt.Errorf("checking alert record for rule %s: %w", ruleID, err)
	}
	if has {
		metrics.AlertsDeduplicated.Inc()
		return nil
	}

	subject, body, err := notify.Render(notify.AlertContent{
		RuleID:        ruleID,
		Fingerprint:   fingerprint,
		Message:       match.Issue.Message,
		Module:        match.Issue.Module,
		GroupID:       match.Issue.GroupID,
		Reason:        match.Reason,
		FirstSeen:     match.Issue.FirstSeen,
		LastSeen:      match.Issue.LastSeen,
		TotalEvents:   match.Issue.TotalEvents,
		DistinctUsers: match.Issue.DistinctUsers,
	})
	if err != nil {
		return fmt.Errorf("rendering alert for rule %s: %w", ruleID, err)
	}

	if err := d.backend.SendAlert(ctx, match.Rule.Recipients, subject, body); err != nil {
		metrics.AlertSendFailures.WithLabelValues(ruleID).Inc()
		return fmt.Errorf("sending alert for rule %s, issue %s: %w", ruleID, fingerprint, err)
	}
	metrics.AlertsSent.WithLabelValues(ruleID).Inc()
	d.logger.Infow("Alert sent",
		"rule", ruleID,
		"fingerprint", fingerprint,
		"dedupKey", match.DedupKey,
	)

	if d.dryRun {
		return nil
	}
	if err := d.store.RecordAlert(ctx, ruleID, fingerprint, match.DedupKey, d.now().UTC()); err != nil {
		return fmt.Errorf("recording alert for rule %s: %w", ruleID, err)
	}
	return nil
}
