// Package notify sends alert notifications. Backends share one narrow
// contract so the watcher can swap real email for console output or a
// test double without caring which it got.
package notify

import "context"

// AlertBackend delivers one rendered alert to a recipient list. A nil
// return means the alert was accepted by the transport; the caller only
// records the alert as sent on success.
type AlertBackend interface {
	SendAlert(ctx context.Context, to []string, subject, body string) error
}
