package notify

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

// AlertContent is the data an alert is rendered from. Reason is the
// evaluator's one-line description of the matched condition.
type AlertContent struct {
	RuleID      string
	Fingerprint string
	Message     string
	Module      string
	GroupID     string
	Reason      string

	FirstSeen     time.Time
	LastSeen      time.Time
	TotalEvents   int64
	DistinctUsers uint64
}

var (
	subjectTemplate = template.Must(template.New("subject").Parse(
		`[errorwatch] {{.RuleID}}: {{if .Message}}{{.Message}}{{else}}{{.Fingerprint}}{{end}}`,
	))

	bodyTemplate = template.Must(template.New("body").Funcs(template.FuncMap{
		"utc": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04:05 UTC") },
	}).Parse(`Rule {{.RuleID}} matched issue {{.Fingerprint}}.

{{.Reason}}
{{if .Message}}
Message:        {{.Message}}{{end}}{{if .Module}}
Module:         {{.Module}}{{end}}{{if .GroupID}}
Group:          {{.GroupID}}{{end}}
First seen:     {{utc .FirstSeen}}
Last seen:      {{utc .LastSeen}}
Total events:   {{.TotalEvents}}
Distinct users: ~{{.DistinctUsers}}
`))
)

// Render produces the subject and plain-text body for an alert.
func Render(content AlertContent) (string, string, error) {
	var subject bytes.Buffer
	if err := subjectTemplate.Execute(&subject, content); err != nil {
		return "", "", fmt.Errorf("rendering alert subject: %w", err)
	}
	var body bytes.Buffer
	if err := bodyTemplate.Execute(&body, content); err != nil {
		return "", "", fmt.Errorf("rendering alert body: %w", err)
	}
	return subject.String(), body.String(), nil
}
