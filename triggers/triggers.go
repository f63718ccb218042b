// Package triggers defines alert rule configuration and the per-kind
// evaluators the watcher runs against issue aggregates.
package triggers

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Rule kinds. Each kind selects one evaluator variant.
const (
	KindNewIssue       = "new_issue"
	KindEventThreshold = "event_threshold"
	KindUserThreshold  = "user_threshold"
	KindRate           = "rate"
)

var validate = validator.New()

// Definition is one alert rule as configured in the trigger file. It is
// immutable after loading; changing rules means restarting the watcher.
type Definition struct {
	ID         string   `yaml:"id" validate:"required"`
	Kind       string   `yaml:"kind" validate:"required,oneof=new_issue event_threshold user_threshold rate"`
	Enabled    bool     `yaml:"enabled"`
	Recipients []string `yaml:"recipients" validate:"required,min=1,dive,email"`

	// Threshold rules only: ascending tiers of the metric the kind
	// names. Crossing a tier alerts once; a later, higher tier alerts
	// again.
	Tiers []int64 `yaml:"tiers"`

	// Rate rules only: alert when more than MaxEvents events arrive
	// within the trailing WindowDays days.
	WindowDays int   `yaml:"window_days"`
	MaxEvents  int64 `yaml:"max_events"`
}

// UnmarshalYAML decodes a definition with enabled defaulting to true,
// so rules only carry the flag when switched off.
func (d *Definition) UnmarshalYAML(value *yaml.Node) error {
	type plain Definition
	out := plain{Enabled: true}
	if err := value.Decode(&out); err != nil {
		return err
	}
	*d = Definition(out)
	return nil
}

// IsThreshold reports whether the rule is one of the tiered kinds.
func (d Definition) IsThreshold() bool {
	return d.Kind == KindEventThreshold || d.Kind == KindUserThreshold
}

// Metric names the aggregate value a threshold rule watches.
func (d Definition) Metric() string {
	switch d.Kind {
	case KindEventThreshold:
		return "events"
	case KindUserThreshold:
		return "users"
	default:
		return ""
	}
}

func (d Definition) check() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("rule %q: %w", d.ID, err)
	}
	switch {
	case d.IsThreshold():
		if len(d.Tiers) == 0 {
			return fmt.Errorf("rule %q: %s requires at least one tier", d.ID, d.Kind)
		}
		for i, tier := range d.Tiers {
			if tier <= 0 {
				return fmt.Errorf("rule %q: tier %d must be positive", d.ID, tier)
			}
			if i > 0 && tier <= d.Tiers[i-1] {
				return fmt.Errorf("rule %q: tiers must be strictly ascending", d.ID)
			}
		}
	case d.Kind == KindRate:
		if d.WindowDays < 1 {
			return fmt.Errorf("rule %q: rate requires window_days >= 1", d.ID)
		}
		if d.MaxEvents < 1 {
			return fmt.Errorf("rule %q: rate requires max_events >= 1", d.ID)
		}
	}
	return nil
}

type triggerFile struct {
	Triggers []Definition `yaml:"triggers"`
}

// Parse decodes and validates a trigger file body. Tier lists are
// normalized to ascending order before validation would reject them, so
// hand-sorted files are not required.
func Parse(data []byte) ([]Definition, error) {
	var file triggerFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing trigger file: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Triggers))
	for i := range file.Triggers {
		def := &file.Triggers[i]
		sort.Slice(def.Tiers, func(a, b int) bool { return def.Tiers[a] < def.Tiers[b] })
		if err := def.check(); err != nil {
			return nil, err
		}
		if _, dup := seen[def.ID]; dup {
			return nil, fmt.Errorf("duplicate rule id %q", def.ID)
		}
		seen[def.ID] = struct{}{}
	}
	return file.Triggers, nil
}

// Load reads and parses the trigger file at path.
func Load(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trigger file: %w", err)
	}
	return Parse(data)
}

// Enabled filters a rule set down to the enabled definitions.
func Enabled(defs []Definition) []Definition {
	out := make([]Definition, 0, len(defs))
	for _, def := range defs {
		if def.Enabled {
			out = append(out, def)
		}
	}
	return out
}
