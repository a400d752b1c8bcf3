package quota

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Rule names for the gateway operations.
const (
	RuleSearch      = "search"
	RuleIngredients = "ingredients"
)

// Deduction controls when an admitted request counts against the quota.
type Deduction string

const (
	// DeductAlways consumes a slot as soon as the request is admitted.
	DeductAlways Deduction = "always"
	// DeductOnSuccess reserves a slot on admission and only consumes it when
	// the guarded call succeeds.
	DeductOnSuccess Deduction = "success"
)

// ErrUnknownRule is returned when a caller references a rule that was never configured.
var ErrUnknownRule = errors.New("unknown rate limit rule")

// Rule is a named quota policy.
type Rule struct {
	Name     string        `json:"name" yaml:"name"`
	Requests int           `json:"requests" yaml:"requests"`
	Window   time.Duration `json:"window" yaml:"window"`
	Deduct   Deduction     `json:"deduct" yaml:"deduct"`
}

// DefaultRules mirrors the limits the recipe API quota can sustain.
var DefaultRules = map[string]Rule{
	RuleSearch:      {Name: RuleSearch, Requests: 1, Window: time.Minute, Deduct: DeductOnSuccess},
	RuleIngredients: {Name: RuleIngredients, Requests: 15, Window: time.Minute, Deduct: DeductOnSuccess},
}

// Override adjusts a rule. Zero fields keep the base value.
type Override struct {
	Requests int
	Window   time.Duration
	Deduct   string
}

// Description renders the rule as "<requests> per <window>", e.g. "1 per 1 minute".
func (r Rule) Description() string {
	return fmt.Sprintf("%d per %s", r.Requests, describeWindow(r.Window))
}

// Validate checks that the rule can be enforced.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("rule name is required")
	}
	if r.Requests <= 0 {
		return fmt.Errorf("rule %s: requests must be positive, got %d", r.Name, r.Requests)
	}
	if r.Window <= 0 {
		return fmt.Errorf("rule %s: window must be positive, got %s", r.Name, r.Window)
	}
	switch r.Deduct {
	case DeductAlways, DeductOnSuccess:
	default:
		return fmt.Errorf("rule %s: unknown deduction policy %q", r.Name, r.Deduct)
	}
	return nil
}

// ParseDeduction converts a config value into a Deduction. Empty means DeductOnSuccess.
func ParseDeduction(value string) (Deduction, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "success", "on_success", "only_on_success":
		return DeductOnSuccess, nil
	case "always":
		return DeductAlways, nil
	default:
		return "", fmt.Errorf("unknown deduction policy %q (want always|success)", value)
	}
}

// MergeRules applies overrides on top of base and validates the result.
// Overrides may introduce new rules as long as they are fully specified.
func MergeRules(base map[string]Rule, overrides map[string]Override) (map[string]Rule, error) {
	merged := make(map[string]Rule, len(base)+len(overrides))
	for name, rule := range base {
		rule.Name = name
		merged[name] = rule
	}

	for name, override := range overrides {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		rule, ok := merged[name]
		if !ok {
			rule = Rule{Name: name, Deduct: DeductOnSuccess}
		}
		if override.Requests != 0 {
			rule.Requests = override.Requests
		}
		if override.Window != 0 {
			rule.Window = override.Window
		}
		if strings.TrimSpace(override.Deduct) != "" {
			deduct, err := ParseDeduction(override.Deduct)
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", name, err)
			}
			rule.Deduct = deduct
		}
		merged[name] = rule
	}

	for _, rule := range merged {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
	}

	return merged, nil
}

// SortedRules returns the rules ordered by name.
func SortedRules(rules map[string]Rule) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func describeWindow(d time.Duration) string {
	units := []struct {
		size time.Duration
		name string
	}{
		{24 * time.Hour, "day"},
		{time.Hour, "hour"},
		{time.Minute, "minute"},
		{time.Second, "second"},
	}

	for _, unit := range units {
		if d >= unit.size && d%unit.size == 0 {
			n := int64(d / unit.size)
			if n == 1 {
				return "1 " + unit.name
			}
			return fmt.Sprintf("%d %ss", n, unit.name)
		}
	}
	return d.String()
}
