package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/recipegate/recipegate/internal/quota"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// Formatter renders quota rules and decision counters.
type Formatter interface {
	FormatRules(rules []RuleRow) (string, error)
	FormatStats(stats []StatsRow) (string, error)
}

// RuleRow is the printable form of a quota rule.
type RuleRow struct {
	Name        string `json:"name" yaml:"name"`
	Requests    int    `json:"requests" yaml:"requests"`
	Window      string `json:"window" yaml:"window"`
	Deduct      string `json:"deduct" yaml:"deduct"`
	Description string `json:"description" yaml:"description"`
}

// StatsRow holds decision counters for one rule. Rule is "total" for the aggregate row.
type StatsRow struct {
	Rule       string `json:"rule" yaml:"rule"`
	Allowed    int64  `json:"allowed" yaml:"allowed"`
	Denied     int64  `json:"denied" yaml:"denied"`
	Committed  int64  `json:"committed" yaml:"committed"`
	RolledBack int64  `json:"rolled_back" yaml:"rolled_back"`
}

// TotalRow is the Rule value of the aggregate stats row.
const TotalRow = "total"

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatYAML), "yml":
		return FormatYAML, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatYAML:
		return &YAMLFormatter{}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// RuleRows converts rules to rows ordered by name.
func RuleRows(rules map[string]quota.Rule) []RuleRow {
	sorted := quota.SortedRules(rules)
	rows := make([]RuleRow, 0, len(sorted))
	for _, rule := range sorted {
		rows = append(rows, RuleRow{
			Name:        rule.Name,
			Requests:    rule.Requests,
			Window:      rule.Window.String(),
			Deduct:      string(rule.Deduct),
			Description: rule.Description(),
		})
	}
	return rows
}

// NewStatsRow flattens outcome counters for one rule.
func NewStatsRow(rule string, counters quota.Counters) StatsRow {
	return StatsRow{
		Rule:       rule,
		Allowed:    counters[quota.OutcomeAllowed],
		Denied:     counters[quota.OutcomeDenied],
		Committed:  counters[quota.OutcomeCommitted],
		RolledBack: counters[quota.OutcomeRolledBack],
	}
}

// SortStatsRows orders rows by rule name with the aggregate row last.
func SortStatsRows(rows []StatsRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Rule == TotalRow || rows[j].Rule == TotalRow {
			return rows[j].Rule == TotalRow && rows[i].Rule != TotalRow
		}
		return rows[i].Rule < rows[j].Rule
	})
}
