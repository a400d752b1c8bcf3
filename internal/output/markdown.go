package output

import (
	"fmt"
	"strings"
)

// MarkdownFormatter renders results as a markdown table.
type MarkdownFormatter struct{}

// FormatRules renders rules as a Markdown table.
func (f *MarkdownFormatter) FormatRules(rules []RuleRow) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Rule | Limit | Deducts | Window |\n")
	sb.WriteString("|------|-------|---------|--------|\n")

	for _, r := range rules {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			escapeMarkdownCell(r.Name),
			escapeMarkdownCell(r.Description),
			escapeMarkdownCell(deductLabel(r.Deduct)),
			escapeMarkdownCell(r.Window),
		))
	}

	return sb.String(), nil
}

// FormatStats renders counters as a Markdown table with the total in bold.
func (f *MarkdownFormatter) FormatStats(stats []StatsRow) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Rule | Allowed | Denied | Committed | Rolled back |\n")
	sb.WriteString("|------|---------|--------|-----------|-------------|\n")

	for _, s := range stats {
		name := escapeMarkdownCell(s.Rule)
		if s.Rule == TotalRow {
			name = "**" + name + "**"
		}
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d |\n",
			name, s.Allowed, s.Denied, s.Committed, s.RolledBack))
	}

	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
