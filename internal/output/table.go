package output

import (
	"github.com/jedib0t/go-pretty/v6/table"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatRules renders the effective rule set.
func (f *TableFormatter) FormatRules(rules []RuleRow) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Rule", "Limit", "Deducts", "Window"})

	for _, r := range rules {
		t.AppendRow(table.Row{r.Name, r.Description, deductLabel(r.Deduct), r.Window})
	}

	return t.Render(), nil
}

// FormatStats renders decision counters; the aggregate row becomes the footer.
func (f *TableFormatter) FormatStats(stats []StatsRow) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Rule", "Allowed", "Denied", "Committed", "Rolled back"})

	for _, s := range stats {
		row := table.Row{s.Rule, s.Allowed, s.Denied, s.Committed, s.RolledBack}
		if s.Rule == TotalRow {
			t.AppendFooter(row)
			continue
		}
		t.AppendRow(row)
	}

	return t.Render(), nil
}

func deductLabel(deduct string) string {
	if deduct == "always" {
		return "every request"
	}
	return "successful calls only"
}
