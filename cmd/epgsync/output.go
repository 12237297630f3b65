package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/voyagen/epgsync/internal/models"
	"github.com/voyagen/epgsync/internal/reconcile"
	"github.com/voyagen/epgsync/internal/service"
)

func renderReport(rep *service.Report) string {
	var b strings.Builder
	mode := rep.Mode
	if rep.DryRun {
		mode += " (dry run)"
	}
	fmt.Fprintf(&b, "Run %s: %s in %s\n", rep.RunID, mode, rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond))

	counters := []struct {
		name  string
		value int
	}{
		{"total", rep.Total},
		{"updated", rep.Updated},
		{"matched", rep.Matched},
		{"cleaned", rep.Cleaned},
		{"locked", rep.Locked},
		{"excluded", rep.Excluded},
		{"skipped", rep.Skipped},
		{"errors", rep.Errors},
	}
	rows := make([][]string, 0, len(counters))
	for _, c := range counters {
		rows = append(rows, []string{c.name, strconv.Itoa(c.value)})
	}
	b.WriteString(renderTable([]string{"Counter", "Channels"}, rows, []columnAlignment{alignLeft, alignRight}))
	b.WriteString("\n")

	if len(rep.RuleErrors) > 0 {
		rows = rows[:0]
		for _, re := range rep.RuleErrors {
			rows = append(rows, []string{strconv.FormatInt(re.MappingID, 10), re.Pattern, re.Message})
		}
		b.WriteString("\nSkipped mappings\n")
		b.WriteString(renderTable([]string{"ID", "Pattern", "Error"}, rows, []columnAlignment{alignRight}))
		b.WriteString("\n")
	}
	if len(rep.Failed) > 0 {
		fmt.Fprintf(&b, "\nFailed writes: %s\n", strings.Join(rep.Failed, ", "))
	}
	if changes := changedDecisions(rep.Decisions); len(changes) > 0 {
		rows = rows[:0]
		for _, d := range changes {
			score := ""
			if d.Score > 0 {
				score = strconv.FormatFloat(d.Score, 'f', 2, 64)
			}
			rows = append(rows, []string{d.ChannelID, d.Name, string(d.Action), string(d.Reason), d.EPGChannelID, score})
		}
		b.WriteString("\nChanges\n")
		b.WriteString(renderTable([]string{"Channel", "Name", "Action", "Reason", "EPG ID", "Score"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight}))
		b.WriteString("\n")
	}
	return b.String()
}

func changedDecisions(ds []reconcile.Decision) []reconcile.Decision {
	var out []reconcile.Decision
	for _, d := range ds {
		if d.Changed {
			out = append(out, d)
		}
	}
	return out
}

func renderSourceResults(results []service.SourceResult) string {
	if len(results) == 0 {
		return "No enabled EPG sources\n"
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "ok"
		if r.Error != "" {
			status = r.Error
		}
		rows = append(rows, []string{strconv.FormatInt(r.SourceID, 10), r.Name, strconv.Itoa(r.Channels), status})
	}
	return renderTable([]string{"ID", "Source", "Channels", "Status"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft}) + "\n"
}

func renderPreview(res *reconcile.PreviewResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d channel(s) match", res.Total)
	if res.Suppressed > 0 {
		fmt.Fprintf(&b, ", %d hidden by exclusions", res.Suppressed)
	}
	b.WriteString("\n")
	if len(res.Matches) == 0 {
		return b.String()
	}
	rows := make([][]string, 0, len(res.Matches))
	for _, m := range res.Matches {
		rows = append(rows, []string{m.ChannelID, m.Name, models.StrVal(m.TvgID), yesNo(m.Protected)})
	}
	b.WriteString(renderTable([]string{"Channel", "Name", "Current EPG ID", "Protected"}, rows, nil))
	b.WriteString("\n")
	if len(res.Matches) < res.Total {
		fmt.Fprintf(&b, "showing %d of %d\n", len(res.Matches), res.Total)
	}
	return b.String()
}

func renderCandidates(cands []reconcile.Candidate) string {
	if len(cands) == 0 {
		return "No suggestions\n"
	}
	rows := make([][]string, 0, len(cands))
	for _, c := range cands {
		rows = append(rows, []string{c.Entry.ID, c.Entry.Name, strconv.FormatFloat(c.Score, 'f', 2, 64)})
	}
	return renderTable([]string{"EPG ID", "Name", "Score"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight}) + "\n"
}

func renderMappings(records []models.MappingRecord) string {
	if len(records) == 0 {
		return "No pattern mappings\n"
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{strconv.FormatInt(r.ID, 10), r.SearchPattern, r.EPGChannelID, yesNo(r.Regex)})
	}
	return renderTable([]string{"ID", "Pattern", "EPG ID", "Regex"}, rows,
		[]columnAlignment{alignRight}) + "\n"
}
