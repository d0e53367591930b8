package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/txnflow/internal/monitor"
	"github.com/charmbracelet/lipgloss"
)

// RenderDashboard renders a monitor snapshot with times shown in loc.
func RenderDashboard(snap *monitor.Snapshot, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	var overview strings.Builder
	row := func(label string, value any) {
		fmt.Fprintf(&overview, "%s %v\n", mutedStyle.Render(fmt.Sprintf("%-22s", label)), value)
	}
	row("Total transactions", snap.TotalTransactions)
	row("Unique customers", snap.UniqueCustomers)
	row("Unique merchants", snap.UniqueMerchants)
	row("Checkpoint (next row)", snap.CheckpointRow)
	row("Chunks produced", snap.ChunksProduced)
	row("Input objects", snap.InputObjects)
	row("Output batches", snap.OutputObjects)
	pending := fmt.Sprint(snap.PendingUploads)
	if snap.PendingUploads > 0 {
		pending = warnStyle.Render(pending)
	}
	row("Pending uploads", pending)
	if !snap.CheckpointUpdated.IsZero() {
		row("Checkpoint updated", snap.CheckpointUpdated.In(loc).Format(time.DateTime))
	}

	patterns := renderTable(
		[]string{"Pattern", "Action", "Count"},
		patternRows(snap),
	)
	if len(snap.Patterns) == 0 {
		patterns = mutedStyle.Render("No detections yet")
	}

	recent := renderTable(
		[]string{"Detected", "Pattern", "Action", "Customer", "Merchant", "Uploaded"},
		recentRows(snap, loc),
	)
	if len(snap.RecentDetections) == 0 {
		recent = mutedStyle.Render("No detections yet")
	}

	sections := []string{
		FormatTitle("txnflow pipeline"),
		renderPanel(iconChart+" Overview", strings.TrimRight(overview.String(), "\n")),
		renderPanel(fmt.Sprintf("Detections by pattern (%d)", snap.TotalDetections()), patterns),
		renderPanel("Recent detections", recent),
	}
	if len(snap.Workers) > 0 {
		var workers []string
		for _, name := range sortedKeys(snap.Workers) {
			workers = append(workers, fmt.Sprintf("%s %s", boldStyle.Render(name), snap.Workers[name]))
		}
		sections = append(sections, renderPanel("Workers", strings.Join(workers, "\n")))
	}
	sections = append(sections, mutedStyle.Render("Updated "+snap.TakenAt.In(loc).Format(time.DateTime)))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func patternRows(snap *monitor.Snapshot) [][]string {
	rows := make([][]string, 0, len(snap.Patterns))
	for _, p := range snap.Patterns {
		rows = append(rows, []string{string(p.PatternID), string(p.ActionType), fmt.Sprint(p.Count)})
	}
	return rows
}

func recentRows(snap *monitor.Snapshot, loc *time.Location) [][]string {
	rows := make([][]string, 0, len(snap.RecentDetections))
	for _, d := range snap.RecentDetections {
		uploaded := warnStyle.Render("no")
		if d.Uploaded {
			uploaded = okStyle.Render(iconOK)
		}
		customer := d.CustomerName
		if customer == "" {
			customer = "-"
		}
		rows = append(rows, []string{
			d.DetectionTime.In(loc).Format(time.DateTime),
			string(d.PatternID),
			string(d.ActionType),
			customer,
			d.MerchantID,
			uploaded,
		})
	}
	return rows
}

// renderTable lays out rows in columns sized to their widest cell.
func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, r := range rows {
		for i, cell := range r {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	line := func(cells []string, style lipgloss.Style) string {
		rendered := make([]string, len(cells))
		for i, cell := range cells {
			rendered[i] = cellStyle.Width(widths[i] + 2).Render(cell)
		}
		return style.Render(lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
	}

	out := []string{line(headers, headerStyle)}
	for _, r := range rows {
		out = append(out, line(r, lipgloss.NewStyle()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, out...)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
