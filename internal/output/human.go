package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/devicepubs/curator/internal/reconcile"
	"github.com/devicepubs/curator/internal/record"
	"github.com/devicepubs/curator/internal/runstate"
)

// --- Styles ---

var (
	cyan       = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	bold       = lipgloss.NewStyle().Bold(true)
	dim        = lipgloss.NewStyle().Faint(true)
	green      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	yellow     = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	red        = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("6")).
			Padding(0, 1)
)

// truncate cuts a string to maxLen characters, appending "…" if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "…"
}

func statusStyle(s runstate.Status) lipgloss.Style {
	switch s {
	case runstate.StatusRunning:
		return yellow
	case runstate.StatusCompleted:
		return green
	case runstate.StatusError:
		return red
	default:
		return dim
	}
}

// --- Run state ---

func formatSnapshotHuman(w io.Writer, snap runstate.Snapshot) error {
	header := bold.Render(snap.Kind) + "  " + statusStyle(snap.Status).Render(string(snap.Status))
	if snap.Phase != "" {
		header += "\n" + dim.Render(snap.Phase)
	}
	fmt.Fprintln(w, boxStyle.Render(header))

	if snap.Total > 0 {
		fmt.Fprintf(w, "  %s %d/%d", labelStyle.Render("Progress:"), snap.Processed, snap.Total)
		if snap.ETA > 0 {
			fmt.Fprintf(w, "  %s", dim.Render("ETA "+snap.ETA.String()))
		}
		fmt.Fprintln(w)
	}
	if snap.LastError != "" {
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Error:"), red.Render(snap.LastError))
	}

	if len(snap.Counters) > 0 {
		names := make([]string, 0, len(snap.Counters))
		for name := range snap.Counters {
			names = append(names, name)
		}
		sort.Strings(names)

		var rows [][]string
		for _, name := range names {
			rows = append(rows, []string{name, fmt.Sprintf("%d", snap.Counters[name])})
		}
		fmt.Fprintln(w, counterTable(rows).Render())
	}
	return nil
}

func counterTable(rows [][]string) *table.Table {
	return table.New().
		Headers("Counter", "Value").
		Rows(rows...).
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
			}
			return lipgloss.NewStyle()
		})
}

// --- Comparison ---

func formatComparisonHuman(w io.Writer, res *reconcile.Result) error {
	fmt.Fprintln(w, bold.Render(fmt.Sprintf("🔬 Store %d records · source %d body / %d any-field matches",
		res.StoreTotal, res.BodyTotal, res.AnyFieldTotal)))
	fmt.Fprintln(w)

	rows := [][]string{
		{"Matched", green.Render(fmt.Sprintf("%d", len(res.Matched))), ""},
		{"Missing (body evidence)", yellow.Render(fmt.Sprintf("%d", len(res.MissingWithBodyEvidence))),
			truncate(strings.Join(res.MissingWithBodyEvidence, ", "), 60)},
		{"Missing (metadata only)", yellow.Render(fmt.Sprintf("%d", len(res.MissingWithMetadataOnlyEvidence))),
			truncate(strings.Join(res.MissingWithMetadataOnlyEvidence, ", "), 60)},
	}
	if len(res.InvalidStoreIDs) > 0 {
		rows = append(rows, []string{"Invalid store IDs", red.Render(fmt.Sprintf("%d", len(res.InvalidStoreIDs))),
			truncate(strings.Join(res.InvalidStoreIDs, ", "), 60)})
	}

	t := table.New().
		Headers("Bucket", "Count", "IDs").
		Rows(rows...).
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
			}
			return lipgloss.NewStyle()
		})
	fmt.Fprintln(w, t.Render())

	if len(res.MissingWithBodyEvidence) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, dim.Render("💾 Use sync-missing to import the missing IDs"))
	}
	return nil
}

// --- Publications ---

func formatPublicationsHuman(w io.Writer, pubs []record.Stored, full bool) error {
	if len(pubs) == 0 {
		fmt.Fprintln(w, "No publications found.")
		return nil
	}

	for i, p := range pubs {
		if i > 0 {
			fmt.Fprintln(w)
		}

		// Title card
		titleLine := bold.Render(p.Title)
		meta := cyan.Render("ID: " + p.ExternalID)
		meta += dim.Render(" · ") + p.PublicationDate.Format("2006-01-02")
		if p.DateApproximated {
			meta += dim.Render(" (approx)")
		}
		meta += dim.Render(" · ") + statusBadge(p.Status)
		card := titleLine + "\n" + meta
		fmt.Fprintln(w, boxStyle.Render(card))
		fmt.Fprintln(w)

		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Authors:"), p.AuthorsDisplay)
		if p.JournalName != "" {
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Journal:"), p.JournalName)
		}
		if p.DOI != "" {
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("DOI:"), yellow.Render(p.DOI))
		}
		if len(p.Categories) > 0 {
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Categories:"), strings.Join(p.Categories, ", "))
		}
		if len(p.Suggested) > 0 {
			parts := make([]string, len(p.Suggested))
			for j, s := range p.Suggested {
				parts[j] = fmt.Sprintf("%s %s", s.Category, dim.Render(fmt.Sprintf("(%.2f)", s.Confidence)))
			}
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Suggested:"), strings.Join(parts, ", "))
		}

		if p.AbstractText != "" {
			fmt.Fprintln(w)
			fmt.Fprintf(w, "  %s\n", labelStyle.Render("Abstract:"))
			abstract := p.AbstractText
			if !full && len(abstract) > 500 {
				abstract = abstract[:497] + "..."
				fmt.Fprintf(w, "  %s\n", abstract)
				fmt.Fprintf(w, "  %s\n", dim.Render("[use --full for complete abstract]"))
			} else {
				fmt.Fprintf(w, "  %s\n", abstract)
			}
		}
	}

	return nil
}

func statusBadge(s record.Status) string {
	switch s {
	case record.StatusApproved:
		return green.Render(string(s))
	case record.StatusRejected:
		return red.Render(string(s))
	default:
		return yellow.Render(string(s))
	}
}
