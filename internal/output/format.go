// Package output provides formatting for curator CLI output.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/devicepubs/curator/internal/reconcile"
	"github.com/devicepubs/curator/internal/record"
	"github.com/devicepubs/curator/internal/runstate"
)

// OutputConfig controls which output mode(s) are active.
type OutputConfig struct {
	JSON    bool   // Structured JSON
	Human   bool   // Rich terminal output with color
	Full    bool   // Show full abstract (human mode)
	CSVFile string // Export results to this CSV path (works alongside any mode)
	RISFile string // Export results to this RIS path (works alongside any mode)
}

// FormatSnapshot writes a run-state snapshot.
func FormatSnapshot(w io.Writer, snap runstate.Snapshot, cfg OutputConfig) error {
	if cfg.JSON {
		return writeJSON(w, snap)
	}
	if cfg.Human {
		return formatSnapshotHuman(w, snap)
	}
	return formatSnapshotPlain(w, snap)
}

// FormatComparison writes a source-versus-store comparison.
func FormatComparison(w io.Writer, res *reconcile.Result, cfg OutputConfig) error {
	if cfg.JSON {
		return writeJSON(w, res)
	}
	if cfg.Human {
		return formatComparisonHuman(w, res)
	}
	return formatComparisonPlain(w, res)
}

// FormatImportResult writes the outcome of a sync-missing import.
func FormatImportResult(w io.Writer, res *reconcile.ImportResult, cfg OutputConfig) error {
	if cfg.JSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "Imported %d, skipped %d already present", res.Saved, res.Skipped)
	if res.FlaggedForReview > 0 {
		fmt.Fprintf(w, ", %d flagged for review", res.FlaggedForReview)
	}
	fmt.Fprintln(w)
	return nil
}

// FormatStats writes per-status publication counts.
func FormatStats(w io.Writer, counts map[record.Status]int, cfg OutputConfig) error {
	if cfg.JSON {
		return writeJSON(w, counts)
	}
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	total := 0
	for _, s := range statuses {
		n := counts[record.Status(s)]
		total += n
		fmt.Fprintf(w, "  %-10s %d\n", s+":", n)
	}
	fmt.Fprintf(w, "  %-10s %d\n", "total:", total)
	return nil
}

// FormatPublications writes stored publication details.
func FormatPublications(w io.Writer, pubs []record.Stored, cfg OutputConfig) error {
	if cfg.CSVFile != "" {
		if err := writePublicationsCSV(cfg.CSVFile, pubs); err != nil {
			return fmt.Errorf("CSV export failed: %w", err)
		}
	}
	if cfg.RISFile != "" {
		if err := writePublicationsRIS(cfg.RISFile, pubs); err != nil {
			return fmt.Errorf("RIS export failed: %w", err)
		}
	}
	if cfg.JSON {
		return writeJSON(w, pubs)
	}
	if cfg.Human {
		return formatPublicationsHuman(w, pubs, cfg.Full)
	}
	return formatPublicationsPlain(w, pubs)
}

// --- Plain text formatters (default) ---

func formatSnapshotPlain(w io.Writer, snap runstate.Snapshot) error {
	fmt.Fprintf(w, "Run: %s\n", snap.Kind)
	fmt.Fprintf(w, "Status: %s\n", snap.Status)
	if snap.Phase != "" {
		fmt.Fprintf(w, "Phase: %s\n", snap.Phase)
	}
	if snap.Total > 0 {
		fmt.Fprintf(w, "Progress: %d/%d\n", snap.Processed, snap.Total)
	}
	if snap.ETA > 0 {
		fmt.Fprintf(w, "ETA: %s\n", snap.ETA)
	}
	if snap.LastError != "" {
		fmt.Fprintf(w, "Error: %s\n", snap.LastError)
	}
	if len(snap.Counters) > 0 {
		fmt.Fprintln(w)
		names := make([]string, 0, len(snap.Counters))
		for name := range snap.Counters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %s: %d\n", name, snap.Counters[name])
		}
	}
	return nil
}

func formatComparisonPlain(w io.Writer, res *reconcile.Result) error {
	fmt.Fprintf(w, "Store: %d records (%d with valid catalog IDs)\n", res.StoreTotal, res.StoreValid)
	fmt.Fprintf(w, "Source: %d body matches, %d any-field matches\n", res.BodyTotal, res.AnyFieldTotal)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Matched: %d\n", len(res.Matched))
	fmt.Fprintf(w, "Missing with body evidence: %d\n", len(res.MissingWithBodyEvidence))
	if len(res.MissingWithBodyEvidence) > 0 {
		fmt.Fprintf(w, "  %s\n", strings.Join(res.MissingWithBodyEvidence, ", "))
	}
	fmt.Fprintf(w, "Missing with metadata-only evidence: %d\n", len(res.MissingWithMetadataOnlyEvidence))
	if len(res.MissingWithMetadataOnlyEvidence) > 0 {
		fmt.Fprintf(w, "  %s\n", strings.Join(res.MissingWithMetadataOnlyEvidence, ", "))
	}
	if len(res.InvalidStoreIDs) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Store IDs without a valid catalog ID: %d\n", len(res.InvalidStoreIDs))
		fmt.Fprintf(w, "  %s\n", strings.Join(res.InvalidStoreIDs, ", "))
	}
	return nil
}

func formatPublicationsPlain(w io.Writer, pubs []record.Stored) error {
	if len(pubs) == 0 {
		fmt.Fprintln(w, "No publications found.")
		return nil
	}

	for i, p := range pubs {
		if i > 0 {
			fmt.Fprintf(w, "\n%s\n\n", strings.Repeat("─", 80))
		}

		fmt.Fprintf(w, "ID: %s\n", p.ExternalID)
		fmt.Fprintf(w, "Title: %s\n", p.Title)
		fmt.Fprintf(w, "Authors: %s\n", p.AuthorsDisplay)
		if p.JournalName != "" {
			fmt.Fprintf(w, "Journal: %s\n", p.JournalName)
		}
		date := p.PublicationDate.Format("2006-01-02")
		if p.DateApproximated {
			date += " (approximate)"
		}
		fmt.Fprintf(w, "Date: %s\n", date)
		if p.DOI != "" {
			fmt.Fprintf(w, "DOI: %s\n", p.DOI)
		}
		fmt.Fprintf(w, "Status: %s\n", p.Status)
		if len(p.Categories) > 0 {
			fmt.Fprintf(w, "Categories: %s\n", strings.Join(p.Categories, ", "))
		}
		if len(p.Suggested) > 0 {
			parts := make([]string, len(p.Suggested))
			for j, s := range p.Suggested {
				parts[j] = fmt.Sprintf("%s (%.2f, %s)", s.Category, s.Confidence, s.Source)
			}
			fmt.Fprintf(w, "Suggested: %s\n", strings.Join(parts, ", "))
		}
		if p.AbstractText != "" {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Abstract:")
			fmt.Fprintln(w, p.AbstractText)
		}
	}

	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
