package output

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/devicepubs/curator/internal/record"
)

// writePublicationsCSV exports stored publications for spreadsheet review.
func writePublicationsCSV(path string, pubs []record.Stored) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating CSV file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"external_id", "title", "authors", "journal", "date", "doi", "status", "categories"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}

	for _, p := range pubs {
		row := []string{
			p.ExternalID,
			p.Title,
			p.AuthorsDisplay,
			p.JournalName,
			p.PublicationDate.Format("2006-01-02"),
			p.DOI,
			string(p.Status),
			strings.Join(p.Categories, "; "),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

// writePublicationsRIS exports stored publications to RIS format for
// citation managers.
func writePublicationsRIS(path string, pubs []record.Stored) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating RIS file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for i, p := range pubs {
		writeRISTag(w, "TY", "JOUR")
		writeRISTag(w, "TI", p.Title)

		for _, au := range strings.Split(p.AuthorsDisplay, ", ") {
			if au != record.SentinelAuthors {
				writeRISTag(w, "AU", au)
			}
		}

		if !p.DateApproximated {
			writeRISTag(w, "PY", p.PublicationDate.Format("2006"))
		}
		writeRISTag(w, "JO", p.JournalName)
		writeRISTag(w, "DO", p.DOI)
		writeRISTag(w, "AB", p.AbstractText)
		if p.AccessionNumber != "" {
			writeRISTag(w, "ID", p.AccessionNumber)
			writeRISTag(w, "UR", "https://pmc.ncbi.nlm.nih.gov/articles/"+p.AccessionNumber+"/")
		}
		writeRISTag(w, "ER", "")

		if i < len(pubs)-1 {
			if _, err := w.WriteString("\n"); err != nil {
				return fmt.Errorf("writing RIS separator: %w", err)
			}
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing RIS output: %w", err)
	}

	return nil
}

func writeRISTag(w *bufio.Writer, tag, value string) {
	if tag == "" {
		return
	}
	if tag != "ER" && strings.TrimSpace(value) == "" {
		return
	}
	if tag == "ER" {
		_, _ = w.WriteString("ER  -\n")
		return
	}
	_, _ = w.WriteString(tag + "  - " + sanitizeRISValue(value) + "\n")
}

func sanitizeRISValue(v string) string {
	v = strings.ReplaceAll(v, "\r\n", " ")
	v = strings.ReplaceAll(v, "\n", " ")
	v = strings.ReplaceAll(v, "\r", " ")
	return strings.TrimSpace(v)
}
