package pmcparse

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/devicepubs/curator/internal/record"
)

// ErrNoIdentity is returned for documents carrying neither a usable
// accession number nor a DOI. Such documents are discarded, not retried.
var ErrNoIdentity = errors.New("document has no usable identity")

const accessionPrefix = "PMC"

// Parser converts raw article documents into publication records.
type Parser struct {
	// Now supplies the processing time used when a document carries no
	// recoverable publication year. Defaults to time.Now.
	Now func() time.Time
}

// NewParser returns a Parser with default settings.
func NewParser() *Parser {
	return &Parser{Now: time.Now}
}

// DecodeArticleSet unmarshals an efetch response body into raw documents.
type articleSet struct {
	XMLName  xml.Name   `xml:"pmc-articleset"`
	Articles []Document `xml:"article"`
}

// DecodeArticleSet parses an efetch response into its article documents.
func DecodeArticleSet(data []byte) ([]Document, error) {
	var set articleSet
	if err := xml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parsing article set: %w", err)
	}
	return set.Articles, nil
}

// Parse normalizes one raw document into a publication record. It returns an
// error for unsalvageable documents; callers filter those out rather than
// aborting the batch.
func (p *Parser) Parse(doc *Document) (*record.Publication, error) {
	meta := &doc.Front.ArticleMeta

	pmid, accession, doi := extractIDs(meta.IDs)
	if accession == "" && doi == "" {
		return nil, ErrNoIdentity
	}

	externalID := pmid
	if externalID == "" {
		externalID = accession
	}
	if externalID == "" {
		externalID = doi
	}

	pub := &record.Publication{
		ExternalID:      externalID,
		DOI:             doi,
		AccessionNumber: accession,
		Title:           record.SentinelTitle,
		AuthorsDisplay:  record.SentinelAuthors,
		JournalName:     "Unknown Journal",
	}

	if title := meta.TitleGroup.Title.Text; title != "" {
		pub.Title = title
	}
	if authors := formatAuthors(meta.ContribGroups); authors != "" {
		pub.AuthorsDisplay = authors
	}
	if journal := journalTitle(&doc.Front.JournalMeta); journal != "" {
		pub.JournalName = journal
	}

	pub.AbstractText = extractAbstract(meta.Abstracts)

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	pub.PublicationDate, pub.DateApproximated = extractDate(meta.PubDates, now)

	return pub, nil
}

// extractIDs scans the type-tagged identifier list. The accession number is
// accepted only when it is purely numeric after stripping the PMC prefix; an
// alphabetic accession is a publisher-specific ID and must not become the
// record identity.
func extractIDs(ids []articleID) (pmid, accession, doi string) {
	for _, id := range ids {
		value := strings.TrimSpace(id.Value)
		if value == "" {
			continue
		}
		switch strings.ToLower(id.Type) {
		case "pmid":
			if isNumeric(value) {
				pmid = value
			}
		case "pmc", "pmcid":
			digits := strings.TrimPrefix(value, accessionPrefix)
			if isNumeric(digits) {
				accession = accessionPrefix + digits
			}
		case "doi":
			doi = value
		}
	}
	return pmid, accession, doi
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// formatAuthors renders the contributor list for display. Named authors come
// out as "Given Surname"; collaborator blocks contribute their flow text.
func formatAuthors(groups []contribGroup) string {
	var names []string
	for _, g := range groups {
		for _, c := range g.Contribs {
			if c.Type != "" && c.Type != "author" {
				continue
			}
			switch {
			case c.Name.Surname != "":
				name := c.Name.Surname
				if c.Name.GivenNames != "" {
					name = c.Name.GivenNames + " " + c.Name.Surname
				}
				names = append(names, name)
			case c.Collab.Text != "":
				names = append(names, c.Collab.Text)
			}
		}
	}
	return strings.Join(names, ", ")
}

func journalTitle(jm *journalMeta) string {
	if jm.TitleGroup.Title.Text != "" {
		return jm.TitleGroup.Title.Text
	}
	return jm.Title.Text
}

// extractAbstract picks the main abstract and extracts its text in two
// stages: the document-order flow text is authoritative, and the structured
// decomposition is the fallback. A trial-registration mention is appended if
// the chosen stage dropped it.
func extractAbstract(abstracts []abstractNode) string {
	node := pickAbstract(abstracts)
	if node == nil {
		return ""
	}

	text := node.Flow
	if text == "" {
		text = node.structuredText()
	}
	if text == "" {
		return ""
	}

	if reg := node.trialRegistrationText(); reg != "" && !strings.Contains(text, reg) {
		text = text + "\n\n" + reg
	}
	return text
}

// pickAbstract prefers the untyped (main) abstract over graphical or summary
// variants.
func pickAbstract(abstracts []abstractNode) *abstractNode {
	for i := range abstracts {
		if abstracts[i].Type == "" {
			return &abstracts[i]
		}
	}
	if len(abstracts) > 0 {
		return &abstracts[0]
	}
	return nil
}

// extractDate prefers an electronic-publication entry, then a print one,
// then any dated entry. A document with no recoverable year falls back to
// the processing time and is flagged as approximated.
func extractDate(dates []pubDate, now func() time.Time) (time.Time, bool) {
	pick := func(markers ...string) *pubDate {
		for _, m := range markers {
			for i := range dates {
				if dates[i].marker() == m && dates[i].Year != "" {
					return &dates[i]
				}
			}
		}
		return nil
	}

	chosen := pick("epub", "electronic")
	if chosen == nil {
		chosen = pick("ppub", "print")
	}
	if chosen == nil {
		for i := range dates {
			if dates[i].Year != "" {
				chosen = &dates[i]
				break
			}
		}
	}
	if chosen == nil {
		return now(), true
	}

	year, err := strconv.Atoi(chosen.Year)
	if err != nil {
		return now(), true
	}
	month := parseMonth(chosen.Month)
	day, _ := strconv.Atoi(chosen.Day)
	if day < 1 || day > 31 {
		day = 1
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), false
}

var monthNames = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// parseMonth accepts both numeric and abbreviated-name month values.
func parseMonth(s string) time.Month {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= 12 {
		return time.Month(n)
	}
	if len(s) >= 3 {
		if m, ok := monthNames[strings.ToLower(s[:3])]; ok {
			return m
		}
	}
	return time.January
}
