package pmcparse

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/devicepubs/curator/internal/record"
)

func parseDoc(t *testing.T, articleXML string) (*record.Publication, error) {
	t.Helper()
	docs, err := DecodeArticleSet([]byte("<pmc-articleset>" + articleXML + "</pmc-articleset>"))
	if err != nil {
		t.Fatalf("decoding article set: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	p := NewParser()
	p.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return p.Parse(&docs[0])
}

func mustParse(t *testing.T, articleXML string) *record.Publication {
	t.Helper()
	pub, err := parseDoc(t, articleXML)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	return pub
}

func article(meta string) string {
	return `<article><front><article-meta>` + meta + `</article-meta></front></article>`
}

func TestParse_IdentityPreferencePMID(t *testing.T) {
	pub := mustParse(t, article(`
		<article-id pub-id-type="pmid">38012345</article-id>
		<article-id pub-id-type="pmc">PMC9876543</article-id>
		<article-id pub-id-type="doi">10.1000/j.demo.2024.01</article-id>`))

	if pub.ExternalID != "38012345" {
		t.Errorf("expected PMID identity, got %q", pub.ExternalID)
	}
	if pub.AccessionNumber != "PMC9876543" {
		t.Errorf("expected accession retained, got %q", pub.AccessionNumber)
	}
	if pub.DOI != "10.1000/j.demo.2024.01" {
		t.Errorf("expected DOI retained, got %q", pub.DOI)
	}
}

func TestParse_IdentityFallsBackToAccession(t *testing.T) {
	pub := mustParse(t, article(`
		<article-id pub-id-type="pmc">9876543</article-id>
		<article-id pub-id-type="doi">10.1000/x</article-id>`))

	if pub.ExternalID != "PMC9876543" {
		t.Errorf("expected accession surrogate identity, got %q", pub.ExternalID)
	}
}

func TestParse_IdentityFallsBackToDOI(t *testing.T) {
	pub := mustParse(t, article(`<article-id pub-id-type="doi">10.1000/only.doi</article-id>`))

	if pub.ExternalID != "10.1000/only.doi" {
		t.Errorf("expected DOI identity, got %q", pub.ExternalID)
	}
	if pub.AccessionNumber != "" {
		t.Errorf("expected empty accession, got %q", pub.AccessionNumber)
	}
}

func TestParse_NonNumericAccessionRejected(t *testing.T) {
	// Alphabetic prefix marks a publisher-specific ID, not a PMC accession.
	pub := mustParse(t, article(`
		<article-id pub-id-type="pmc">phy270717</article-id>
		<article-id pub-id-type="doi">10.1000/phy</article-id>`))

	if pub.AccessionNumber != "" {
		t.Errorf("non-numeric accession must be rejected, got %q", pub.AccessionNumber)
	}
	if pub.ExternalID != "10.1000/phy" {
		t.Errorf("expected DOI identity, got %q", pub.ExternalID)
	}
}

func TestParse_NoIdentityDiscarded(t *testing.T) {
	_, err := parseDoc(t, article(`
		<article-id pub-id-type="pmc">phy270717</article-id>
		<title-group><article-title>Orphan</article-title></title-group>`))
	if !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
}

func TestParse_CompletenessGating(t *testing.T) {
	complete := mustParse(t, article(`
		<article-id pub-id-type="pmc">1</article-id>
		<title-group><article-title>A Study</article-title></title-group>
		<contrib-group><contrib contrib-type="author"><name><surname>Okafor</surname><given-names>Chidi</given-names></name></contrib></contrib-group>`))
	if got := complete.InitialStatus(); got != record.StatusApproved {
		t.Errorf("complete record should be approved, got %q", got)
	}

	noTitle := mustParse(t, article(`
		<article-id pub-id-type="pmc">2</article-id>
		<contrib-group><contrib><name><surname>Okafor</surname></name></contrib></contrib-group>`))
	if noTitle.Title != record.SentinelTitle {
		t.Errorf("expected title sentinel, got %q", noTitle.Title)
	}
	if got := noTitle.InitialStatus(); got != record.StatusPending {
		t.Errorf("record without title should be pending, got %q", got)
	}

	noAuthors := mustParse(t, article(`
		<article-id pub-id-type="pmc">3</article-id>
		<title-group><article-title>Authorless</article-title></title-group>`))
	if noAuthors.AuthorsDisplay != record.SentinelAuthors {
		t.Errorf("expected authors sentinel, got %q", noAuthors.AuthorsDisplay)
	}
	if got := noAuthors.InitialStatus(); got != record.StatusPending {
		t.Errorf("record without authors should be pending, got %q", got)
	}
}

func TestParse_TitleInlineMarkupPreserved(t *testing.T) {
	pub := mustParse(t, article(`
		<article-id pub-id-type="pmc">4</article-id>
		<title-group><article-title>Effects of <italic>in vivo</italic> loading on <bold>coronary</bold> stents</article-title></title-group>`))

	want := "Effects of in vivo loading on coronary stents"
	if pub.Title != want {
		t.Errorf("expected %q, got %q", want, pub.Title)
	}
}

func TestParse_ExtLinkHrefFallback(t *testing.T) {
	pub := mustParse(t, article(`
		<article-id pub-id-type="pmc">5</article-id>
		<abstract><p>Protocol available at <ext-link ext-link-type="uri" xlink:href="https://osf.io/abc12"></ext-link>.</p></abstract>`))

	if !strings.Contains(pub.AbstractText, "https://osf.io/abc12") {
		t.Errorf("empty anchor should fall back to href, got %q", pub.AbstractText)
	}
}

func TestParse_AbstractFlatParagraphs(t *testing.T) {
	pub := mustParse(t, article(`
		<article-id pub-id-type="pmc">6</article-id>
		<abstract><p>First paragraph.</p><p>Second paragraph.</p></abstract>`))

	want := "First paragraph.\n\nSecond paragraph."
	if pub.AbstractText != want {
		t.Errorf("expected %q, got %q", want, pub.AbstractText)
	}
}

func TestParse_AbstractLabeledParagraphs(t *testing.T) {
	pub := mustParse(t, article(`
		<article-id pub-id-type="pmc">7</article-id>
		<abstract><p><bold>Background:</bold> Stents fail.</p><p><bold>Methods:</bold> We looked.</p></abstract>`))

	if !strings.Contains(pub.AbstractText, "Background: Stents fail.") {
		t.Errorf("labeled paragraph lost its label: %q", pub.AbstractText)
	}
	if !strings.Contains(pub.AbstractText, "Methods: We looked.") {
		t.Errorf("labeled paragraph lost its label: %q", pub.AbstractText)
	}
}

func TestParse_AbstractStructuredSections(t *testing.T) {
	pub := mustParse(t, article(`
		<article-id pub-id-type="pmc">8</article-id>
		<abstract>
			<sec><title>Background</title><p>Stents fail.</p></sec>
			<sec><title>Methods</title><sec><title>Cohort</title><p>Twelve patients.</p></sec></sec>
		</abstract>`))

	if !strings.Contains(pub.AbstractText, "Background: Stents fail.") {
		t.Errorf("section title not applied: %q", pub.AbstractText)
	}
	if !strings.Contains(pub.AbstractText, "Twelve patients.") {
		t.Errorf("nested section text dropped: %q", pub.AbstractText)
	}
}

func TestParse_TrialRegistrationAppended(t *testing.T) {
	pub := mustParse(t, article(`
		<article-id pub-id-type="pmc">9</article-id>
		<abstract>
			<sec><title>Results</title><p>It worked.</p></sec>
			<p>Trial registration: NCT01234567, registered 1 March 2021.</p>
		</abstract>`))

	if !strings.Contains(pub.AbstractText, "NCT01234567") {
		t.Errorf("trial registration dropped: %q", pub.AbstractText)
	}
}

func TestParse_DatePrefersEpub(t *testing.T) {
	pub := mustParse(t, article(`
		<article-id pub-id-type="pmc">10</article-id>
		<pub-date pub-type="ppub"><year>2023</year><month>5</month></pub-date>
		<pub-date pub-type="epub"><year>2022</year><month>Nov</month><day>14</day></pub-date>`))

	want := time.Date(2022, time.November, 14, 0, 0, 0, 0, time.UTC)
	if !pub.PublicationDate.Equal(want) {
		t.Errorf("expected %v, got %v", want, pub.PublicationDate)
	}
	if pub.DateApproximated {
		t.Error("dated record must not be flagged approximated")
	}
}

func TestParse_DateFallsBackToPrint(t *testing.T) {
	pub := mustParse(t, article(`
		<article-id pub-id-type="pmc">11</article-id>
		<pub-date pub-type="ppub"><year>2023</year></pub-date>`))

	if pub.PublicationDate.Year() != 2023 {
		t.Errorf("expected year 2023, got %v", pub.PublicationDate)
	}
}

func TestParse_MissingYearApproximatesToNow(t *testing.T) {
	pub := mustParse(t, article(`
		<article-id pub-id-type="pmc">12</article-id>
		<pub-date pub-type="epub"><month>3</month></pub-date>`))

	want := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if !pub.PublicationDate.Equal(want) {
		t.Errorf("expected processing-time fallback %v, got %v", want, pub.PublicationDate)
	}
	if !pub.DateApproximated {
		t.Error("fallback date must be flagged approximated")
	}
}

func TestParse_CollaboratorBlock(t *testing.T) {
	pub := mustParse(t, article(`
		<article-id pub-id-type="pmc">13</article-id>
		<contrib-group>
			<contrib contrib-type="author"><name><surname>Varga</surname><given-names>Ilona</given-names></name></contrib>
			<contrib contrib-type="author"><collab>EUROSTENT <italic>Study Group</italic></collab></contrib>
		</contrib-group>`))

	want := "Ilona Varga, EUROSTENT Study Group"
	if pub.AuthorsDisplay != want {
		t.Errorf("expected %q, got %q", want, pub.AuthorsDisplay)
	}
}

func TestParse_JournalTitleGroupPreferred(t *testing.T) {
	doc := `<article><front>
		<journal-meta>
			<journal-title-group><journal-title>J Interv Cardiol</journal-title></journal-title-group>
		</journal-meta>
		<article-meta><article-id pub-id-type="pmc">14</article-id></article-meta>
	</front></article>`

	pub := mustParse(t, doc)
	if pub.JournalName != "J Interv Cardiol" {
		t.Errorf("expected journal title, got %q", pub.JournalName)
	}
}

func TestDecodeArticleSet_BadXML(t *testing.T) {
	if _, err := DecodeArticleSet([]byte("<pmc-articleset><article>")); err == nil {
		t.Fatal("expected error for truncated XML")
	}
}

func TestParse_GraphicalAbstractSkipped(t *testing.T) {
	pub := mustParse(t, article(`
		<article-id pub-id-type="pmc">15</article-id>
		<abstract abstract-type="graphical"><p>Figure only.</p></abstract>
		<abstract><p>Real abstract.</p></abstract>`))

	if pub.AbstractText != "Real abstract." {
		t.Errorf("expected main abstract preferred, got %q", pub.AbstractText)
	}
}
