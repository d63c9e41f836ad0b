// Package pmcparse converts raw PubMed Central article documents (JATS XML)
// into normalized publication records. The source format is loose: almost any
// field can appear as bare text, a tagged element, or a list of either, with
// inline markup (emphasis, links, cross-references) mixed into titles and
// abstracts. Field extraction therefore goes through a single document-order
// text collector rather than per-field shape checks.
package pmcparse

import (
	"encoding/xml"
	"strings"
)

// Document is one raw article as returned by efetch. It is consumed
// read-only by Parse.
type Document struct {
	XMLName xml.Name `xml:"article"`
	Front   front    `xml:"front"`
}

type front struct {
	JournalMeta journalMeta `xml:"journal-meta"`
	ArticleMeta articleMeta `xml:"article-meta"`
}

type journalMeta struct {
	// Newer JATS nests the title in a group; older documents carry it
	// directly under journal-meta. Both are mapped.
	TitleGroup struct {
		Title flowText `xml:"journal-title"`
	} `xml:"journal-title-group"`
	Title flowText `xml:"journal-title"`
}

type articleMeta struct {
	IDs        []articleID `xml:"article-id"`
	TitleGroup struct {
		Title flowText `xml:"article-title"`
	} `xml:"title-group"`
	ContribGroups []contribGroup `xml:"contrib-group"`
	PubDates      []pubDate      `xml:"pub-date"`
	Abstracts     []abstractNode `xml:"abstract"`
}

// articleID is one entry of the type-tagged identifier list.
type articleID struct {
	Type  string `xml:"pub-id-type,attr"`
	Value string `xml:",chardata"`
}

type contribGroup struct {
	Contribs []contrib `xml:"contrib"`
}

type contrib struct {
	Type string `xml:"contrib-type,attr"`
	Name struct {
		Surname    string `xml:"surname"`
		GivenNames string `xml:"given-names"`
	} `xml:"name"`
	// Collab holds collaborator-name blocks, which carry mixed content.
	Collab flowText `xml:"collab"`
}

// pubDate is one dated entry; the marker attribute is pub-type in older JATS
// and date-type in newer documents.
type pubDate struct {
	PubType  string `xml:"pub-type,attr"`
	DateType string `xml:"date-type,attr"`
	Year     string `xml:"year"`
	Month    string `xml:"month"`
	Day      string `xml:"day"`
}

func (d pubDate) marker() string {
	if d.PubType != "" {
		return d.PubType
	}
	return d.DateType
}

// flowText collects the text content of an element in document order,
// regardless of how deeply inline markup nests. Formatting elements are
// stripped but their text is preserved; an ext-link whose anchor text is
// empty contributes its href target instead.
type flowText struct {
	Text string
}

func (f *flowText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	text, err := collectFlow(d)
	if err != nil {
		return err
	}
	f.Text = text
	return nil
}

// collectFlow consumes tokens up to the end of the current element,
// concatenating character data in document order.
func collectFlow(d *xml.Decoder) (string, error) {
	var sb strings.Builder

	type frame struct {
		name    string
		href    string
		textLen int
	}
	var stack []frame

	for {
		tok, err := d.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			fr := frame{name: t.Name.Local, textLen: sb.Len()}
			if t.Name.Local == "ext-link" {
				for _, a := range t.Attr {
					if a.Name.Local == "href" {
						fr.href = a.Value
					}
				}
			}
			stack = append(stack, fr)

		case xml.EndElement:
			if len(stack) == 0 {
				// Closing tag of the element we were asked to consume.
				return normalizeSpace(sb.String()), nil
			}
			fr := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			// Empty anchor text: fall back to the link target.
			if fr.name == "ext-link" && fr.href != "" && strings.TrimSpace(sb.String()[fr.textLen:]) == "" {
				sb.WriteString(fr.href)
			}

		case xml.CharData:
			sb.Write([]byte(t))
		}
	}
}

// normalizeSpace collapses runs of whitespace into single spaces and trims.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
