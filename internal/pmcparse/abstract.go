package pmcparse

import (
	"encoding/xml"
	"regexp"
	"strings"
)

// abstractNode captures one <abstract> element two ways at once: Flow is the
// document-order text of everything inside it, and Sections/Paragraphs are
// the structured decomposition. Flow is authoritative because structured
// traversal can drop or reorder text around mixed inline markup; the
// structured form is kept as a fallback and for section labels.
type abstractNode struct {
	// Type is the abstract-type attribute ("graphical", "summary", ...);
	// empty for the main abstract.
	Type       string
	Flow       string
	Sections   []abstractSection
	Paragraphs []string
}

type abstractSection struct {
	Title      string
	Paragraphs []string
}

func (a *abstractNode) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "abstract-type" {
			a.Type = attr.Value
		}
	}

	var segments []string
	var pendingLabel string

	var walk func() error
	walk = func() error {
		for {
			tok, err := d.Token()
			if err != nil {
				return err
			}
			switch t := tok.(type) {
			case xml.StartElement:
				switch t.Name.Local {
				case "sec":
					sec, secSegments, err := collectSection(d)
					if err != nil {
						return err
					}
					a.Sections = append(a.Sections, sec)
					segments = append(segments, secSegments...)
				case "title":
					label, err := collectFlow(d)
					if err != nil {
						return err
					}
					pendingLabel = label
				case "p":
					text, err := collectFlow(d)
					if err != nil {
						return err
					}
					if text == "" {
						continue
					}
					a.Paragraphs = append(a.Paragraphs, text)
					if pendingLabel != "" {
						segments = append(segments, pendingLabel+": "+text)
						pendingLabel = ""
					} else {
						segments = append(segments, text)
					}
				default:
					// Unknown wrapper: descend so its paragraphs still count.
					if err := walk(); err != nil {
						return err
					}
				}
			case xml.EndElement:
				return nil
			}
		}
	}
	if err := walk(); err != nil {
		return err
	}

	a.Flow = strings.Join(segments, "\n\n")
	return nil
}

// collectSection consumes one <sec> element, returning its structured form
// and the document-order segments it contributes to the flow text. Nested
// sections are flattened in order.
func collectSection(d *xml.Decoder) (abstractSection, []string, error) {
	var sec abstractSection
	var segments []string

	for {
		tok, err := d.Token()
		if err != nil {
			return sec, nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "title":
				title, err := collectFlow(d)
				if err != nil {
					return sec, nil, err
				}
				sec.Title = title
			case "p":
				text, err := collectFlow(d)
				if err != nil {
					return sec, nil, err
				}
				if text == "" {
					continue
				}
				sec.Paragraphs = append(sec.Paragraphs, text)
				if sec.Title != "" && len(sec.Paragraphs) == 1 {
					segments = append(segments, sec.Title+": "+text)
				} else {
					segments = append(segments, text)
				}
			case "sec":
				nested, nestedSegments, err := collectSection(d)
				if err != nil {
					return sec, nil, err
				}
				sec.Paragraphs = append(sec.Paragraphs, nested.Paragraphs...)
				if nested.Title != "" && sec.Title == "" {
					sec.Title = nested.Title
				}
				segments = append(segments, nestedSegments...)
			default:
				if err := d.Skip(); err != nil {
					return sec, nil, err
				}
			}
		case xml.EndElement:
			return sec, segments, nil
		}
	}
}

var trialRegistrationPattern = regexp.MustCompile(`(?is)trial\s+registration[:.]?\s*(.+)`)

// trialRegistrationText returns the trial-registration mention embedded in
// the abstract, if any. Registration notes often live in a trailing
// paragraph that structural parsing drops.
func (a *abstractNode) trialRegistrationText() string {
	for _, p := range a.Paragraphs {
		if m := trialRegistrationPattern.FindString(p); m != "" {
			return normalizeSpace(m)
		}
	}
	for _, sec := range a.Sections {
		if strings.EqualFold(strings.TrimSuffix(sec.Title, ":"), "trial registration") && len(sec.Paragraphs) > 0 {
			return normalizeSpace("Trial registration: " + strings.Join(sec.Paragraphs, " "))
		}
		for _, p := range sec.Paragraphs {
			if m := trialRegistrationPattern.FindString(p); m != "" {
				return normalizeSpace(m)
			}
		}
	}
	return ""
}

// structuredText assembles abstract text from the structured decomposition.
// Used only when the flow extraction produced nothing.
func (a *abstractNode) structuredText() string {
	var parts []string
	for _, sec := range a.Sections {
		body := strings.Join(sec.Paragraphs, " ")
		if body == "" {
			continue
		}
		if sec.Title != "" {
			parts = append(parts, sec.Title+": "+body)
		} else {
			parts = append(parts, body)
		}
	}
	parts = append(parts, a.Paragraphs...)
	return strings.Join(parts, "\n\n")
}
