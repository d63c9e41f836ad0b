// Package record defines the normalized publication entity produced by the
// ingestion pipeline and consumed by the store.
package record

import "time"

// Placeholder values used when a field cannot be recovered from the source
// document. A record carrying either is considered incomplete and enters the
// review queue instead of being auto-approved.
const (
	SentinelTitle   = "Untitled Publication"
	SentinelAuthors = "Unknown"
)

// Status is the curation state of a stored publication.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// CategoryReviewStatus tracks whether suggested categories have been looked at.
type CategoryReviewStatus string

const (
	ReviewPending      CategoryReviewStatus = "pending_review"
	ReviewAutoApproved CategoryReviewStatus = "auto_approved"
	ReviewDone         CategoryReviewStatus = "reviewed"
)

// Suggestion is one confidence-scored topic label for a publication.
type Suggestion struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// Publication is the normalized output of parsing one source article.
//
// ExternalID is the stable identity: the PubMed ID when the source document
// carries one, otherwise a PMC-prefixed surrogate built from the source
// accession number, otherwise the DOI. Records with none of these are
// discarded at parse time and never reach this type.
type Publication struct {
	ExternalID      string
	Title           string
	AuthorsDisplay  string
	JournalName     string
	PublicationDate time.Time
	// DateApproximated is set when no year could be recovered and the
	// publication date fell back to the processing time.
	DateApproximated bool
	AbstractText     string
	DOI              string
	AccessionNumber  string
	Categories       []string
	Keywords         []string
}

// Stored is a publication row as held by the store: the normalized record
// plus its curation state.
type Stored struct {
	ID string // generated row key, not the external identity
	Publication
	Status         Status
	Suggested      []Suggestion
	CategoryReview CategoryReviewStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Complete reports whether both title and authors were recovered from the
// document rather than defaulted.
func (p *Publication) Complete() bool {
	return p.Title != SentinelTitle && p.AuthorsDisplay != SentinelAuthors
}

// InitialStatus maps completeness to the curation state a freshly ingested
// record starts in.
func (p *Publication) InitialStatus() Status {
	if p.Complete() {
		return StatusApproved
	}
	return StatusPending
}
