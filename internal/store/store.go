// Package store persists curated publications in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/devicepubs/curator/internal/categorize"
	"github.com/devicepubs/curator/internal/record"
)

const schema = `
CREATE TABLE IF NOT EXISTS publications (
  id TEXT PRIMARY KEY,
  external_id TEXT NOT NULL UNIQUE,
  title TEXT NOT NULL,
  authors_display TEXT NOT NULL,
  journal_name TEXT NOT NULL DEFAULT '',
  publication_date TEXT NOT NULL,
  date_approximated INTEGER NOT NULL DEFAULT 0,
  abstract_text TEXT NOT NULL DEFAULT '',
  doi TEXT NOT NULL DEFAULT '',
  accession_number TEXT NOT NULL DEFAULT '',
  categories TEXT NOT NULL DEFAULT '[]',
  keywords TEXT NOT NULL DEFAULT '[]',
  status TEXT NOT NULL,
  suggested_categories TEXT NOT NULL DEFAULT '[]',
  category_review_status TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_publications_status ON publications(status);
CREATE INDEX IF NOT EXISTS idx_publications_publication_date ON publications(publication_date);
`

// Store wraps the SQLite database holding curated publications.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. Use ":memory:" for
// an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ExistingIDs returns every stored external ID.
func (s *Store) ExistingIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT external_id FROM publications`)
	if err != nil {
		return nil, fmt.Errorf("listing external IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SavePublication inserts a publication or, when the external ID already
// exists, refreshes its source metadata. Curation state (status, suggested
// categories, review status) is never overwritten on conflict, so re-running
// an ingestion cannot undo reviewer decisions.
func (s *Store) SavePublication(ctx context.Context, pub *record.Publication, status record.Status, suggestions []record.Suggestion) error {
	now := time.Now().UTC().Format(time.RFC3339)
	categories := marshalJSON(pub.Categories)
	keywords := marshalJSON(pub.Keywords)
	suggested := marshalJSON(suggestions)

	review := ""
	if len(suggestions) > 0 {
		review = string(record.ReviewPending)
	}

	query, args, err := sq.Insert("publications").
		Columns("id", "external_id", "title", "authors_display", "journal_name",
			"publication_date", "date_approximated", "abstract_text", "doi",
			"accession_number", "categories", "keywords", "status",
			"suggested_categories", "category_review_status", "created_at", "updated_at").
		Values(uuid.NewString(), pub.ExternalID, pub.Title, pub.AuthorsDisplay, pub.JournalName,
			pub.PublicationDate.UTC().Format(time.RFC3339), boolToInt(pub.DateApproximated),
			pub.AbstractText, pub.DOI, pub.AccessionNumber, categories, keywords,
			string(status), suggested, review, now, now).
		Suffix(`ON CONFLICT(external_id) DO UPDATE SET
			title = excluded.title,
			authors_display = excluded.authors_display,
			journal_name = excluded.journal_name,
			publication_date = excluded.publication_date,
			date_approximated = excluded.date_approximated,
			abstract_text = excluded.abstract_text,
			doi = excluded.doi,
			accession_number = excluded.accession_number,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("saving %s: %w", pub.ExternalID, err)
	}
	return nil
}

// LatestPublicationDate returns the newest real publication date in the
// store, zero when the store is empty. Approximated dates are excluded so a
// parser fallback cannot shrink the next incremental window.
func (s *Store) LatestPublicationDate(ctx context.Context) (time.Time, error) {
	var latest sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(publication_date) FROM publications WHERE date_approximated = 0`).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("loading latest publication date: %w", err)
	}
	if !latest.Valid || latest.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, latest.String)
}

// ListForCategorization selects the publications a categorization run covers.
func (s *Store) ListForCategorization(ctx context.Context, f categorize.Filter) ([]record.Stored, error) {
	builder := sq.Select(storedColumns...).From("publications").OrderBy("created_at")
	switch f {
	case categorize.FilterAll, "":
	case categorize.FilterUncategorized:
		builder = builder.Where(sq.Eq{"categories": "[]", "suggested_categories": "[]"})
	case categorize.FilterPending:
		builder = builder.Where(sq.Eq{"status": string(record.StatusPending)})
	case categorize.FilterApproved:
		builder = builder.Where(sq.Eq{"status": string(record.StatusApproved)})
	default:
		return nil, fmt.Errorf("unknown filter %q", f)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	return s.queryStored(ctx, query, args...)
}

// SaveSuggestions records classifier output for one publication.
func (s *Store) SaveSuggestions(ctx context.Context, externalID string, suggestions []record.Suggestion, review record.CategoryReviewStatus) error {
	query, args, err := sq.Update("publications").
		Set("suggested_categories", marshalJSON(suggestions)).
		Set("category_review_status", string(review)).
		Set("updated_at", time.Now().UTC().Format(time.RFC3339)).
		Where(sq.Eq{"external_id": externalID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("saving suggestions for %s: %w", externalID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no publication with external ID %s", externalID)
	}
	return nil
}

// SetStatus moves a publication between curation states.
func (s *Store) SetStatus(ctx context.Context, externalID string, status record.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE publications SET status = ?, updated_at = ? WHERE external_id = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339), externalID)
	if err != nil {
		return fmt.Errorf("updating status for %s: %w", externalID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no publication with external ID %s", externalID)
	}
	return nil
}

// ReviewCategories records a reviewer's final category choice, replacing any
// suggestions.
func (s *Store) ReviewCategories(ctx context.Context, externalID string, categories []string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE publications SET categories = ?, category_review_status = ?, updated_at = ? WHERE external_id = ?`,
		marshalJSON(categories), string(record.ReviewDone),
		time.Now().UTC().Format(time.RFC3339), externalID)
	if err != nil {
		return fmt.Errorf("reviewing categories for %s: %w", externalID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no publication with external ID %s", externalID)
	}
	return nil
}

// Get loads one publication by external ID.
func (s *Store) Get(ctx context.Context, externalID string) (*record.Stored, error) {
	query, args, err := sq.Select(storedColumns...).From("publications").
		Where(sq.Eq{"external_id": externalID}).ToSql()
	if err != nil {
		return nil, err
	}
	pubs, err := s.queryStored(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(pubs) == 0 {
		return nil, fmt.Errorf("no publication with external ID %s", externalID)
	}
	return &pubs[0], nil
}

// CountByStatus returns how many publications sit in each curation state.
func (s *Store) CountByStatus(ctx context.Context) (map[record.Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM publications GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting publications: %w", err)
	}
	defer rows.Close()

	counts := make(map[record.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[record.Status(status)] = n
	}
	return counts, rows.Err()
}

var storedColumns = []string{
	"id", "external_id", "title", "authors_display", "journal_name",
	"publication_date", "date_approximated", "abstract_text", "doi",
	"accession_number", "categories", "keywords", "status",
	"suggested_categories", "category_review_status", "created_at", "updated_at",
}

func (s *Store) queryStored(ctx context.Context, query string, args ...any) ([]record.Stored, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying publications: %w", err)
	}
	defer rows.Close()

	var pubs []record.Stored
	for rows.Next() {
		var (
			p                               record.Stored
			pubDate, createdAt, updatedAt   string
			approximated                    int
			categories, keywords, suggested string
			status, review                  string
		)
		if err := rows.Scan(&p.ID, &p.ExternalID, &p.Title, &p.AuthorsDisplay, &p.JournalName,
			&pubDate, &approximated, &p.AbstractText, &p.DOI, &p.AccessionNumber,
			&categories, &keywords, &status, &suggested, &review,
			&createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.PublicationDate, _ = time.Parse(time.RFC3339, pubDate)
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		p.DateApproximated = approximated != 0
		p.Status = record.Status(status)
		p.CategoryReview = record.CategoryReviewStatus(review)
		if err := json.Unmarshal([]byte(categories), &p.Categories); err != nil {
			return nil, fmt.Errorf("decoding categories for %s: %w", p.ExternalID, err)
		}
		if err := json.Unmarshal([]byte(keywords), &p.Keywords); err != nil {
			return nil, fmt.Errorf("decoding keywords for %s: %w", p.ExternalID, err)
		}
		if err := json.Unmarshal([]byte(suggested), &p.Suggested); err != nil {
			return nil, fmt.Errorf("decoding suggestions for %s: %w", p.ExternalID, err)
		}
		pubs = append(pubs, p)
	}
	return pubs, rows.Err()
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return "[]"
	}
	return string(b)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
