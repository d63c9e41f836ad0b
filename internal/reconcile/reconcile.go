// Package reconcile answers "what does the source know about that the store
// doesn't?" by diffing the persisted publications against a fresh pair of
// source searches. Comparison is read-only; importing the gaps is a separate
// explicit operation.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/devicepubs/curator/internal/dedupe"
	"github.com/devicepubs/curator/internal/pmcparse"
	"github.com/devicepubs/curator/internal/record"
)

// Source is the slice of the PMC client the engine uses. Both searches are
// paginated to exhaustion by the client.
type Source interface {
	SearchAll(ctx context.Context, term string) ([]string, int, error)
	FetchDetails(ctx context.Context, ids []string) ([]pmcparse.Document, error)
}

// Store is the persistence collaborator contract used by reconciliation.
type Store interface {
	ExistingIDs(ctx context.Context) ([]string, error)
	SavePublication(ctx context.Context, pub *record.Publication, status record.Status, suggestions []record.Suggestion) error
}

// Result is the ephemeral outcome of one comparison. The three ID sets are
// pairwise disjoint and their union equals everything either search
// returned.
type Result struct {
	// StoreTotal counts all stored records; StoreValid counts those whose
	// ID is a syntactically valid catalog ID.
	StoreTotal int `json:"store_total"`
	StoreValid int `json:"store_valid"`
	// InvalidStoreIDs are stored identities that are not valid catalog IDs
	// (DOI fallbacks, placeholders). Reported, never counted as matches.
	InvalidStoreIDs []string `json:"invalid_store_ids,omitempty"`

	// BodyTotal and AnyFieldTotal are the exhaustive result counts of the
	// body-text-restricted and unrestricted searches.
	BodyTotal     int `json:"body_total"`
	AnyFieldTotal int `json:"any_field_total"`

	Matched []string `json:"matched"`
	// MissingWithBodyEvidence are body-search hits absent from the store:
	// strong candidates for import.
	MissingWithBodyEvidence []string `json:"missing_with_body_evidence"`
	// MissingWithMetadataOnlyEvidence are hits found only by the
	// unrestricted search. Heuristically these are reference or citation
	// mentions rather than true subject matches; they are surfaced for
	// manual review, never auto-imported.
	MissingWithMetadataOnlyEvidence []string `json:"missing_with_metadata_only_evidence"`
	MissingTotal                    []string `json:"missing_total"`
}

// Engine performs comparisons and selective imports.
type Engine struct {
	source Source
	store  Store
	parser *pmcparse.Parser
	log    *slog.Logger
}

// New wires a reconciliation engine.
func New(source Source, store Store, log *slog.Logger) *Engine {
	return &Engine{
		source: source,
		store:  store,
		parser: pmcparse.NewParser(),
		log:    log,
	}
}

// Compare runs the body-restricted and all-fields searches for the topic and
// partitions the combined result set against the store. Nothing is mutated.
func (e *Engine) Compare(ctx context.Context, topic string) (*Result, error) {
	bodyIDs, bodyTotal, err := e.source.SearchAll(ctx, topic+"[body]")
	if err != nil {
		return nil, fmt.Errorf("body search: %w", err)
	}
	allIDs, allTotal, err := e.source.SearchAll(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("all-fields search: %w", err)
	}

	stored, err := e.store.ExistingIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading store IDs: %w", err)
	}

	res := &Result{
		StoreTotal:    len(stored),
		BodyTotal:     bodyTotal,
		AnyFieldTotal: allTotal,
	}

	valid := make(map[string]bool)
	for _, id := range stored {
		if catalog, ok := normalizeCatalogID(id); ok {
			valid[catalog] = true
		} else {
			res.InvalidStoreIDs = append(res.InvalidStoreIDs, id)
		}
	}
	res.StoreValid = len(valid)

	bodySet := toSet(bodyIDs)
	matched := make(map[string]bool)
	missing := make(map[string]bool)

	for _, id := range bodyIDs {
		switch {
		case valid[id]:
			matched[id] = true
		case !missing[id]:
			missing[id] = true
			res.MissingWithBodyEvidence = append(res.MissingWithBodyEvidence, id)
		}
	}
	for _, id := range allIDs {
		if bodySet[id] {
			continue // already partitioned by the body pass
		}
		switch {
		case valid[id]:
			matched[id] = true
		case !missing[id]:
			missing[id] = true
			res.MissingWithMetadataOnlyEvidence = append(res.MissingWithMetadataOnlyEvidence, id)
		}
	}

	for id := range matched {
		res.Matched = append(res.Matched, id)
	}
	sort.Strings(res.Matched)
	sort.Strings(res.InvalidStoreIDs)
	sort.Strings(res.MissingWithBodyEvidence)
	sort.Strings(res.MissingWithMetadataOnlyEvidence)

	res.MissingTotal = append(append([]string{}, res.MissingWithBodyEvidence...), res.MissingWithMetadataOnlyEvidence...)
	sort.Strings(res.MissingTotal)
	return res, nil
}

// ImportResult reports the outcome of a selective import.
type ImportResult struct {
	Saved   int `json:"saved"`
	Skipped int `json:"skipped"`
	// FlaggedForReview counts imports from the metadata-only bucket, which
	// always enter the store pending rather than approved.
	FlaggedForReview int `json:"flagged_for_review"`
}

// SyncMissing fetches and imports a caller-chosen subset of missing IDs.
// Records already present are skipped, so the operation is duplicate-safe.
// Metadata-only IDs are stored pending review regardless of completeness;
// their evidence is advisory.
func (e *Engine) SyncMissing(ctx context.Context, bodyIDs, metadataOnlyIDs []string) (*ImportResult, error) {
	stored, err := e.store.ExistingIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading store IDs: %w", err)
	}
	seen := dedupe.SeenSet(stored)

	res := &ImportResult{}
	if err := e.importSet(ctx, bodyIDs, seen, false, res); err != nil {
		return res, err
	}
	if err := e.importSet(ctx, metadataOnlyIDs, seen, true, res); err != nil {
		return res, err
	}
	return res, nil
}

func (e *Engine) importSet(ctx context.Context, ids []string, seen map[string]bool, flagged bool, res *ImportResult) error {
	if len(ids) == 0 {
		return nil
	}

	docs, err := e.source.FetchDetails(ctx, ids)
	if err != nil {
		return fmt.Errorf("fetching missing records: %w", err)
	}

	var parsed []*record.Publication
	for i := range docs {
		pub, err := e.parser.Parse(&docs[i])
		if err != nil {
			e.log.Debug("discarding unparsable document", "error", err)
			continue
		}
		parsed = append(parsed, pub)
	}

	skippedBefore := len(parsed)
	fresh := dedupe.Filter(parsed, seen)
	res.Skipped += skippedBefore - len(fresh)

	for _, pub := range fresh {
		status := pub.InitialStatus()
		if flagged {
			status = record.StatusPending
		}
		if err := e.store.SavePublication(ctx, pub, status, nil); err != nil {
			return fmt.Errorf("saving %s: %w", pub.ExternalID, err)
		}
		res.Saved++
		if flagged {
			res.FlaggedForReview++
		}
	}
	return nil
}

// normalizeCatalogID reports whether a stored external ID is a syntactically
// valid catalog ID, returning its numeric form. The PMC surrogate prefix is
// tolerated; DOIs and placeholders are not.
func normalizeCatalogID(id string) (string, bool) {
	digits := strings.TrimPrefix(id, "PMC")
	if digits == "" {
		return "", false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return digits, true
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
