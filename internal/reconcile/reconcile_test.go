package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"

	"github.com/devicepubs/curator/internal/pmcparse"
	"github.com/devicepubs/curator/internal/record"
)

type fakeSource struct {
	body      []string
	anyField  []string
	searchErr error
	fetched   [][]string
}

func (s *fakeSource) SearchAll(ctx context.Context, term string) ([]string, int, error) {
	if s.searchErr != nil {
		return nil, 0, s.searchErr
	}
	if strings.HasSuffix(term, "[body]") {
		return s.body, len(s.body), nil
	}
	return s.anyField, len(s.anyField), nil
}

func (s *fakeSource) FetchDetails(ctx context.Context, ids []string) ([]pmcparse.Document, error) {
	s.fetched = append(s.fetched, ids)
	var b strings.Builder
	b.WriteString(`<pmc-articleset>`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<article><front><article-meta>
			<article-id pub-id-type="pmc">%s</article-id>
			<title-group><article-title>Record %s</article-title></title-group>
			<contrib-group><contrib contrib-type="author"><name><surname>Doe</surname><given-names>J</given-names></name></contrib></contrib-group>
			<pub-date pub-type="epub"><year>2024</year><month>2</month><day>1</day></pub-date>
			<abstract><p>Findings for %s.</p></abstract>
		</article-meta></front></article>`, id, id, id)
	}
	b.WriteString(`</pmc-articleset>`)
	return pmcparse.DecodeArticleSet([]byte(b.String()))
}

type fakeStore struct {
	ids    []string
	saved  map[string]record.Status
	idsErr error
}

func (s *fakeStore) ExistingIDs(ctx context.Context) ([]string, error) {
	return s.ids, s.idsErr
}

func (s *fakeStore) SavePublication(ctx context.Context, pub *record.Publication, status record.Status, suggestions []record.Suggestion) error {
	if s.saved == nil {
		s.saved = make(map[string]record.Status)
	}
	s.saved[pub.ExternalID] = status
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCompare_PartitionsDisjointAndComplete(t *testing.T) {
	source := &fakeSource{
		body:     []string{"100", "200", "300"},
		anyField: []string{"100", "200", "300", "400", "500"},
	}
	store := &fakeStore{ids: []string{"PMC100", "500", "10.1000/xyz"}}

	res, err := New(source, store, discard()).Compare(context.Background(), "stent")
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	if got, want := res.Matched, []string{"100", "500"}; !equal(got, want) {
		t.Errorf("Matched = %v, want %v", got, want)
	}
	if got, want := res.MissingWithBodyEvidence, []string{"200", "300"}; !equal(got, want) {
		t.Errorf("MissingWithBodyEvidence = %v, want %v", got, want)
	}
	if got, want := res.MissingWithMetadataOnlyEvidence, []string{"400"}; !equal(got, want) {
		t.Errorf("MissingWithMetadataOnlyEvidence = %v, want %v", got, want)
	}

	// The three buckets union to every searched ID and never overlap.
	union := map[string]int{}
	for _, bucket := range [][]string{res.Matched, res.MissingWithBodyEvidence, res.MissingWithMetadataOnlyEvidence} {
		for _, id := range bucket {
			union[id]++
		}
	}
	all := map[string]bool{}
	for _, id := range append(append([]string{}, source.body...), source.anyField...) {
		all[id] = true
	}
	if len(union) != len(all) {
		t.Errorf("bucket union has %d IDs, searches returned %d", len(union), len(all))
	}
	for id, n := range union {
		if n != 1 {
			t.Errorf("ID %s appears in %d buckets", id, n)
		}
		if !all[id] {
			t.Errorf("ID %s in a bucket but in no search result", id)
		}
	}
}

func TestCompare_MetadataOnlyEvidenceIsHeuristic(t *testing.T) {
	// Present in the unrestricted search, absent from the body search and
	// from the store: the weakest evidence bucket.
	source := &fakeSource{
		body:     []string{"10"},
		anyField: []string{"10", "20"},
	}
	store := &fakeStore{}

	res, err := New(source, store, discard()).Compare(context.Background(), "stent")
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if got, want := res.MissingWithMetadataOnlyEvidence, []string{"20"}; !equal(got, want) {
		t.Errorf("MissingWithMetadataOnlyEvidence = %v, want %v", got, want)
	}
	if got, want := res.MissingTotal, []string{"10", "20"}; !equal(got, want) {
		t.Errorf("MissingTotal = %v, want %v", got, want)
	}
}

func TestCompare_DeduplicatesRepeatedSearchIDs(t *testing.T) {
	// Paged searches can return the same ID more than once; each missing
	// bucket keeps a single entry.
	source := &fakeSource{
		body:     []string{"30", "30", "40"},
		anyField: []string{"30", "50", "50"},
	}
	store := &fakeStore{}

	res, err := New(source, store, discard()).Compare(context.Background(), "stent")
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if got, want := res.MissingWithBodyEvidence, []string{"30", "40"}; !equal(got, want) {
		t.Errorf("MissingWithBodyEvidence = %v, want %v", got, want)
	}
	if got, want := res.MissingWithMetadataOnlyEvidence, []string{"50"}; !equal(got, want) {
		t.Errorf("MissingWithMetadataOnlyEvidence = %v, want %v", got, want)
	}
}

func TestCompare_ReportsInvalidStoreIDs(t *testing.T) {
	source := &fakeSource{}
	store := &fakeStore{ids: []string{"PMC42", "10.1000/abc", "PMCalpha", ""}}

	res, err := New(source, store, discard()).Compare(context.Background(), "stent")
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if res.StoreTotal != 4 || res.StoreValid != 1 {
		t.Errorf("StoreTotal/StoreValid = %d/%d, want 4/1", res.StoreTotal, res.StoreValid)
	}
	if got, want := res.InvalidStoreIDs, []string{"", "10.1000/abc", "PMCalpha"}; !equal(got, want) {
		t.Errorf("InvalidStoreIDs = %v, want %v", got, want)
	}
}

func TestCompare_SearchFailureAborts(t *testing.T) {
	source := &fakeSource{searchErr: fmt.Errorf("boom")}
	if _, err := New(source, &fakeStore{}, discard()).Compare(context.Background(), "stent"); err == nil {
		t.Fatal("Compare() error = nil, want search failure")
	}
}

func TestSyncMissing_ImportsAndSkipsExisting(t *testing.T) {
	source := &fakeSource{}
	store := &fakeStore{ids: []string{"PMC200"}}

	res, err := New(source, store, discard()).SyncMissing(context.Background(), []string{"200", "300"}, nil)
	if err != nil {
		t.Fatalf("SyncMissing() error = %v", err)
	}
	if res.Saved != 1 || res.Skipped != 1 || res.FlaggedForReview != 0 {
		t.Errorf("result = %+v, want saved 1, skipped 1, flagged 0", res)
	}
	if status, ok := store.saved["PMC300"]; !ok || status != record.StatusApproved {
		t.Errorf("PMC300 status = %v (saved %v), want approved", status, ok)
	}
	if _, ok := store.saved["PMC200"]; ok {
		t.Error("PMC200 was re-imported despite existing in the store")
	}
}

func TestSyncMissing_MetadataOnlyImportsFlaggedPending(t *testing.T) {
	source := &fakeSource{}
	store := &fakeStore{}

	res, err := New(source, store, discard()).SyncMissing(context.Background(), nil, []string{"400"})
	if err != nil {
		t.Fatalf("SyncMissing() error = %v", err)
	}
	if res.Saved != 1 || res.FlaggedForReview != 1 {
		t.Errorf("result = %+v, want saved 1, flagged 1", res)
	}
	if status := store.saved["PMC400"]; status != record.StatusPending {
		t.Errorf("PMC400 status = %v, want pending despite complete metadata", status)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	ac := append([]string{}, a...)
	bc := append([]string{}, b...)
	sort.Strings(ac)
	sort.Strings(bc)
	for i := range ac {
		if ac[i] != bc[i] {
			return false
		}
	}
	return true
}
