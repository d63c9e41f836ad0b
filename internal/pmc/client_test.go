package pmc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/devicepubs/curator/internal/ncbi"
)

func searchXML(count int, ids ...string) string {
	var sb strings.Builder
	sb.WriteString("<eSearchResult><Count>")
	sb.WriteString(strconv.Itoa(count))
	sb.WriteString("</Count><IdList>")
	for _, id := range ids {
		sb.WriteString("<Id>" + id + "</Id>")
	}
	sb.WriteString("</IdList></eSearchResult>")
	return sb.String()
}

func articleSetXML(pmcids ...string) string {
	var sb strings.Builder
	sb.WriteString("<pmc-articleset>")
	for _, id := range pmcids {
		sb.WriteString(`<article><front><article-meta>`)
		sb.WriteString(`<article-id pub-id-type="pmc">` + id + `</article-id>`)
		sb.WriteString(`</article-meta></front></article>`)
	}
	sb.WriteString("</pmc-articleset>")
	return sb.String()
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(WithBaseURL(srv.URL), WithMaxRetries(0))
	c.BatchDelay = 0
	return c, srv
}

func TestSearch_Params(t *testing.T) {
	var query map[string]string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = make(map[string]string)
		for k, v := range r.URL.Query() {
			query[k] = v[0]
		}
		fmt.Fprint(w, searchXML(2, "111", "222"))
	})

	res, err := c.Search(context.Background(), `"cardiac stent"`, 50, &DateRange{Min: "2020", Max: "2024"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if query["db"] != "pmc" {
		t.Errorf("expected db=pmc, got %q", query["db"])
	}
	if query["term"] != `"cardiac stent"` {
		t.Errorf("unexpected term %q", query["term"])
	}
	if query["retmax"] != "50" {
		t.Errorf("expected retmax=50, got %q", query["retmax"])
	}
	if query["retmode"] != "xml" {
		t.Errorf("expected retmode=xml, got %q", query["retmode"])
	}
	if query["datetype"] != "pdat" || query["mindate"] != "2020" || query["maxdate"] != "2024" {
		t.Errorf("date window not forwarded: %v", query)
	}

	if res.Count != 2 {
		t.Errorf("expected count 2, got %d", res.Count)
	}
	if len(res.IDs) != 2 || res.IDs[0] != "111" || res.IDs[1] != "222" {
		t.Errorf("unexpected IDs %v", res.IDs)
	}
}

func TestSearch_EmptyTerm(t *testing.T) {
	c := NewClient()
	if _, err := c.Search(context.Background(), "", 10, nil); err == nil {
		t.Fatal("expected error for empty term")
	}
}

func TestSearchAll_PaginatesToExhaustion(t *testing.T) {
	pages := map[string][]string{
		"0":    {"1", "2"},
		"500":  {"3", "4"},
		"1000": {"5"},
	}
	var requests int
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		start := r.URL.Query().Get("retstart")
		if start == "" {
			start = "0"
		}
		fmt.Fprint(w, searchXML(5, pages[start]...))
	})

	ids, total, err := c.SearchAll(context.Background(), "device")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 5 {
		t.Errorf("expected total 5, got %d", total)
	}
	if len(ids) != 5 {
		t.Errorf("expected 5 IDs, got %v", ids)
	}
	if requests != 3 {
		t.Errorf("expected 3 paginated requests, got %d", requests)
	}
}

func TestFetchDetails_Chunks(t *testing.T) {
	var idParams []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		ids := r.URL.Query().Get("id")
		idParams = append(idParams, ids)
		fmt.Fprint(w, articleSetXML(strings.Split(ids, ",")...))
	})
	c.BatchSize = 2

	docs, err := c.FetchDetails(context.Background(), []string{"PMC1", "PMC2", "PMC3", "PMC4", "PMC5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 5 {
		t.Errorf("expected 5 documents, got %d", len(docs))
	}
	if len(idParams) != 3 {
		t.Fatalf("expected 3 chunked requests, got %d: %v", len(idParams), idParams)
	}
	if idParams[0] != "1,2" || idParams[1] != "3,4" || idParams[2] != "5" {
		t.Errorf("unexpected chunking: %v", idParams)
	}
}

func TestFetchDetails_PartialOnSourceFailure(t *testing.T) {
	var calls int
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, articleSetXML("1", "2"))
	})
	c.BatchSize = 2

	docs, err := c.FetchDetails(context.Background(), []string{"1", "2", "3", "4"})
	if err == nil {
		t.Fatal("expected error from failed second chunk")
	}
	if !errors.Is(err, ncbi.ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("expected 2 documents from the first chunk, got %d", len(docs))
	}
}

func TestFetchDetails_Empty(t *testing.T) {
	c := NewClient()
	docs, err := c.FetchDetails(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if docs != nil {
		t.Errorf("expected nil documents, got %v", docs)
	}
}
