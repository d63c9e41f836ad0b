package pmc

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
)

// DateRange bounds a search by publication date. Values use E-utilities date
// syntax (YYYY, YYYY/MM or YYYY/MM/DD).
type DateRange struct {
	Min string
	Max string
}

// SearchResult is the outcome of one esearch request.
type SearchResult struct {
	// Count is the total number of matches on the server, which can exceed
	// len(IDs) when the query was capped by retmax.
	Count int
	IDs   []string
}

// esearchResult mirrors the retmode=xml eSearchResult payload.
type esearchResult struct {
	XMLName xml.Name `xml:"eSearchResult"`
	Count   string   `xml:"Count"`
	IDs     []string `xml:"IdList>Id"`
}

// Search performs one esearch request, optionally windowed by publication
// date, and returns the accession IDs of the matches.
func (c *Client) Search(ctx context.Context, term string, maxResults int, dates *DateRange) (*SearchResult, error) {
	return c.search(ctx, term, maxResults, 0, dates)
}

// SearchAll paginates an unwindowed search to exhaustion and returns every
// matching ID along with the server-reported total.
func (c *Client) SearchAll(ctx context.Context, term string) ([]string, int, error) {
	var all []string
	total := 0
	for start := 0; ; start += DefaultPageSize {
		res, err := c.search(ctx, term, DefaultPageSize, start, nil)
		if err != nil {
			return nil, 0, err
		}
		total = res.Count
		all = append(all, res.IDs...)
		if len(res.IDs) == 0 || len(all) >= res.Count {
			break
		}
	}
	return all, total, nil
}

func (c *Client) search(ctx context.Context, term string, retmax, retstart int, dates *DateRange) (*SearchResult, error) {
	if term == "" {
		return nil, fmt.Errorf("search term cannot be empty")
	}
	if retmax <= 0 {
		retmax = DefaultPageSize
	}

	params := url.Values{}
	params.Set("db", Database)
	params.Set("term", term)
	params.Set("retmode", "xml")
	params.Set("retmax", strconv.Itoa(retmax))
	if retstart > 0 {
		params.Set("retstart", strconv.Itoa(retstart))
	}
	if dates != nil && dates.Min != "" && dates.Max != "" {
		params.Set("datetype", "pdat")
		params.Set("mindate", dates.Min)
		params.Set("maxdate", dates.Max)
	}

	body, err := c.Get(ctx, "esearch.fcgi", params)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}

	var resp esearchResult
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	count, _ := strconv.Atoi(resp.Count)
	return &SearchResult{Count: count, IDs: resp.IDs}, nil
}
