package pmc

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/devicepubs/curator/internal/pmcparse"
)

// FetchDetails retrieves the raw article documents for the given accession
// IDs. Requests are chunked at BatchSize with BatchDelay between chunks to
// stay under the documented per-request and rate limits.
//
// On a chunk-level failure the documents fetched so far are returned along
// with the error; callers are expected to log and carry on with what they
// got rather than abort the run.
func (c *Client) FetchDetails(ctx context.Context, ids []string) ([]pmcparse.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	batchSize := c.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var docs []pmcparse.Document
	for start := 0; start < len(ids); start += batchSize {
		if start > 0 && c.BatchDelay > 0 {
			t := time.NewTimer(c.BatchDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return docs, ctx.Err()
			case <-t.C:
			}
		}

		end := min(start+batchSize, len(ids))
		chunk, err := c.fetchChunk(ctx, ids[start:end])
		if err != nil {
			return docs, err
		}
		docs = append(docs, chunk...)
	}
	return docs, nil
}

func (c *Client) fetchChunk(ctx context.Context, ids []string) ([]pmcparse.Document, error) {
	params := url.Values{}
	params.Set("db", Database)
	params.Set("id", strings.Join(normalizeIDs(ids), ","))
	params.Set("retmode", "xml")

	body, err := c.Get(ctx, "efetch.fcgi", params)
	if err != nil {
		return nil, fmt.Errorf("fetch request failed: %w", err)
	}

	docs, err := pmcparse.DecodeArticleSet(body)
	if err != nil {
		return nil, fmt.Errorf("decoding fetch response: %w", err)
	}
	return docs, nil
}

// normalizeIDs strips the PMC accession prefix; efetch expects bare UIDs.
func normalizeIDs(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strings.TrimPrefix(id, "PMC")
	}
	return out
}
