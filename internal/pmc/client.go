// Package pmc provides the PubMed Central E-utilities source client:
// windowed ID searches and chunked article fetches with the rate and batch
// limits NCBI documents.
package pmc

import (
	"time"

	"github.com/devicepubs/curator/internal/ncbi"
)

const (
	// Database is the E-utilities database queried by this client.
	Database = "pmc"

	// DefaultBatchSize is the maximum number of IDs per efetch request.
	DefaultBatchSize = 200
	// DefaultBatchDelay is the pause between consecutive efetch batches.
	DefaultBatchDelay = 350 * time.Millisecond
	// DefaultPageSize is the retmax used when paginating a search to
	// exhaustion.
	DefaultPageSize = 500
)

// Client issues search and fetch requests against PubMed Central.
type Client struct {
	*ncbi.Client

	// BatchSize caps IDs per efetch request; BatchDelay spaces batches out.
	BatchSize  int
	BatchDelay time.Duration
}

// Option configures a Client (alias for ncbi.Option).
type Option = ncbi.Option

// Re-exported ncbi options so callers need only this package.
var (
	WithBaseURL    = ncbi.WithBaseURL
	WithAPIKey     = ncbi.WithAPIKey
	WithTool       = ncbi.WithTool
	WithEmail      = ncbi.WithEmail
	WithHTTPClient = ncbi.WithHTTPClient
	WithMaxRetries = ncbi.WithMaxRetries
)

// NewClient creates a PMC client with the given options.
func NewClient(opts ...Option) *Client {
	return &Client{
		Client:     ncbi.NewClient(opts...),
		BatchSize:  DefaultBatchSize,
		BatchDelay: DefaultBatchDelay,
	}
}

// NewClientWithBase creates a PMC client over an existing base client, so the
// rate limiter is shared with any other E-utilities consumer.
func NewClientWithBase(base *ncbi.Client) *Client {
	return &Client{
		Client:     base,
		BatchSize:  DefaultBatchSize,
		BatchDelay: DefaultBatchDelay,
	}
}
