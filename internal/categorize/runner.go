package categorize

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/devicepubs/curator/internal/record"
	"github.com/devicepubs/curator/internal/runstate"
)

// Filter selects which stored publications a batch run covers.
type Filter string

const (
	FilterAll           Filter = "all"
	FilterUncategorized Filter = "uncategorized"
	FilterPending       Filter = "pending"
	FilterApproved      Filter = "approved"
)

// Store is the slice of the persistence collaborator the runner needs.
type Store interface {
	ListForCategorization(ctx context.Context, f Filter) ([]record.Stored, error)
	SaveSuggestions(ctx context.Context, externalID string, suggestions []record.Suggestion, review record.CategoryReviewStatus) error
}

const (
	// DefaultFanOut is how many records are classified concurrently within
	// one batch. Batches run strictly sequentially.
	DefaultFanOut = 5
	// DefaultBatchDelay spaces batches out; this is the only backpressure
	// toward the external classifier.
	DefaultBatchDelay = 200 * time.Millisecond
	// DefaultAutoApproveAt is the top-confidence threshold above which
	// suggestions skip manual review.
	DefaultAutoApproveAt = 0.8
)

// Runner drives a categorization pass over the store, reporting progress
// through its tracker.
type Runner struct {
	store      Store
	classifier Classifier
	tracker    *runstate.Tracker
	log        *slog.Logger

	FanOut        int
	BatchDelay    time.Duration
	AutoApproveAt float64
}

// NewRunner wires a categorization runner. The tracker is owned by the
// runner from here on; callers only poll it.
func NewRunner(store Store, classifier Classifier, tracker *runstate.Tracker, log *slog.Logger) *Runner {
	return &Runner{
		store:         store,
		classifier:    classifier,
		tracker:       tracker,
		log:           log,
		FanOut:        DefaultFanOut,
		BatchDelay:    DefaultBatchDelay,
		AutoApproveAt: DefaultAutoApproveAt,
	}
}

// Tracker exposes the run state for polling.
func (r *Runner) Tracker() *runstate.Tracker { return r.tracker }

// Start begins an asynchronous categorization run. It returns
// runstate.ErrRunActive synchronously when a run is already in flight;
// otherwise it acknowledges immediately and the run proceeds in the
// background.
func (r *Runner) Start(ctx context.Context, f Filter) error {
	if err := r.tracker.Begin(); err != nil {
		return err
	}
	go r.run(ctx, f)
	return nil
}

func (r *Runner) run(ctx context.Context, f Filter) {
	defer func() {
		if p := recover(); p != nil {
			r.tracker.Fail(fmt.Errorf("categorization run panicked: %v", p))
		}
	}()

	r.tracker.SetPhase("loading publications")
	pubs, err := r.store.ListForCategorization(ctx, f)
	if err != nil {
		r.tracker.Fail(fmt.Errorf("loading publications: %w", err))
		return
	}
	r.tracker.SetTotal(len(pubs))

	fanOut := r.FanOut
	if fanOut <= 0 {
		fanOut = DefaultFanOut
	}

	for start := 0; start < len(pubs); start += fanOut {
		if ctx.Err() != nil {
			r.tracker.Fail(ctx.Err())
			return
		}
		if start > 0 && r.BatchDelay > 0 {
			time.Sleep(r.BatchDelay)
		}

		end := min(start+fanOut, len(pubs))
		batch := pubs[start:end]
		r.tracker.SetPhase(fmt.Sprintf("categorizing batch %d/%d", start/fanOut+1, (len(pubs)+fanOut-1)/fanOut))

		// All-settle: one record's failure never cancels its siblings.
		var wg sync.WaitGroup
		for _, pub := range batch {
			wg.Add(1)
			go func(pub record.Stored) {
				defer wg.Done()
				r.categorizeOne(ctx, pub)
			}(pub)
		}
		wg.Wait()
		r.tracker.Advance(len(batch))
	}

	r.tracker.SetPhase("done")
	r.tracker.Complete()
}

func (r *Runner) categorizeOne(ctx context.Context, pub record.Stored) {
	res, err := r.classifier.Classify(ctx, pub.Title, pub.AbstractText)
	if err != nil {
		r.log.Warn("classification failed", "external_id", pub.ExternalID, "error", err)
		r.tracker.Count("failed", 1)
		return
	}
	if len(res.Suggestions) == 0 {
		r.tracker.Count("skipped", 1)
		return
	}

	review := record.ReviewPending
	if res.Suggestions[0].Confidence >= r.AutoApproveAt {
		review = record.ReviewAutoApproved
	}
	if err := r.store.SaveSuggestions(ctx, pub.ExternalID, res.Suggestions, review); err != nil {
		r.log.Warn("saving suggestions failed", "external_id", pub.ExternalID, "error", err)
		r.tracker.Count("failed", 1)
		return
	}
	r.tracker.Count("success", 1)
}
