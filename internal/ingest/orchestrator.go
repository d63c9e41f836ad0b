// Package ingest drives synchronization runs against the PMC source: full
// historical sweeps, incremental catch-ups from the newest stored record,
// and progressive runs that hand batches to the caller as they arrive.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/devicepubs/curator/internal/categorize"
	"github.com/devicepubs/curator/internal/dedupe"
	"github.com/devicepubs/curator/internal/ncbi"
	"github.com/devicepubs/curator/internal/pmc"
	"github.com/devicepubs/curator/internal/pmcparse"
	"github.com/devicepubs/curator/internal/record"
	"github.com/devicepubs/curator/internal/runstate"
)

// ErrNoSearchTerms is returned when a run is requested with an empty term
// list. Searching nothing would complete as a silent no-op, so it is an
// error instead.
var ErrNoSearchTerms = errors.New("no search terms configured")

// Source is the slice of the PMC client the orchestrator uses.
type Source interface {
	Search(ctx context.Context, term string, maxResults int, dates *pmc.DateRange) (*pmc.SearchResult, error)
	FetchDetails(ctx context.Context, ids []string) ([]pmcparse.Document, error)
}

// Store is the persistence collaborator contract: idempotent upsert keyed by
// external ID. Deduplication happens client-side first, so the pipeline does
// not rely on the store rejecting duplicates.
type Store interface {
	ExistingIDs(ctx context.Context) ([]string, error)
	SavePublication(ctx context.Context, pub *record.Publication, status record.Status, suggestions []record.Suggestion) error
	LatestPublicationDate(ctx context.Context) (time.Time, error)
}

// Options tunes an orchestrator.
type Options struct {
	// Terms is the search term list. Multiple terms are an intentional
	// redundancy strategy (exact phrase vs wildcard stem); cross-term
	// overlap is resolved by dedup.
	Terms       []string
	FloorYear   int
	WindowYears int
	MaxPerTerm  int
	// FanOut bounds concurrent per-record processing within a batch.
	FanOut int
	// BatchDelay spaces windows out; the only backpressure toward the
	// source and the classifier.
	BatchDelay time.Duration
	Now        func() time.Time
}

func (o *Options) normalize() {
	if o.FloorYear == 0 {
		o.FloorYear = DefaultFloorYear
	}
	if o.WindowYears <= 0 {
		o.WindowYears = DefaultWindowYears
	}
	if o.MaxPerTerm <= 0 {
		o.MaxPerTerm = 500
	}
	if o.FanOut <= 0 {
		o.FanOut = 5
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Batch is one window's worth of parsed, deduplicated records. Err marks a
// batch-level source failure; the batch then carries whatever was fetched
// before the failure, possibly nothing.
type Batch struct {
	Term     string
	Window   Window
	CatchAll bool
	Records  []*record.Publication
	Err      error
}

// Orchestrator owns the sync run state and is its sole mutator.
type Orchestrator struct {
	source     Source
	parser     *pmcparse.Parser
	classifier categorize.Classifier
	store      Store
	tracker    *runstate.Tracker
	log        *slog.Logger
	opts       Options
}

// New wires an orchestrator. The classifier may be nil, in which case
// records are persisted without suggestions.
func New(source Source, store Store, classifier categorize.Classifier, tracker *runstate.Tracker, log *slog.Logger, opts Options) *Orchestrator {
	opts.normalize()
	return &Orchestrator{
		source:     source,
		parser:     pmcparse.NewParser(),
		classifier: classifier,
		store:      store,
		tracker:    tracker,
		log:        log,
		opts:       opts,
	}
}

// Tracker exposes the run state for polling.
func (o *Orchestrator) Tracker() *runstate.Tracker { return o.tracker }

// searchJob is one scheduled search: a term plus an optional date window.
type searchJob struct {
	term     string
	window   Window
	dates    *pmc.DateRange
	catchAll bool
}

func (o *Orchestrator) fullJobs() []searchJob {
	windows := yearWindows(o.opts.FloorYear, o.opts.Now().Year(), o.opts.WindowYears)
	var jobs []searchJob
	for _, term := range o.opts.Terms {
		for _, w := range windows {
			jobs = append(jobs, searchJob{term: term, window: w, dates: w.DateRange()})
		}
		// Undated catch-all recovers records with no usable date metadata.
		jobs = append(jobs, searchJob{term: term, catchAll: true})
	}
	return jobs
}

func (o *Orchestrator) incrementalJobs(since time.Time) []searchJob {
	dates := &pmc.DateRange{
		Min: since.Format("2006/01/02"),
		Max: o.opts.Now().Format("2006/01/02"),
	}
	var jobs []searchJob
	for _, term := range o.opts.Terms {
		jobs = append(jobs, searchJob{term: term, dates: dates})
	}
	return jobs
}

// batches yields one Batch per search job, lazily. Within-run dedup happens
// here: seen accumulates resolved external IDs across all windows and terms.
func (o *Orchestrator) batches(ctx context.Context, jobs []searchJob, seen map[string]bool) iter.Seq[Batch] {
	return func(yield func(Batch) bool) {
		o.tracker.SetTotal(len(jobs))
		for i, job := range jobs {
			if i > 0 && o.opts.BatchDelay > 0 {
				time.Sleep(o.opts.BatchDelay)
			}
			if ctx.Err() != nil {
				return
			}

			b := Batch{Term: job.term, Window: job.window, CatchAll: job.catchAll}
			switch {
			case job.catchAll:
				o.tracker.SetPhase(fmt.Sprintf("catch-all undated search (%s)", job.term))
			case job.dates != nil:
				o.tracker.SetPhase(fmt.Sprintf("searching window %s-%s", job.dates.Min, job.dates.Max))
			}

			ids, err := o.searchIDs(ctx, job)
			if err != nil {
				// Source failure at batch level: log, surface an empty
				// batch, keep the run alive.
				o.log.Warn("search failed, skipping batch",
					"term", job.term, "catch_all", job.catchAll, "error", err)
				o.tracker.Count("failed_batches", 1)
				b.Err = err
				o.tracker.Advance(1)
				if !yield(b) {
					return
				}
				continue
			}

			if len(ids) == 0 {
				o.tracker.Advance(1)
				if !yield(b) {
					return
				}
				continue
			}

			o.tracker.SetPhase(fmt.Sprintf("fetching batch %d/%d (%d articles)", i+1, len(jobs), len(ids)))
			docs, err := o.source.FetchDetails(ctx, ids)
			if err != nil {
				if !errors.Is(err, ncbi.ErrSourceUnavailable) && !errors.Is(err, context.Canceled) {
					o.log.Warn("fetch failed", "term", job.term, "error", err)
				}
				// Partial results are still worth keeping.
				o.tracker.Count("failed_batches", 1)
				b.Err = err
			}

			parsed := o.parseAll(docs)
			b.Records = dedupe.Filter(parsed, seen)
			o.tracker.Count("skipped", len(parsed)-len(b.Records))
			o.tracker.Count("unique", len(b.Records))
			o.tracker.Advance(1)
			if !yield(b) {
				return
			}
		}
	}
}

func (o *Orchestrator) searchIDs(ctx context.Context, job searchJob) ([]string, error) {
	res, err := o.source.Search(ctx, job.term, o.opts.MaxPerTerm, job.dates)
	if err != nil {
		return nil, err
	}
	return res.IDs, nil
}

// parseAll normalizes documents one at a time; a bad document is logged and
// dropped, never aborting the batch.
func (o *Orchestrator) parseAll(docs []pmcparse.Document) []*record.Publication {
	out := make([]*record.Publication, 0, len(docs))
	for i := range docs {
		pub, err := o.parser.Parse(&docs[i])
		if err != nil {
			o.log.Debug("discarding unparsable document", "error", err)
			o.tracker.Count("discarded", 1)
			continue
		}
		out = append(out, pub)
	}
	return out
}

// StartFull begins an asynchronous full sync. Returns
// runstate.ErrRunActive synchronously when a run is already in flight.
func (o *Orchestrator) StartFull(ctx context.Context) error {
	if err := o.tracker.Begin(); err != nil {
		return err
	}
	go o.run(ctx, o.fullJobs)
	return nil
}

// StartIncremental begins an asynchronous incremental sync covering the span
// from the newest stored publication date through now.
func (o *Orchestrator) StartIncremental(ctx context.Context) error {
	if err := o.tracker.Begin(); err != nil {
		return err
	}
	go o.run(ctx, nil)
	return nil
}

// RunFull performs a full sync synchronously. Intended for CLI use; the
// service layer prefers StartFull.
func (o *Orchestrator) RunFull(ctx context.Context) error {
	if err := o.tracker.Begin(); err != nil {
		return err
	}
	o.run(ctx, o.fullJobs)
	if s := o.tracker.Snapshot(); s.Status == runstate.StatusError {
		return errors.New(s.LastError)
	}
	return nil
}

// RunIncremental performs an incremental sync synchronously.
func (o *Orchestrator) RunIncremental(ctx context.Context) error {
	if err := o.tracker.Begin(); err != nil {
		return err
	}
	o.run(ctx, nil)
	if s := o.tracker.Snapshot(); s.Status == runstate.StatusError {
		return errors.New(s.LastError)
	}
	return nil
}

// run executes a sync with the tracker already begun. jobsFn nil selects
// incremental jobs, which need the store's latest date first.
func (o *Orchestrator) run(ctx context.Context, jobsFn func() []searchJob) {
	defer func() {
		if p := recover(); p != nil {
			o.tracker.Fail(fmt.Errorf("sync run panicked: %v", p))
		}
	}()

	if len(o.opts.Terms) == 0 {
		o.tracker.Fail(ErrNoSearchTerms)
		return
	}

	seen, err := o.seenFromStore(ctx)
	if err != nil {
		o.tracker.Fail(fmt.Errorf("loading existing IDs: %w", err))
		return
	}

	var jobs []searchJob
	if jobsFn != nil {
		jobs = jobsFn()
	} else {
		since, err := o.store.LatestPublicationDate(ctx)
		if err != nil {
			o.tracker.Fail(fmt.Errorf("loading latest publication date: %w", err))
			return
		}
		if since.IsZero() {
			// Empty store: an incremental run degenerates to a full one.
			jobs = o.fullJobs()
		} else {
			jobs = o.incrementalJobs(since)
		}
	}

	for b := range o.batches(ctx, jobs, seen) {
		o.persistBatch(ctx, b)
	}
	if ctx.Err() != nil {
		o.tracker.Fail(ctx.Err())
		return
	}
	o.tracker.SetPhase("done")
	o.tracker.Complete()
}

// Progressive begins a run and returns the lazy batch sequence for the
// caller to consume and persist. The sequence is finite and single-pass; the
// tracker completes once iteration stops.
func (o *Orchestrator) Progressive(ctx context.Context) (iter.Seq[Batch], error) {
	if err := o.tracker.Begin(); err != nil {
		return nil, err
	}
	if len(o.opts.Terms) == 0 {
		o.tracker.Fail(ErrNoSearchTerms)
		return nil, ErrNoSearchTerms
	}
	seen, err := o.seenFromStore(ctx)
	if err != nil {
		o.tracker.Fail(fmt.Errorf("loading existing IDs: %w", err))
		return nil, err
	}

	inner := o.batches(ctx, o.fullJobs(), seen)
	return func(yield func(Batch) bool) {
		defer o.tracker.Complete()
		for b := range inner {
			if !yield(b) {
				return
			}
		}
	}, nil
}

func (o *Orchestrator) seenFromStore(ctx context.Context) (map[string]bool, error) {
	if o.store == nil {
		return make(map[string]bool), nil
	}
	ids, err := o.store.ExistingIDs(ctx)
	if err != nil {
		return nil, err
	}
	return dedupe.SeenSet(ids), nil
}

// persistBatch categorizes and saves a batch's records in bounded fan-out
// groups with an all-settle join, so one record's failure does not cancel
// its siblings.
func (o *Orchestrator) persistBatch(ctx context.Context, b Batch) {
	if len(b.Records) == 0 {
		return
	}

	fanOut := o.opts.FanOut
	for start := 0; start < len(b.Records); start += fanOut {
		end := min(start+fanOut, len(b.Records))

		var wg sync.WaitGroup
		for _, pub := range b.Records[start:end] {
			wg.Add(1)
			go func(pub *record.Publication) {
				defer wg.Done()
				o.persistOne(ctx, pub)
			}(pub)
		}
		wg.Wait()
	}
}

func (o *Orchestrator) persistOne(ctx context.Context, pub *record.Publication) {
	var suggestions []record.Suggestion
	if o.classifier != nil {
		res, err := o.classifier.Classify(ctx, pub.Title, pub.AbstractText)
		if err != nil {
			o.log.Warn("classification failed", "external_id", pub.ExternalID, "error", err)
		} else {
			suggestions = res.Suggestions
			for _, s := range res.Suggestions {
				pub.Categories = append(pub.Categories, s.Category)
			}
			pub.Keywords = res.Keywords
		}
	}

	status := pub.InitialStatus()
	if o.store != nil {
		if err := o.store.SavePublication(ctx, pub, status, suggestions); err != nil {
			o.log.Warn("persisting publication failed", "external_id", pub.ExternalID, "error", err)
			o.tracker.Count("failed", 1)
			return
		}
	}

	o.tracker.Count("imported", 1)
	if status == record.StatusApproved {
		o.tracker.Count("approved", 1)
	} else {
		o.tracker.Count("pending", 1)
	}
}
