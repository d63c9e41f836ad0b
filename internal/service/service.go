// Package service is the inbound operation surface of the curator: it wires
// the PMC client, store, trackers and engines together and exposes the
// operations a transport (CLI today) calls.
package service

import (
	"context"
	"log/slog"

	"github.com/devicepubs/curator/internal/categorize"
	"github.com/devicepubs/curator/internal/config"
	"github.com/devicepubs/curator/internal/ingest"
	"github.com/devicepubs/curator/internal/reconcile"
	"github.com/devicepubs/curator/internal/record"
	"github.com/devicepubs/curator/internal/runstate"
	"github.com/devicepubs/curator/internal/store"
)

// Service bundles the application's long-lived collaborators. Run trackers
// are owned here; orchestrators are built per request so request-scoped
// tuning (maxPerTerm) cannot leak between runs.
type Service struct {
	cfg        config.Config
	store      *store.Store
	source     ingest.Source
	classifier categorize.Classifier
	engine     *reconcile.Engine
	log        *slog.Logger

	syncTracker *runstate.Tracker
	catTracker  *runstate.Tracker
}

// reconcileSource is the wider client surface reconciliation needs.
type reconcileSource interface {
	ingest.Source
	reconcile.Source
}

// New wires a service. The classifier may be nil for keyword-only setups.
func New(cfg config.Config, st *store.Store, source reconcileSource, classifier categorize.Classifier, log *slog.Logger) *Service {
	return &Service{
		cfg:         cfg,
		store:       st,
		source:      source,
		classifier:  classifier,
		engine:      reconcile.New(source, st, log),
		log:         log,
		syncTracker: runstate.NewTracker("sync", cfg.Sync.Cooldown()),
		catTracker:  runstate.NewTracker("categorization", cfg.Sync.Cooldown()),
	}
}

// StartSyncRequest carries request-scoped overrides for a sync run.
type StartSyncRequest struct {
	MaxPerTerm int `json:"maxPerTerm"`
}

// Ack acknowledges that an asynchronous run was accepted.
type Ack struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

func (s *Service) orchestrator(req StartSyncRequest) *ingest.Orchestrator {
	return ingest.New(s.source, s.store, s.classifier, s.syncTracker, s.log, ingest.Options{
		Terms:       s.cfg.Sync.Terms,
		FloorYear:   s.cfg.Sync.FloorYear,
		WindowYears: s.cfg.Sync.WindowYears,
		MaxPerTerm:  req.MaxPerTerm,
		FanOut:      s.cfg.Sync.FanOut,
		BatchDelay:  s.cfg.Sync.BatchDelay(),
	})
}

// StartFullSync begins an asynchronous full sync. A run already in flight
// surfaces as runstate.ErrRunActive.
func (s *Service) StartFullSync(ctx context.Context, req StartSyncRequest) (*Ack, error) {
	if err := s.orchestrator(req).StartFull(ctx); err != nil {
		return nil, err
	}
	return &Ack{Started: true, Message: "full sync started"}, nil
}

// StartIncrementalSync begins an asynchronous incremental sync.
func (s *Service) StartIncrementalSync(ctx context.Context, req StartSyncRequest) (*Ack, error) {
	if err := s.orchestrator(req).StartIncremental(ctx); err != nil {
		return nil, err
	}
	return &Ack{Started: true, Message: "incremental sync started"}, nil
}

// RunFullSync performs a full sync synchronously.
func (s *Service) RunFullSync(ctx context.Context, req StartSyncRequest) error {
	return s.orchestrator(req).RunFull(ctx)
}

// RunIncrementalSync performs an incremental sync synchronously.
func (s *Service) RunIncrementalSync(ctx context.Context, req StartSyncRequest) error {
	return s.orchestrator(req).RunIncremental(ctx)
}

// SyncStatus reports the sync tracker snapshot.
func (s *Service) SyncStatus() runstate.Snapshot {
	return s.syncTracker.Snapshot()
}

// ResetSyncState forces the sync tracker back to idle. Refused while a run
// is active.
func (s *Service) ResetSyncState() error {
	return s.syncTracker.Reset()
}

// StartCategorization begins an asynchronous categorization pass over the
// stored publications selected by the filter.
func (s *Service) StartCategorization(ctx context.Context, filter categorize.Filter) (*Ack, error) {
	runner := categorize.NewRunner(s.store, s.classifier, s.catTracker, s.log)
	if s.cfg.Classifier.AutoApproveAt > 0 {
		runner.AutoApproveAt = s.cfg.Classifier.AutoApproveAt
	}
	if err := runner.Start(ctx, filter); err != nil {
		return nil, err
	}
	return &Ack{Started: true, Message: "categorization started"}, nil
}

// CategorizationStatus reports the categorization tracker snapshot.
func (s *Service) CategorizationStatus() runstate.Snapshot {
	return s.catTracker.Snapshot()
}

// Compare diffs the store against the source for one topic. Synchronous and
// read-only.
func (s *Service) Compare(ctx context.Context, topic string) (*reconcile.Result, error) {
	return s.engine.Compare(ctx, topic)
}

// SyncMissing imports a chosen subset of the IDs a comparison reported
// missing.
func (s *Service) SyncMissing(ctx context.Context, bodyIDs, metadataOnlyIDs []string) (*reconcile.ImportResult, error) {
	return s.engine.SyncMissing(ctx, bodyIDs, metadataOnlyIDs)
}

// Approve moves a publication to the approved state.
func (s *Service) Approve(ctx context.Context, externalID string) error {
	return s.store.SetStatus(ctx, externalID, record.StatusApproved)
}

// Reject moves a publication to the rejected state.
func (s *Service) Reject(ctx context.Context, externalID string) error {
	return s.store.SetStatus(ctx, externalID, record.StatusRejected)
}

// ListPublications returns the stored publications matching the filter.
func (s *Service) ListPublications(ctx context.Context, filter categorize.Filter) ([]record.Stored, error) {
	return s.store.ListForCategorization(ctx, filter)
}

// GetPublication loads one stored publication by external ID.
func (s *Service) GetPublication(ctx context.Context, externalID string) (*record.Stored, error) {
	return s.store.Get(ctx, externalID)
}

// Stats reports per-status publication counts.
func (s *Service) Stats(ctx context.Context) (map[record.Status]int, error) {
	return s.store.CountByStatus(ctx)
}
