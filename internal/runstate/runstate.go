// Package runstate implements the shared, polled progress record backing
// each kind of background run (sync, categorization). A tracker is owned and
// mutated by exactly one orchestrator instance; everyone else polls
// snapshots.
package runstate

import (
	"errors"
	"sync"
	"time"
)

// Status is the lifecycle position of a tracker.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// DefaultCooldown is how long a finished run stays visible before the
// tracker reverts to idle.
const DefaultCooldown = 30 * time.Second

// ErrRunActive is returned when a run is started while another one of the
// same kind is still running.
var ErrRunActive = errors.New("a run is already active")

// Snapshot is a point-in-time copy of a tracker, safe to hand to pollers.
type Snapshot struct {
	Kind      string         `json:"kind"`
	Status    Status         `json:"status"`
	Phase     string         `json:"phase,omitempty"`
	Processed int            `json:"processed"`
	Total     int            `json:"total"`
	Counters  map[string]int `json:"counters,omitempty"`
	StartedAt time.Time      `json:"started_at,omitzero"`
	EndedAt   time.Time      `json:"ended_at,omitzero"`
	LastError string         `json:"last_error,omitempty"`
	// ETA is the estimated remaining duration, derived from elapsed time
	// per processed unit; zero when no estimate is available.
	ETA time.Duration `json:"eta,omitempty"`
}

// Tracker is the mutable run-state record. The zero value is not usable;
// construct with NewTracker.
type Tracker struct {
	mu       sync.Mutex
	kind     string
	cooldown time.Duration

	status     Status
	phase      string
	processed  int
	total      int
	counters   map[string]int
	startedAt  time.Time
	endedAt    time.Time
	lastError  string
	generation int
}

// NewTracker creates an idle tracker for the given run kind. A cooldown of
// zero selects DefaultCooldown; a negative cooldown disables auto-revert.
func NewTracker(kind string, cooldown time.Duration) *Tracker {
	if cooldown == 0 {
		cooldown = DefaultCooldown
	}
	return &Tracker{
		kind:     kind,
		cooldown: cooldown,
		status:   StatusIdle,
		counters: make(map[string]int),
	}
}

// Begin transitions idle→running. Starting while a run is active fails with
// ErrRunActive and leaves the active run untouched.
func (t *Tracker) Begin() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusRunning {
		return ErrRunActive
	}
	t.generation++
	t.status = StatusRunning
	t.phase = ""
	t.processed = 0
	t.total = 0
	t.counters = make(map[string]int)
	t.startedAt = time.Now()
	t.endedAt = time.Time{}
	t.lastError = ""
	return nil
}

// SetPhase updates the human-readable phase label.
func (t *Tracker) SetPhase(phase string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = phase
}

// SetTotal sets the expected number of units for ETA estimation.
func (t *Tracker) SetTotal(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = n
}

// Advance increments the processed count.
func (t *Tracker) Advance(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processed += n
}

// Count adds to a named per-outcome counter (imported, skipped, failed, ...).
func (t *Tracker) Count(name string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters[name] += n
}

// Complete transitions running→completed and schedules the cooldown revert.
func (t *Tracker) Complete() {
	t.finish(StatusCompleted, "")
}

// Fail transitions running→error, capturing the message for pollers, and
// schedules the cooldown revert.
func (t *Tracker) Fail(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	t.finish(StatusError, msg)
}

func (t *Tracker) finish(status Status, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
	t.lastError = msg
	t.endedAt = time.Now()

	if t.cooldown < 0 {
		return
	}
	gen := t.generation
	time.AfterFunc(t.cooldown, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		// A newer run owns the tracker now; leave it alone.
		if t.generation != gen || t.status == StatusRunning {
			return
		}
		t.reset()
	})
}

// Reset reverts the tracker to idle immediately. Resetting a running tracker
// is refused.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusRunning {
		return ErrRunActive
	}
	t.generation++
	t.reset()
	return nil
}

func (t *Tracker) reset() {
	t.status = StatusIdle
	t.phase = ""
	t.processed = 0
	t.total = 0
	t.counters = make(map[string]int)
	t.startedAt = time.Time{}
	t.endedAt = time.Time{}
	t.lastError = ""
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	counters := make(map[string]int, len(t.counters))
	for k, v := range t.counters {
		counters[k] = v
	}

	s := Snapshot{
		Kind:      t.kind,
		Status:    t.status,
		Phase:     t.phase,
		Processed: t.processed,
		Total:     t.total,
		Counters:  counters,
		StartedAt: t.startedAt,
		EndedAt:   t.endedAt,
		LastError: t.lastError,
	}

	if t.status == StatusRunning && t.processed > 0 && t.total > t.processed {
		elapsed := time.Since(t.startedAt)
		perUnit := elapsed / time.Duration(t.processed)
		s.ETA = perUnit * time.Duration(t.total-t.processed)
	}
	return s
}
