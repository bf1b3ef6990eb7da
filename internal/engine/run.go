package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/stochastix/riskd/internal/sim"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Result summarizes the simulated distribution of a completed run.
type Result struct {
	ScenarioID        uuid.UUID          `json:"scenario_id"`
	Hash              string             `json:"hash"`
	Estimate          sim.Estimate       `json:"estimate"`
	StdDev            float64            `json:"std_dev"`
	Min               float64            `json:"min"`
	Max               float64            `json:"max"`
	Quantiles         map[string]float64 `json:"quantiles"`
	Baseline          float64            `json:"baseline"`
	Confidence        float64            `json:"confidence"`
	VaR               float64            `json:"var"`
	ExpectedShortfall float64            `json:"expected_shortfall"`
	Histogram         sim.Histogram      `json:"histogram"`
	Paths             int                `json:"paths"`
	Elapsed           string             `json:"elapsed"`
	FromCache         bool               `json:"from_cache"`
}

// Run tracks one in-flight or finished simulation.
type Run struct {
	ID         uuid.UUID
	ScenarioID uuid.UUID

	mu         sync.RWMutex
	status     RunStatus
	err        string
	startedAt  time.Time
	finishedAt time.Time
	result     *Result

	total    int
	progress atomic.Int64
	cancel   context.CancelFunc
}

func newRun(scenarioID uuid.UUID, total int, cancel context.CancelFunc) *Run {
	return &Run{
		ID:         uuid.New(),
		ScenarioID: scenarioID,
		status:     StatusPending,
		startedAt:  time.Now(),
		total:      total,
		cancel:     cancel,
	}
}

// View is a serializable snapshot of a run.
type View struct {
	ID             uuid.UUID `json:"id"`
	ScenarioID     uuid.UUID `json:"scenario_id"`
	Status         RunStatus `json:"status"`
	Error          string    `json:"error,omitempty"`
	PathsRequested int       `json:"paths_requested"`
	PathsCompleted int64     `json:"paths_completed"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at,omitzero"`
}

// Snapshot returns a consistent view of the run.
func (r *Run) Snapshot() View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return View{
		ID:             r.ID,
		ScenarioID:     r.ScenarioID,
		Status:         r.status,
		Error:          r.err,
		PathsRequested: r.total,
		PathsCompleted: r.progress.Load(),
		StartedAt:      r.startedAt,
		FinishedAt:     r.finishedAt,
	}
}

// Status returns the current lifecycle state.
func (r *Run) Status() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Result returns the run result once completed.
func (r *Run) Result() (*Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.result == nil {
		return nil, false
	}
	return r.result, true
}

// Cancel requests cancellation of an in-flight run.
func (r *Run) Cancel() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Run) setRunning() {
	r.mu.Lock()
	r.status = StatusRunning
	r.mu.Unlock()
}

func (r *Run) finish(status RunStatus, result *Result, err error) {
	r.mu.Lock()
	r.status = status
	r.result = result
	if err != nil {
		r.err = err.Error()
	}
	r.finishedAt = time.Now()
	r.mu.Unlock()
}
