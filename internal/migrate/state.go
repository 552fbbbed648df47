package migrate

import (
	"fmt"
	"sync"
	"time"
)

// Status enumerates the lifecycle states of a migration run.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// maxRetainedErrors caps the error list held in memory; later failures are
// still counted but their messages are dropped.
const maxRetainedErrors = 100

// RecordError pairs a record identifier with the failure message recorded
// for it.
type RecordError struct {
	RecordID string `json:"record_id"`
	Message  string `json:"message"`
}

// Snapshot is an immutable copy of the migration state at one point in time.
type Snapshot struct {
	Status           Status        `json:"status"`
	TotalRecords     int64         `json:"total_records"`
	ProcessedRecords int64         `json:"processed_records"`
	SuccessCount     int64         `json:"success_count"`
	FailureCount     int64         `json:"failure_count"`
	SkipCount        int64         `json:"skip_count"`
	CurrentBatch     int           `json:"current_batch"`
	TotalBatches     int           `json:"total_batches"`
	StartedAt        *time.Time    `json:"started_at"`
	CompletedAt      *time.Time    `json:"completed_at"`
	LastProcessedID  string        `json:"last_processed_id"`
	Errors           []RecordError `json:"errors"`
}

// Tracker records migration progress. It is safe for concurrent use: the
// orchestrator mutates it between batches while the control surface reads
// snapshots.
type Tracker struct {
	mu    sync.Mutex
	state Snapshot
	clock func() time.Time
}

// NewTracker constructs an idle tracker using the supplied clock, defaulting
// to time.Now.
func NewTracker(clock func() time.Time) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{
		state: Snapshot{Status: StatusIdle},
		clock: clock,
	}
}

// Start resets all counters and transitions the tracker to running.
func (t *Tracker) Start(totalRecords int64, batchSize int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	startedAt := t.clock().UTC()
	totalBatches := 0
	if batchSize > 0 {
		totalBatches = int((totalRecords + int64(batchSize) - 1) / int64(batchSize))
	}
	t.state = Snapshot{
		Status:       StatusRunning,
		TotalRecords: totalRecords,
		TotalBatches: totalBatches,
		StartedAt:    &startedAt,
	}
}

// UpdateProgress accumulates one batch's counts. Counters only ever increase.
func (t *Tracker) UpdateProgress(processed, success, failure, skip int, lastID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.ProcessedRecords += int64(processed)
	t.state.SuccessCount += int64(success)
	t.state.FailureCount += int64(failure)
	t.state.SkipCount += int64(skip)
	t.state.CurrentBatch++
	if lastID != "" {
		t.state.LastProcessedID = lastID
	}
}

// AddError retains the error for the given record until the cap is reached.
func (t *Tracker) AddError(recordID, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.state.Errors) < maxRetainedErrors {
		t.state.Errors = append(t.state.Errors, RecordError{RecordID: recordID, Message: message})
	}
}

// Complete marks the run completed. Terminal states are never left.
func (t *Tracker) Complete() {
	t.finalize(StatusCompleted)
}

// Fail marks the run failed. Terminal states are never left.
func (t *Tracker) Fail() {
	t.finalize(StatusFailed)
}

func (t *Tracker) finalize(status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Status == StatusCompleted || t.state.Status == StatusFailed {
		return
	}
	completedAt := t.clock().UTC()
	t.state.Status = status
	t.state.CompletedAt = &completedAt
}

// Pause transitions a running migration to paused. The orchestrator checks
// for this between batches and stops cleanly, leaving the cursor resumable.
func (t *Tracker) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Status == StatusRunning {
		t.state.Status = StatusPaused
	}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	copied := t.state
	copied.Errors = append([]RecordError(nil), t.state.Errors...)
	return copied
}

// Progress reports completion as a whole percentage of processed records.
func (t *Tracker) Progress() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.TotalRecords == 0 {
		return 0
	}
	return int(float64(t.state.ProcessedRecords)/float64(t.state.TotalRecords)*100 + 0.5)
}

// ETA estimates the remaining run time from the average per-record pace.
// The second return is false until at least one record has been processed.
func (t *Tracker) ETA() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.StartedAt == nil || t.state.ProcessedRecords == 0 {
		return "", false
	}

	elapsed := t.clock().Sub(*t.state.StartedAt)
	averagePerRecord := elapsed / time.Duration(t.state.ProcessedRecords)
	remaining := averagePerRecord * time.Duration(t.state.TotalRecords-t.state.ProcessedRecords)

	seconds := int64(remaining / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes%60), true
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds%60), true
	default:
		return fmt.Sprintf("%ds", seconds), true
	}
}
