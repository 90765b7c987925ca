package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"manga-optimizer/internal/executor"
)

// RunStatus represents the current status of a pipeline run
type RunStatus string

const (
	RunStatusRunning               RunStatus = "running"
	RunStatusCompleted             RunStatus = "completed"
	RunStatusCompletedWithWarnings RunStatus = "completed_with_warnings"
	RunStatusCancelled             RunStatus = "cancelled"
	RunStatusFailed                RunStatus = "failed"
)

// statusFromSummary maps an executor terminal status to a run status.
func statusFromSummary(s executor.Status) RunStatus {
	switch s {
	case executor.StatusCompleted:
		return RunStatusCompleted
	case executor.StatusCompletedWithWarnings:
		return RunStatusCompletedWithWarnings
	case executor.StatusCancelled:
		return RunStatusCancelled
	default:
		return RunStatusFailed
	}
}

// Run represents one pipeline run in the system
type Run struct {
	ID         string            `json:"id"`
	Series     string            `json:"series"`
	Status     RunStatus         `json:"status"`
	PagesDone  int               `json:"pages_done"`
	PagesTotal int               `json:"pages_total"`
	Message    string            `json:"message"`
	Error      string            `json:"error,omitempty"`
	StartTime  time.Time         `json:"start_time"`
	EndTime    time.Time         `json:"end_time"`
	Summary    *executor.Summary `json:"summary,omitempty"`

	// Not persisted to JSON
	CancelFunc context.CancelFunc `json:"-"`
	cancelOnce sync.Once
}

// Duration returns how long the run has been (or was) active
func (r *Run) Duration() time.Duration {
	if r.Status == RunStatusRunning {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

// ProgressPercentage returns the run progress as a percentage
func (r *Run) ProgressPercentage() int {
	if r.PagesTotal <= 0 {
		return 0
	}
	return (r.PagesDone * 100) / r.PagesTotal
}

// RunManager tracks active and historical pipeline runs
type RunManager struct {
	runs        map[string]*Run
	mu          sync.RWMutex
	storagePath string
}

// NewRunManager creates a run manager persisting its history under
// dataDir. Runs left in the running state by a previous process are
// marked failed, since their goroutines did not survive the restart.
func NewRunManager(dataDir string) *RunManager {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		fmt.Printf("Warning: Failed to create data directory: %v\n", err)
	}

	rm := &RunManager{
		runs:        make(map[string]*Run),
		storagePath: filepath.Join(dataDir, "runs.json"),
	}

	if err := rm.LoadRuns(); err != nil {
		fmt.Printf("Warning: Failed to load run history: %v\n", err)
	}

	for _, r := range rm.runs {
		if r.Status == RunStatusRunning {
			r.Status = RunStatusFailed
			r.Message = "Run interrupted by service restart"
			r.EndTime = time.Now()
		}
	}

	if err := rm.SaveRuns(); err != nil {
		fmt.Printf("Warning: Failed to save updated run states: %v\n", err)
	}
	return rm
}

// SaveRuns persists all runs to disk
func (rm *RunManager) SaveRuns() error {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	runs := make([]*Run, 0, len(rm.runs))
	for _, r := range rm.runs {
		runs = append(runs, r)
	}

	data, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling runs: %v", err)
	}
	if err := os.WriteFile(rm.storagePath, data, 0644); err != nil {
		return fmt.Errorf("error writing runs to file: %v", err)
	}
	return nil
}

// LoadRuns loads the run history from disk
func (rm *RunManager) LoadRuns() error {
	if _, err := os.Stat(rm.storagePath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(rm.storagePath)
	if err != nil {
		return fmt.Errorf("error reading runs file: %v", err)
	}

	var runs []*Run
	if err := json.Unmarshal(data, &runs); err != nil {
		return fmt.Errorf("error unmarshaling runs: %v", err)
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	for _, r := range runs {
		rm.runs[r.ID] = r
	}
	return nil
}

// NewRun registers a new running pipeline run
func (rm *RunManager) NewRun(series string, pagesTotal int) *Run {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	run := &Run{
		ID:         uuid.NewString(),
		Series:     series,
		Status:     RunStatusRunning,
		PagesTotal: pagesTotal,
		StartTime:  time.Now(),
	}
	rm.runs[run.ID] = run

	go rm.SaveRuns()
	return run
}

// GetRun returns a run by ID
func (rm *RunManager) GetRun(id string) (*Run, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	run, exists := rm.runs[id]
	return run, exists
}

// ListRuns returns all runs
func (rm *RunManager) ListRuns() []*Run {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	runs := make([]*Run, 0, len(rm.runs))
	for _, r := range rm.runs {
		runs = append(runs, r)
	}
	return runs
}

// ListActiveRuns returns only running runs
func (rm *RunManager) ListActiveRuns() []*Run {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	runs := make([]*Run, 0)
	for _, r := range rm.runs {
		if r.Status == RunStatusRunning {
			runs = append(runs, r)
		}
	}
	return runs
}

// UpdateRun applies an update function to a run under the manager lock
func (rm *RunManager) UpdateRun(id string, update func(*Run)) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if run, exists := rm.runs[id]; exists {
		update(run)
		go rm.SaveRuns()
		return true
	}
	return false
}

// FinishRun records a run's end-of-run summary and terminal status
func (rm *RunManager) FinishRun(id string, summary executor.Summary) bool {
	return rm.UpdateRun(id, func(r *Run) {
		r.Status = statusFromSummary(summary.Status)
		r.PagesDone = summary.PagesDone
		r.PagesTotal = summary.PagesTotal
		r.Summary = &summary
		r.EndTime = time.Now()
		switch r.Status {
		case RunStatusCompleted:
			r.Message = "Processing complete!"
		case RunStatusCompletedWithWarnings:
			r.Message = fmt.Sprintf("Completed with %d warning(s)", len(summary.Errors))
		case RunStatusCancelled:
			r.Message = "Run cancelled"
		default:
			r.Message = "Run failed"
		}
	})
}

// FailRun marks a run as failed before a summary could be produced
func (rm *RunManager) FailRun(id string, errMsg string) bool {
	return rm.UpdateRun(id, func(r *Run) {
		r.Status = RunStatusFailed
		r.Error = errMsg
		r.EndTime = time.Now()
	})
}

// CancelRun requests cooperative cancellation of a running run. The
// run keeps its running status until the executor acknowledges the
// cancellation and reports its summary.
func (rm *RunManager) CancelRun(id string) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if run, exists := rm.runs[id]; exists && run.Status == RunStatusRunning {
		if run.CancelFunc != nil {
			run.cancelOnce.Do(run.CancelFunc)
		}
		run.Message = "Cancellation requested"
		go rm.SaveRuns()
		return true
	}
	return false
}

// DeleteRun removes a non-running run from history
func (rm *RunManager) DeleteRun(id string) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if run, exists := rm.runs[id]; exists && run.Status != RunStatusRunning {
		delete(rm.runs, id)
		go rm.SaveRuns()
		return true
	}
	return false
}

// CleanupOldRuns removes finished runs older than the given duration
func (rm *RunManager) CleanupOldRuns(age time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	now := time.Now()
	deleted := false
	for id, run := range rm.runs {
		if run.Status != RunStatusRunning && now.Sub(run.EndTime) > age {
			delete(rm.runs, id)
			deleted = true
		}
	}
	if deleted {
		go rm.SaveRuns()
	}
}
