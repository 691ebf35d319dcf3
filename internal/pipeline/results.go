package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Phase outcome values recorded in the results file.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// PhaseResult records one phase's outcome.
type PhaseResult struct {
	Name       string         `json:"name"`
	Status     string         `json:"status"`
	Error      string         `json:"error,omitempty"`
	LogFile    string         `json:"log_file,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Details    map[string]any `json:"details,omitempty"`
}

// Results is the machine-readable summary of one pipeline run, written to
// the log directory as pipeline_results_<ts>.json.
type Results struct {
	RunID       string           `json:"run_id"`
	DryRun      bool             `json:"dry_run"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	Phases      []PhaseResult    `json:"phases"`
	TableCounts map[string]int64 `json:"table_counts,omitempty"`
	ResultsFile string           `json:"-"`
}

// Failed reports whether any phase failed; the process exit code follows it.
func (r Results) Failed() bool {
	for _, p := range r.Phases {
		if p.Status == StatusFailed {
			return true
		}
	}
	return false
}

func (r *Runner) writeResults(results *Results) error {
	if err := os.MkdirAll(r.cfg.Data.LogDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	ts := results.StartedAt.Format("20060102_150405")
	path := filepath.Join(r.cfg.Data.LogDir, fmt.Sprintf("pipeline_results_%s.json", ts))

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write results %s: %w", path, err)
	}
	results.ResultsFile = path
	return nil
}
