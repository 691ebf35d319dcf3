package images

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// checkpoint records the last image that finished (successfully or not)
// so a crashed run resumes where it left off. It is written after every
// per-image commit.
type checkpoint struct {
	LastProcessedFilename string           `json:"last_processed_filename"`
	Timestamp             time.Time        `json:"timestamp"`
	Counts                checkpointCounts `json:"counts"`
}

type checkpointCounts struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// loadCheckpoint reads the checkpoint file; a missing file starts fresh.
func loadCheckpoint(path string) (checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return checkpoint{}, nil
		}
		return checkpoint{}, fmt.Errorf("failed to read checkpoint %s: %w", path, err)
	}

	var cp checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return checkpoint{}, fmt.Errorf("failed to parse checkpoint %s: %w", path, err)
	}
	return cp, nil
}

func (cp *checkpoint) advance(filename string, stats Stats) {
	cp.LastProcessedFilename = filename
	cp.Timestamp = time.Now()
	cp.Counts = checkpointCounts{Processed: stats.Processed, Skipped: stats.Skipped, Failed: stats.Failed}
}

func (cp *checkpoint) save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create checkpoint directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint %s: %w", path, err)
	}
	return nil
}
