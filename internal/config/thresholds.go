package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Thresholds is the data-driven tuning surface for the cleaner, crawler,
// and image gates. The JSON keys are a stable external contract.
type Thresholds struct {
	ParagraphMinLength   int `json:"paragraph_min_length"`
	CleanedCharsMin      int `json:"cleaned_chars_min_global"`
	CleanedCharsMax      int `json:"cleaned_chars_max_global"`
	SportStrictMinChars  int `json:"sport_strict_min_chars"`
	SportRelaxedMinChars int `json:"sport_relaxed_min_chars"`

	CollectPreviewMinImageBytes int `json:"collect_preview_min_image_bytes"`
	BatchMinImageBytes          int `json:"batch_min_image_bytes"`
	QuickMinImageBytes          int `json:"quick_min_image_bytes"`

	PerFeedTimeoutSecs int   `json:"per_feed_timeout"`
	ArticlesPerSeed    int   `json:"articles_per_seed"`
	SampleRate         int   `json:"sample_rate"`
	RandomSeed         int64 `json:"random_seed"`
}

// DefaultThresholds mirrors the shipped thresholds.json.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ParagraphMinLength:          30,
		CleanedCharsMin:             2300,
		CleanedCharsMax:             4500,
		SportStrictMinChars:         1500,
		SportRelaxedMinChars:        1200,
		CollectPreviewMinImageBytes: 100 * 1024,
		BatchMinImageBytes:          70 * 1024,
		QuickMinImageBytes:          2 * 1024,
		PerFeedTimeoutSecs:          240,
		ArticlesPerSeed:             2,
		SampleRate:                  1,
		RandomSeed:                  42,
	}
}

// LoadThresholds reads the thresholds file; a missing file yields the
// defaults so ad-hoc invocations work out of a bare checkout.
func LoadThresholds(path string) (Thresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultThresholds(), nil
		}
		return Thresholds{}, fmt.Errorf("failed to read thresholds file %s: %w", path, err)
	}

	t := DefaultThresholds()
	if err := json.Unmarshal(data, &t); err != nil {
		return Thresholds{}, fmt.Errorf("failed to parse thresholds file %s: %w", path, err)
	}
	return t, nil
}

// PerFeedTimeout is the hard wall-clock budget per feed.
func (t Thresholds) PerFeedTimeout() time.Duration {
	if t.PerFeedTimeoutSecs <= 0 {
		return 240 * time.Second
	}
	return time.Duration(t.PerFeedTimeoutSecs) * time.Second
}

// MinImageBytes returns the image byte floor for a crawler mode.
func (t Thresholds) MinImageBytes(mode string) int {
	switch mode {
	case "quick":
		return t.QuickMinImageBytes
	case "collection":
		return t.CollectPreviewMinImageBytes
	default:
		return t.BatchMinImageBytes
	}
}

// LoadBannedWords reads the newline-separated banned-word file. Blank
// lines and #-prefixed comments are skipped; matching is done by the
// cleaner as whole words, case-insensitive.
func LoadBannedWords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open banned words file %s: %w", path, err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read banned words file %s: %w", path, err)
	}
	return words, nil
}
