// Package pipeline drives the mining, image, enrichment, and verify
// phases in order and writes a machine-readable results file per run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/daijiong1977/news-sub002/internal/config"
	"github.com/daijiong1977/news-sub002/internal/crawler"
	"github.com/daijiong1977/news-sub002/internal/deepseek"
	"github.com/daijiong1977/news-sub002/internal/images"
	"github.com/daijiong1977/news-sub002/internal/logger"
	"github.com/daijiong1977/news-sub002/internal/store"
)

// Phase names, in execution order.
const (
	PhasePurge    = "purge"
	PhaseMine     = "mine"
	PhaseImages   = "images"
	PhaseDeepSeek = "deepseek"
	PhaseVerify   = "verify"
)

// Options selects which phases run. --full sets everything except purge;
// purge runs only when asked for explicitly.
type Options struct {
	Purge    bool
	Mine     bool
	Images   bool
	DeepSeek bool
	Verify   bool
	DryRun   bool

	// ArticlesPerSeed overrides the thresholds value when > 0.
	ArticlesPerSeed int
}

// Phases lists the enabled phases in execution order.
func (o Options) Phases() []string {
	var phases []string
	if o.Purge {
		phases = append(phases, PhasePurge)
	}
	if o.Mine {
		phases = append(phases, PhaseMine)
	}
	if o.Images {
		phases = append(phases, PhaseImages)
	}
	if o.DeepSeek {
		phases = append(phases, PhaseDeepSeek)
	}
	if o.Verify {
		phases = append(phases, PhaseVerify)
	}
	return phases
}

// Runner executes the selected phases against one store.
type Runner struct {
	store *store.Store
	cfg   config.Config
}

// New creates a runner over the given store and configuration.
func New(st *store.Store, cfg config.Config) *Runner {
	return &Runner{store: st, cfg: cfg}
}

// Run executes the enabled phases in order. A phase failure records the
// error and skips the remaining phases; earlier phases' committed work is
// untouched. The results file is written even on failure.
func (r *Runner) Run(ctx context.Context, opts Options) (Results, error) {
	results := Results{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		DryRun:    opts.DryRun,
	}

	phases := opts.Phases()
	if opts.DryRun {
		for _, name := range phases {
			logger.Info("dry run: would execute phase", "phase", name)
			results.Phases = append(results.Phases, PhaseResult{Name: name, Status: StatusSkipped})
		}
		results.FinishedAt = time.Now()
		return results, nil
	}

	failed := false
	for _, name := range phases {
		if failed {
			results.Phases = append(results.Phases, PhaseResult{Name: name, Status: StatusSkipped})
			continue
		}
		pr := r.runPhase(ctx, name, opts)
		results.Phases = append(results.Phases, pr)
		if pr.Status == StatusFailed {
			failed = true
		}
	}

	counts, err := r.store.TableCounts()
	if err != nil {
		logger.Error("failed to collect table counts", err)
	} else {
		results.TableCounts = counts
	}
	results.FinishedAt = time.Now()

	if err := r.writeResults(&results); err != nil {
		logger.Error("failed to write results file", err)
	}

	if failed {
		return results, fmt.Errorf("pipeline run %s had a failed phase", results.RunID)
	}
	return results, nil
}

// runPhase executes one phase under its own teed logger.
func (r *Runner) runPhase(ctx context.Context, name string, opts Options) PhaseResult {
	pr := PhaseResult{Name: name, StartedAt: time.Now()}

	log, closeLog, logPath, err := logger.NewPhase(name, r.cfg.Data.LogDir)
	if err != nil {
		pr.Status = StatusFailed
		pr.Error = err.Error()
		return pr
	}
	defer closeLog()
	pr.LogFile = logPath

	details, err := r.execute(ctx, name, opts, log)
	pr.FinishedAt = time.Now()
	pr.Details = details
	if err != nil {
		pr.Status = StatusFailed
		pr.Error = err.Error()
		log.Error("phase failed", "error", err.Error())
		return pr
	}
	pr.Status = StatusCompleted
	return pr
}

func (r *Runner) execute(ctx context.Context, name string, opts Options, log *slog.Logger) (map[string]any, error) {
	switch name {
	case PhasePurge:
		return r.purge(log)

	case PhaseMine:
		c := crawler.New(r.store, r.cfg)
		c.ArticlesPerSeed = opts.ArticlesPerSeed
		stats, err := c.Run(ctx, log)
		return map[string]any{
			"feeds":        stats.FeedsTotal,
			"feeds_failed": stats.FeedsFailed,
			"accepted":     stats.Accepted,
			"skipped":      stats.Skipped,
		}, err

	case PhaseImages:
		stats, err := images.New(r.store, r.cfg).Run(ctx, log)
		return map[string]any{
			"processed": stats.Processed,
			"skipped":   stats.Skipped,
			"failed":    stats.Failed,
		}, err

	case PhaseDeepSeek:
		apiKey, err := r.store.APIKey("DeepSeek")
		if err != nil {
			return nil, err
		}
		client := deepseek.NewClient(apiKey, r.cfg.DeepSeek.BaseURL, r.cfg.DeepSeek.Model,
			r.cfg.DeepSeek.RequestTimeoutDuration())
		stats, err := deepseek.NewOrchestrator(r.store, r.cfg, client, log).Run(ctx)
		return map[string]any{
			"released":   stats.Released,
			"candidates": stats.Candidates,
			"completed":  stats.Completed,
			"failed":     stats.Failed,
			"skipped":    stats.Skipped,
		}, err

	case PhaseVerify:
		report, err := r.verify(log)
		return map[string]any{
			"articles_checked": report.ArticlesChecked,
			"violations":       report.Violations,
		}, err

	default:
		return nil, fmt.Errorf("unknown phase %q", name)
	}
}

// purge deletes pipeline-produced rows and the generated file trees.
// Configuration and user tables survive, as do the phase logs.
func (r *Runner) purge(log *slog.Logger) (map[string]any, error) {
	before, err := r.store.TableCounts()
	if err != nil {
		return nil, err
	}

	if err := r.store.Purge(); err != nil {
		return nil, err
	}

	removed := []string{
		filepath.Join(r.cfg.Data.WebsiteDir, "article_image"),
		filepath.Join(r.cfg.Data.WebsiteDir, "article_response"),
		r.cfg.Data.ResponsesDir,
		r.cfg.Data.CheckpointFile,
	}
	for _, path := range removed {
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}

	log.Info("purge complete", "articles_removed", before["articles"])
	return map[string]any{"articles_removed": before["articles"]}, nil
}
