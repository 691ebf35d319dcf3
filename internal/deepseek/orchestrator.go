package deepseek

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/daijiong1977/news-sub002/internal/config"
	"github.com/daijiong1977/news-sub002/internal/core"
	"github.com/daijiong1977/news-sub002/internal/store"
)

// LLMClient is the provider surface the orchestrator needs. The concrete
// Client satisfies it; tests substitute a scripted implementation.
type LLMClient interface {
	Enrich(ctx context.Context, prompt string) ([]byte, error)
	Model() string
}

// Stats summarizes one orchestrator run.
type Stats struct {
	Released   int64 // stale claims returned to the pool at start
	Candidates int
	Completed  int
	Failed     int
	Skipped    int // sampled out or lost the claim race
}

// Orchestrator drains the unprocessed article set through the LLM.
// Workers coordinate only through ClaimArticle; there is no in-process
// assignment of articles to workers.
type Orchestrator struct {
	store   *store.Store
	cfg     config.Config
	client  LLMClient
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewOrchestrator wires the orchestrator. The shared limiter spaces
// requests across all workers at the configured interval.
func NewOrchestrator(st *store.Store, cfg config.Config, client LLMClient, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:   st,
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Every(cfg.DeepSeek.RequestIntervalDuration()), 1),
		log:     log,
	}
}

// Run recovers stale claims, lists the unprocessed set once, and fans the
// candidates out to the worker pool. A per-article failure marks that
// article failed and moves on; only a cancelled context stops the run.
func (o *Orchestrator) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	released, err := o.store.ReleaseStaleClaims(o.cfg.DeepSeek.StaleCooldownDuration())
	if err != nil {
		return stats, err
	}
	stats.Released = released
	if released > 0 {
		o.log.Info("released stale claims", "count", released)
	}

	articles, err := o.store.UnprocessedArticles()
	if err != nil {
		return stats, err
	}

	candidates, sampledOut := o.sample(articles)
	stats.Candidates = len(candidates)
	stats.Skipped += sampledOut
	o.log.Info("enrichment candidates", "total", len(articles), "selected", len(candidates))

	workers := o.cfg.DeepSeek.WorkerCount()
	jobs := make(chan core.Article)
	results := make([]Stats, workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			for a := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				o.processOne(gctx, a, &results[i])
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		for _, a := range candidates {
			select {
			case jobs <- a:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	err = g.Wait()
	for _, r := range results {
		stats.Completed += r.Completed
		stats.Failed += r.Failed
		stats.Skipped += r.Skipped
	}
	o.log.Info("enrichment run finished",
		"completed", stats.Completed, "failed", stats.Failed, "skipped", stats.Skipped)
	return stats, err
}

// sample applies the 1-in-R selection with the fixed seed, matching the
// crawler's sampling discipline. Rate 1 selects everything.
func (o *Orchestrator) sample(articles []core.Article) ([]core.Article, int) {
	r := o.cfg.Thresholds.SampleRate
	if r <= 1 {
		return articles, 0
	}
	rng := rand.New(rand.NewSource(o.cfg.Thresholds.RandomSeed))
	var selected []core.Article
	for _, a := range articles {
		if rng.Intn(r) == 0 {
			selected = append(selected, a)
		}
	}
	return selected, len(articles) - len(selected)
}

func (o *Orchestrator) processOne(ctx context.Context, a core.Article, st *Stats) {
	claimed, err := o.store.ClaimArticle(a.ID)
	if err != nil {
		o.log.Error("claim failed", "article", a.ID, "error", err)
		st.Failed++
		return
	}
	if !claimed {
		// Another worker or process owns it now.
		st.Skipped++
		return
	}

	if err := o.enrichArticle(ctx, a); err != nil {
		st.Failed++
		o.log.Error("enrichment failed", "article", a.ID, "error", err)
		if ferr := o.store.FailArticle(a.ID, err.Error()); ferr != nil {
			o.log.Error("failed to record failure", "article", a.ID, "error", ferr)
		}
		return
	}
	st.Completed++
	o.log.Info("article enriched", "article", a.ID)
}

func (o *Orchestrator) enrichArticle(ctx context.Context, a core.Article) error {
	category, err := o.store.CategoryByID(a.CategoryID)
	if err != nil {
		return err
	}

	articleJSON, err := json.Marshal(map[string]string{
		"id":          a.ID,
		"title":       a.Title,
		"source":      a.Source,
		"description": a.Description,
		"pub_date":    a.PubDate.Format(time.RFC3339),
		"content":     a.Content,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal article %s: %w", a.ID, err)
	}

	prompt, err := RenderPrompt(category.PromptName, string(articleJSON))
	if err != nil {
		return err
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return err
	}

	raw, err := o.client.Enrich(ctx, prompt)
	if err != nil {
		return err
	}

	resp, err := Parse(raw)
	if err != nil {
		o.saveRawResponse(a.ID, raw)
		return err
	}
	if err := resp.Validate(); err != nil {
		o.saveRawResponse(a.ID, raw)
		return err
	}

	responsePath, err := o.saveResponse(a.ID, raw)
	if err != nil {
		return err
	}

	return o.store.CompleteArticle(resp.ToEnrichment(a.ID), responsePath, o.client.Model(), len(raw))
}

// saveResponse writes the validated response body to the website tree for
// downstream consumers and returns the recorded path.
func (o *Orchestrator) saveResponse(articleID string, raw []byte) (string, error) {
	dir := filepath.Join(o.cfg.Data.WebsiteDir, "article_response")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create response directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("article_%s_response.json", articleID))
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return "", fmt.Errorf("failed to write response %s: %w", path, err)
	}
	return path, nil
}

// saveRawResponse preserves an unparseable or invalid body for debugging.
// Saving is best effort; the article is failed either way.
func (o *Orchestrator) saveRawResponse(articleID string, raw []byte) {
	if err := os.MkdirAll(o.cfg.Data.ResponsesDir, 0755); err != nil {
		o.log.Warn("failed to create responses directory", "error", err)
		return
	}
	path := filepath.Join(o.cfg.Data.ResponsesDir, fmt.Sprintf("raw_response_%s.txt", articleID))
	if err := os.WriteFile(path, raw, 0644); err != nil {
		o.log.Warn("failed to save raw response", "article", articleID, "error", err)
	}
}
