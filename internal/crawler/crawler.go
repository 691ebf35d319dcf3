// Package crawler mines enabled feeds into canonical article rows. One
// worker runs per feed in parallel; each worker walks its feed's top
// candidates sequentially under a hard per-feed deadline.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/daijiong1977/news-sub002/internal/clean"
	"github.com/daijiong1977/news-sub002/internal/config"
	"github.com/daijiong1977/news-sub002/internal/core"
	"github.com/daijiong1977/news-sub002/internal/store"
)

const (
	// requestTimeout bounds each HTTP GET (feed, article page, image).
	requestTimeout = 10 * time.Second
	// candidatePool is how many feed entries a worker considers per run.
	candidatePool = 20
)

// Crawler mines articles from the enabled feeds into the store.
type Crawler struct {
	store  *store.Store
	cfg    config.Config
	client *http.Client
	parser *gofeed.Parser

	// ArticlesPerSeed overrides the thresholds value when > 0 (CLI flag).
	ArticlesPerSeed int
}

// Stats summarizes one mining run.
type Stats struct {
	FeedsTotal  int
	FeedsFailed int
	Accepted    int
	Skipped     map[string]int
}

// feedStats is a single worker's contribution, merged after the group
// finishes so no locking is needed.
type feedStats struct {
	failed   bool
	accepted int
	skipped  map[string]int
}

// New creates a crawler over the given store and configuration.
func New(st *store.Store, cfg config.Config) *Crawler {
	client := &http.Client{Timeout: requestTimeout}
	parser := gofeed.NewParser()
	parser.UserAgent = cfg.Crawler.UserAgent
	return &Crawler{store: st, cfg: cfg, client: client, parser: parser}
}

// Run mines every enabled feed. Feed-level failures are isolated: they
// are counted, logged, and never abort the other workers.
func (c *Crawler) Run(ctx context.Context, log *slog.Logger) (Stats, error) {
	feeds, err := c.store.EnabledFeeds()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to enumerate feeds: %w", err)
	}

	results := make([]feedStats, len(feeds))
	g, gctx := errgroup.WithContext(ctx)
	for i, feed := range feeds {
		i, feed := i, feed
		g.Go(func() error {
			results[i] = c.mineFeed(gctx, feed, log)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	stats := Stats{FeedsTotal: len(feeds), Skipped: map[string]int{}}
	for _, r := range results {
		if r.failed {
			stats.FeedsFailed++
		}
		stats.Accepted += r.accepted
		for reason, n := range r.skipped {
			stats.Skipped[reason] += n
		}
	}
	log.Info("mining run complete",
		"feeds", stats.FeedsTotal, "feeds_failed", stats.FeedsFailed,
		"accepted", stats.Accepted, "skipped", stats.Skipped)
	return stats, nil
}

// mineFeed processes one feed under its wall-clock budget. On deadline
// expiry the remaining candidates are abandoned; committed articles stay.
func (c *Crawler) mineFeed(parent context.Context, feed core.Feed, log *slog.Logger) feedStats {
	stats := feedStats{skipped: map[string]int{}}
	log = log.With("feed", feed.Name)

	ctx, cancel := context.WithTimeout(parent, c.cfg.Thresholds.PerFeedTimeout())
	defer cancel()

	parsed, err := c.parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		reason := "parse"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		} else if errors.Is(err, context.Canceled) {
			reason = "network"
		}
		log.Warn("feed fetch failed", "reason", reason, "error", err.Error())
		stats.failed = true
		return stats
	}

	category, err := c.store.CategoryByID(feed.CategoryID)
	if err != nil {
		log.Warn("category lookup failed", "error", err.Error())
		stats.failed = true
		return stats
	}

	target := c.cfg.Thresholds.ArticlesPerSeed
	if c.ArticlesPerSeed > 0 {
		target = c.ArticlesPerSeed
	}

	// Seeded per feed so sampling is reproducible run to run without
	// sharing a rand source across workers.
	rng := rand.New(rand.NewSource(c.cfg.Thresholds.RandomSeed + feed.ID))
	sampleRate := c.cfg.Thresholds.SampleRate

	items := parsed.Items
	if len(items) > candidatePool {
		items = items[:candidatePool]
	}

	for _, item := range items {
		if stats.accepted >= target {
			break
		}
		if ctx.Err() != nil {
			log.Warn("per-feed deadline expired, abandoning remaining candidates")
			break
		}
		if item.Link == "" {
			continue
		}
		if sampleRate > 1 && rng.Intn(sampleRate) != 0 {
			stats.skipped["sampled_out"]++
			continue
		}

		exists, err := c.store.HasArticle(item.Link)
		if err != nil {
			log.Warn("url check failed", "url", item.Link, "error", err.Error())
			continue
		}
		if exists {
			stats.skipped[string(core.RejectDuplicateURL)]++
			continue
		}

		if err := c.mineItem(ctx, feed, category, item, log); err != nil {
			var rej *core.ArticleRejected
			var imgErr *core.ImageError
			switch {
			case errors.As(err, &rej):
				stats.skipped[string(rej.Reason)]++
				log.Debug("candidate rejected", "url", item.Link, "reason", string(rej.Reason))
			case errors.As(err, &imgErr):
				stats.skipped["image_"+imgErr.Reason]++
				log.Debug("candidate skipped, no acceptable image", "url", item.Link, "reason", imgErr.Reason)
			default:
				stats.skipped["error"]++
				log.Warn("candidate failed", "url", item.Link, "error", err.Error())
			}
			continue
		}
		stats.accepted++
	}

	log.Info("feed done", "accepted", stats.accepted)
	return stats
}

// mineItem fetches, cleans, image-checks, and commits one candidate.
func (c *Crawler) mineItem(ctx context.Context, feed core.Feed, category core.Category, item *gofeed.Item, log *slog.Logger) error {
	html, err := c.fetchPage(ctx, item.Link)
	if err != nil {
		return err
	}

	opts := clean.Options{
		Thresholds:  c.cfg.Thresholds,
		BannedWords: c.cfg.BannedWords,
		Sport:       category.PromptName == "sports",
	}
	cleaned, err := clean.Clean(html, item.Title, opts)
	if err != nil {
		return err
	}

	pick, err := c.selectImage(ctx, html, item.Link)
	if err != nil {
		return err
	}

	pubDate := time.Now()
	if item.PublishedParsed != nil {
		pubDate = *item.PublishedParsed
	}

	article := core.Article{
		Title:       clean.Normalize(item.Title),
		Source:      feed.Name,
		URL:         item.Link,
		Description: clean.Normalize(item.Description),
		PubDate:     pubDate,
		Content:     cleaned.Text,
		CategoryID:  feed.CategoryID,
	}

	imageDir := filepath.Join(c.cfg.Data.WebsiteDir, "article_image")
	if err := os.MkdirAll(imageDir, 0755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}

	// The bytes land on disk before the row commit: a committed article
	// always has its image file. The final name carries the article ID,
	// which the insert allocates, so the file is staged and renamed.
	staged, err := os.CreateTemp(imageDir, "incoming_*"+pick.ext)
	if err != nil {
		return fmt.Errorf("failed to stage image file: %w", err)
	}
	stagedName := staged.Name()
	if _, err := staged.Write(pick.data); err != nil {
		staged.Close()
		os.Remove(stagedName)
		return fmt.Errorf("failed to write image %s: %w", stagedName, err)
	}
	if err := staged.Close(); err != nil {
		os.Remove(stagedName)
		return fmt.Errorf("failed to write image %s: %w", stagedName, err)
	}

	inserted, img, err := c.store.InsertArticleWithImage(article, pick.url, pick.ext, imageDir)
	if err != nil {
		os.Remove(stagedName)
		return err
	}
	if err := os.Rename(stagedName, img.LocalLocation); err != nil {
		os.Remove(stagedName)
		return fmt.Errorf("failed to place image %s: %w", img.LocalLocation, err)
	}

	log.Info("article accepted", "id", inserted.ID, "title", inserted.Title, "image", img.ImageName)
	return nil
}

// fetchPage GETs an article page under the request timeout.
func (c *Crawler) fetchPage(ctx context.Context, pageURL string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request for %s: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", c.cfg.Crawler.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", pageURL, err)
	}
	return string(body), nil
}
