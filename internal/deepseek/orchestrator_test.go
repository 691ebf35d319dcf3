package deepseek

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/daijiong1977/news-sub002/internal/config"
	"github.com/daijiong1977/news-sub002/internal/core"
	"github.com/daijiong1977/news-sub002/internal/store"
)

// scriptedClient returns one canned body (or error) for every request.
// It carries no mutable state so concurrent workers can share it.
type scriptedClient struct {
	body []byte
	err  error
}

func (c *scriptedClient) Enrich(ctx context.Context, prompt string) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.body, nil
}

func (c *scriptedClient) Model() string { return "deepseek-chat" }

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Data: config.Data{
			WebsiteDir:   filepath.Join(dir, "website"),
			ResponsesDir: filepath.Join(dir, "responses"),
		},
		DeepSeek: config.DeepSeek{
			RequestTimeout:  "5s",
			RequestInterval: "1ms",
			Workers:         2,
			StaleCooldown:   "30m",
		},
		Thresholds: config.DefaultThresholds(),
	}
}

func openOrchestratorStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"),
		"../../config/schema.sql", "../../config/seed_data.json")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertCandidate(t *testing.T, s *store.Store, url string) core.Article {
	t.Helper()
	a, _, err := s.InsertArticleWithImage(core.Article{
		Title:      "Council extends program",
		Source:     "BBC World",
		URL:        url,
		PubDate:    time.Now(),
		Content:    "The council voted on Tuesday to extend the program.",
		CategoryID: 1,
	}, url+"/lead.jpg", ".jpg", "website/article_image")
	if err != nil {
		t.Fatalf("failed to insert article: %v", err)
	}
	return a
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestOrchestratorCompletesArticles(t *testing.T) {
	s := openOrchestratorStore(t)
	cfg := testConfig(t)
	for i := 0; i < 3; i++ {
		insertCandidate(t, s, fmt.Sprintf("https://example.org/story-%d", i))
	}

	client := &scriptedClient{body: marshalFixture(t, fixtureResponse())}
	stats, err := NewOrchestrator(s, cfg, client, discardLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if stats.Completed != 3 || stats.Failed != 0 {
		t.Fatalf("got completed=%d failed=%d, want 3/0", stats.Completed, stats.Failed)
	}

	processed, err := s.ProcessedArticles()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(processed) != 3 {
		t.Fatalf("got %d processed articles, want 3", len(processed))
	}
	for _, a := range processed {
		path := filepath.Join(cfg.Data.WebsiteDir, "article_response",
			fmt.Sprintf("article_%s_response.json", a.ID))
		if _, err := os.Stat(path); err != nil {
			t.Errorf("response file missing for %s: %v", a.ID, err)
		}
	}
}

func TestOrchestratorFailsUnparseableResponse(t *testing.T) {
	s := openOrchestratorStore(t)
	cfg := testConfig(t)
	a := insertCandidate(t, s, "https://example.org/story")

	client := &scriptedClient{body: []byte("I could not produce JSON today.")}
	stats, err := NewOrchestrator(s, cfg, client, discardLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if stats.Completed != 0 || stats.Failed != 1 {
		t.Fatalf("got completed=%d failed=%d, want 0/1", stats.Completed, stats.Failed)
	}

	rawPath := filepath.Join(cfg.Data.ResponsesDir, fmt.Sprintf("raw_response_%s.txt", a.ID))
	if _, err := os.Stat(rawPath); err != nil {
		t.Errorf("raw response not preserved: %v", err)
	}

	unprocessed, err := s.UnprocessedArticles()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(unprocessed) != 1 || unprocessed[0].Failed != 1 {
		t.Fatalf("article should be unprocessed with failure recorded: %+v", unprocessed)
	}
}

func TestOrchestratorFailsProviderError(t *testing.T) {
	s := openOrchestratorStore(t)
	cfg := testConfig(t)
	insertCandidate(t, s, "https://example.org/story")

	client := &scriptedClient{err: &core.LLMError{Reason: "auth", Err: fmt.Errorf("status 401")}}
	stats, err := NewOrchestrator(s, cfg, client, discardLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("got failed=%d, want 1", stats.Failed)
	}
}

func TestOrchestratorSkipsAlreadyClaimed(t *testing.T) {
	s := openOrchestratorStore(t)
	cfg := testConfig(t)
	a := insertCandidate(t, s, "https://example.org/story")
	b := insertCandidate(t, s, "https://example.org/other")

	// Another process holds a's claim; only b is listed as unprocessed.
	if _, err := s.ClaimArticle(a.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	client := &scriptedClient{body: marshalFixture(t, fixtureResponse())}
	stats, err := NewOrchestrator(s, cfg, client, discardLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if stats.Completed != 1 {
		t.Fatalf("got completed=%d, want 1", stats.Completed)
	}

	processed, err := s.ProcessedArticles()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(processed) != 1 || processed[0].ID != b.ID {
		t.Fatalf("only the unclaimed article should complete, got %+v", processed)
	}
}
