package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/daijiong1977/news-sub002/internal/core"
)

const (
	schemaFile = "../../config/schema.sql"
	seedFile   = "../../config/seed_data.json"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), schemaFile, seedFile)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testArticle(url string) core.Article {
	return core.Article{
		Title:       "Council extends program",
		Source:      "BBC World",
		URL:         url,
		Description: "The council voted to extend the program.",
		PubDate:     time.Now(),
		Content:     "The council voted on Tuesday to extend the program for another two years.",
		CategoryID:  1,
	}
}

func insertTestArticle(t *testing.T, s *Store, url string) core.Article {
	t.Helper()
	a, _, err := s.InsertArticleWithImage(testArticle(url), url+"/lead.jpg", ".jpg", "website/article_image")
	if err != nil {
		t.Fatalf("failed to insert article: %v", err)
	}
	return a
}

func TestOpenSeedsShippedConfiguration(t *testing.T) {
	s := openTestStore(t)

	counts, err := s.TableCounts()
	if err != nil {
		t.Fatalf("counts failed: %v", err)
	}
	want := map[string]int64{"categories": 5, "feeds": 5, "difficulty_levels": 3, "apikey": 1}
	for table, n := range want {
		if counts[table] != n {
			t.Errorf("seeded %s rows = %d, want %d", table, counts[table], n)
		}
	}

	// Every seeded feed must resolve its category under enforced keys.
	feeds, err := s.EnabledFeeds()
	if err != nil {
		t.Fatalf("feeds failed: %v", err)
	}
	for _, f := range feeds {
		if _, err := s.CategoryByID(f.CategoryID); err != nil {
			t.Errorf("feed %s references missing category %d: %v", f.Name, f.CategoryID, err)
		}
	}
}

func TestInsertArticleAllocatesSemanticIDs(t *testing.T) {
	s := openTestStore(t)

	idPattern := regexp.MustCompile(`^[0-9]{8}(0[1-9]|[1-9][0-9])$`)
	day := time.Now().Format(dayFormat)

	for i := 1; i <= 3; i++ {
		a, img, err := s.InsertArticleWithImage(
			testArticle(fmt.Sprintf("https://example.org/story-%d", i)),
			"https://example.org/lead.jpg", ".jpg", "website/article_image")
		if err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}

		want := fmt.Sprintf("%s%02d", day, i)
		if a.ID != want {
			t.Errorf("got id %s, want %s", a.ID, want)
		}
		if !idPattern.MatchString(a.ID) {
			t.Errorf("id %s does not match the semantic shape", a.ID)
		}
		if img.ImageName != a.ID+".jpg" {
			t.Errorf("got image name %s, want %s.jpg", img.ImageName, a.ID)
		}
		if a.ImageID != img.ID {
			t.Errorf("article image_id %d not linked to image row %d", a.ImageID, img.ID)
		}
	}
}

func TestInsertArticleRejectsDuplicateURL(t *testing.T) {
	s := openTestStore(t)
	url := "https://example.org/story"
	insertTestArticle(t, s, url)

	_, _, err := s.InsertArticleWithImage(testArticle(url), url+"/lead.jpg", ".jpg", "website/article_image")
	var rej *core.ArticleRejected
	if !errors.As(err, &rej) {
		t.Fatalf("want ArticleRejected, got %v", err)
	}
	if rej.Reason != core.RejectDuplicateURL {
		t.Errorf("got reason %q, want %q", rej.Reason, core.RejectDuplicateURL)
	}
}

func TestInsertArticleDayCapacity(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < maxArticlesPerDay; i++ {
		insertTestArticle(t, s, fmt.Sprintf("https://example.org/story-%d", i))
	}

	_, _, err := s.InsertArticleWithImage(testArticle("https://example.org/one-too-many"),
		"https://example.org/lead.jpg", ".jpg", "website/article_image")
	var rej *core.ArticleRejected
	if !errors.As(err, &rej) {
		t.Fatalf("want ArticleRejected, got %v", err)
	}
	if rej.Reason != core.RejectCapacityExceeded {
		t.Errorf("got reason %q, want %q", rej.Reason, core.RejectCapacityExceeded)
	}
}

func TestClaimArticleIsExclusive(t *testing.T) {
	s := openTestStore(t)
	a := insertTestArticle(t, s, "https://example.org/story")

	won, err := s.ClaimArticle(a.ID)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if !won {
		t.Fatal("first claim should win")
	}

	won, err = s.ClaimArticle(a.ID)
	if err != nil {
		t.Fatalf("second claim failed: %v", err)
	}
	if won {
		t.Error("second claim must lose while the first is held")
	}
}

func TestClaimArticleUnderContention(t *testing.T) {
	s := openTestStore(t)
	a := insertTestArticle(t, s, "https://example.org/story")

	const contenders = 8
	var wg sync.WaitGroup
	wins := make(chan bool, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.ClaimArticle(a.ID)
			if err != nil {
				t.Errorf("claim failed: %v", err)
				return
			}
			wins <- won
		}()
	}
	wg.Wait()
	close(wins)

	total := 0
	for won := range wins {
		if won {
			total++
		}
	}
	if total != 1 {
		t.Errorf("%d contenders won the claim, want exactly 1", total)
	}
}

func TestReleaseStaleClaims(t *testing.T) {
	s := openTestStore(t)
	a := insertTestArticle(t, s, "https://example.org/story")

	if _, err := s.ClaimArticle(a.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	// Backdate the claim past the cooldown.
	if _, err := s.db.Exec("UPDATE articles SET claimed_at = ? WHERE id = ?",
		time.Now().Add(-time.Hour), a.ID); err != nil {
		t.Fatalf("failed to backdate claim: %v", err)
	}

	released, err := s.ReleaseStaleClaims(30 * time.Minute)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if released != 1 {
		t.Errorf("released %d claims, want 1", released)
	}

	unprocessed, err := s.UnprocessedArticles()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(unprocessed) != 1 {
		t.Errorf("article should be claimable again, got %d unprocessed", len(unprocessed))
	}
}

func TestReleaseStaleClaimsKeepsFreshOnes(t *testing.T) {
	s := openTestStore(t)
	a := insertTestArticle(t, s, "https://example.org/story")
	if _, err := s.ClaimArticle(a.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	released, err := s.ReleaseStaleClaims(30 * time.Minute)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if released != 0 {
		t.Errorf("released %d fresh claims, want 0", released)
	}
}

func testEnrichment(articleID string) core.Enrichment {
	keywords := func() []core.Keyword {
		out := make([]core.Keyword, 10)
		for i := range out {
			out[i] = core.Keyword{Word: fmt.Sprintf("word%d", i), Frequency: i + 1, Explanation: "a short gloss"}
		}
		return out
	}
	questions := func(n int) []core.Question {
		out := make([]core.Question, n)
		for i := range out {
			out[i] = core.Question{
				Question: fmt.Sprintf("Question %d?", i),
				Choices: []core.Choice{
					{Label: "A", Text: "first", Correct: true},
					{Label: "B", Text: "second"},
					{Label: "C", Text: "third"},
					{Label: "D", Text: "fourth"},
				},
			}
		}
		return out
	}
	perspectives := core.PerspectiveSet{
		Perspectives: []core.Perspective{
			{Viewpoint: "supporters welcome the decision", Attitude: core.AttitudePositive},
			{Viewpoint: "critics question the cost", Attitude: core.AttitudeNegative},
		},
		Synthesis: core.Perspective{Viewpoint: "both sides agree more data is needed", Attitude: core.AttitudeNeutral},
	}

	return core.Enrichment{
		ArticleID: articleID,
		TitleZH:   "市政会延长项目",
		Summaries: map[core.Difficulty]string{
			core.DifficultyEasy: "easy summary",
			core.DifficultyMid:  "mid summary",
			core.DifficultyHard: "hard summary",
		},
		SummaryZHHard: "中文摘要",
		Keywords: map[core.Difficulty][]core.Keyword{
			core.DifficultyEasy: keywords(),
			core.DifficultyMid:  keywords(),
			core.DifficultyHard: keywords(),
		},
		Background: map[core.Difficulty]string{
			core.DifficultyEasy: "easy background",
			core.DifficultyMid:  "mid background",
			core.DifficultyHard: "hard background",
		},
		Analysis: map[core.Difficulty]string{
			core.DifficultyMid:  "mid analysis",
			core.DifficultyHard: "hard analysis",
		},
		Questions: map[core.Difficulty][]core.Question{
			core.DifficultyEasy: questions(8),
			core.DifficultyMid:  questions(10),
			core.DifficultyHard: questions(12),
		},
		Perspectives: map[core.Difficulty]core.PerspectiveSet{
			core.DifficultyEasy: perspectives,
			core.DifficultyMid:  perspectives,
			core.DifficultyHard: perspectives,
		},
	}
}

func TestCompleteArticleCommitsAllArtifacts(t *testing.T) {
	s := openTestStore(t)
	a := insertTestArticle(t, s, "https://example.org/story")
	if _, err := s.ClaimArticle(a.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	err := s.CompleteArticle(testEnrichment(a.ID), "website/article_response/x.json", "deepseek-chat", 2048)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	counts, err := s.ArtifactCounts(a.ID)
	if err != nil {
		t.Fatalf("counts failed: %v", err)
	}
	want := map[string]int64{
		"article_summaries": 4,
		"keywords":          30,
		"questions":         30,
		"choices":           120,
		"comments":          9,
		"neutral_synthesis": 3,
		"background_read":   3,
		"article_analysis":  2,
		"response":          1,
	}
	for table, n := range want {
		if counts[table] != n {
			t.Errorf("%s has %d rows, want %d", table, counts[table], n)
		}
	}

	processed, err := s.ProcessedArticles()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(processed) != 1 {
		t.Fatalf("got %d processed articles, want 1", len(processed))
	}
	if processed[0].InProgress {
		t.Error("completed article still holds its claim")
	}
	if processed[0].TitleZH != "市政会延长项目" {
		t.Errorf("got zh title %q", processed[0].TitleZH)
	}

	won, err := s.ClaimArticle(a.ID)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if won {
		t.Error("processed article must not be claimable")
	}
}

func TestFailArticleReleasesClaim(t *testing.T) {
	s := openTestStore(t)
	a := insertTestArticle(t, s, "https://example.org/story")
	if _, err := s.ClaimArticle(a.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	if err := s.FailArticle(a.ID, "response body was not json"); err != nil {
		t.Fatalf("fail failed: %v", err)
	}

	unprocessed, err := s.UnprocessedArticles()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(unprocessed) != 1 {
		t.Fatalf("failed article should return to the unprocessed set, got %d", len(unprocessed))
	}
	if unprocessed[0].Failed != 1 {
		t.Errorf("got failure count %d, want 1", unprocessed[0].Failed)
	}
}

func TestPurgePreservesConfiguration(t *testing.T) {
	s := openTestStore(t)
	a := insertTestArticle(t, s, "https://example.org/story")
	if _, err := s.ClaimArticle(a.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := s.CompleteArticle(testEnrichment(a.ID), "x.json", "deepseek-chat", 1); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	if err := s.Purge(); err != nil {
		t.Fatalf("purge failed: %v", err)
	}

	counts, err := s.TableCounts()
	if err != nil {
		t.Fatalf("counts failed: %v", err)
	}
	for _, table := range dataTables {
		if counts[table] != 0 {
			t.Errorf("%s still has %d rows after purge", table, counts[table])
		}
	}
	if counts["feeds"] == 0 || counts["categories"] == 0 || counts["apikey"] == 0 {
		t.Error("purge must preserve configuration tables")
	}
}

func TestAPIKeyFromSeed(t *testing.T) {
	s := openTestStore(t)
	key, err := s.APIKey("DeepSeek")
	if err != nil {
		t.Fatalf("api key lookup failed: %v", err)
	}
	if key == "" {
		t.Error("seeded api key is empty")
	}
	if _, err := s.APIKey("NoSuchProvider"); err == nil {
		t.Error("unknown provider should error")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	s1, err := Open(path, schemaFile, seedFile)
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	insertTestArticle(t, s1, "https://example.org/story")
	s1.Close()

	s2, err := Open(path, schemaFile, seedFile)
	if err != nil {
		t.Fatalf("second open failed: %v", err)
	}
	defer s2.Close()

	counts, err := s2.TableCounts()
	if err != nil {
		t.Fatalf("counts failed: %v", err)
	}
	if counts["articles"] != 1 {
		t.Errorf("got %d articles after reopen, want 1", counts["articles"])
	}
	if counts["feeds"] != 5 {
		t.Errorf("seed re-application duplicated feeds: %d", counts["feeds"])
	}
}
