package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/daijiong1977/news-sub002/internal/core"
)

// dayFormat is the date component of the semantic article ID. Dates use
// the host's local calendar, consistently across the pipeline.
const dayFormat = "20060102"

// maxArticlesPerDay bounds the two-digit nn counter.
const maxArticlesPerDay = 99

// EnabledFeeds returns the enabled feeds in stable feed_id order.
func (s *Store) EnabledFeeds() ([]core.Feed, error) {
	rows, err := s.db.Query(`
		SELECT feed_id, name, url, category_id, enabled
		FROM feeds WHERE enabled = 1 ORDER BY feed_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []core.Feed
	for rows.Next() {
		var f core.Feed
		if err := rows.Scan(&f.ID, &f.Name, &f.URL, &f.CategoryID, &f.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// CategoryByID loads one category row.
func (s *Store) CategoryByID(id int64) (core.Category, error) {
	var c core.Category
	err := s.db.QueryRow(`
		SELECT category_id, name, prompt_name FROM categories WHERE category_id = ?`, id).
		Scan(&c.ID, &c.Name, &c.PromptName)
	if err == sql.ErrNoRows {
		return core.Category{}, fmt.Errorf("category %d not found", id)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("failed to load category %d: %w", id, err)
	}
	return c, nil
}

// HasArticle reports whether an article with this url already exists.
// The crawler uses it to keep re-runs from re-fetching committed work.
func (s *Store) HasArticle(url string) (bool, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM articles WHERE url = ?", url).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check article url: %w", err)
	}
	return n > 0, nil
}

// InsertArticleWithImage allocates the semantic article ID, inserts the
// article and its image row, and links article.image_id — all in one
// transaction. There is no observable intermediate state.
//
// imageExt is the image file extension including the dot; imageDir is the
// web rendition directory. The returned image row carries the computed
// name and local location; the caller writes the file after commit.
func (s *Store) InsertArticleWithImage(a core.Article, originalURL, imageExt, imageDir string) (core.Article, core.ArticleImage, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return core.Article{}, core.ArticleImage{}, &core.StoreError{Reason: "transaction", Err: err}
	}
	defer tx.Rollback()

	now := time.Now()
	day := now.Format(dayFormat)

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM articles WHERE id LIKE ?", day+"%").Scan(&count); err != nil {
		return core.Article{}, core.ArticleImage{}, &core.StoreError{Reason: "transaction", Err: err}
	}
	if count >= maxArticlesPerDay {
		return core.Article{}, core.ArticleImage{}, &core.ArticleRejected{
			Reason: core.RejectCapacityExceeded,
			Detail: fmt.Sprintf("day %s already holds %d articles", day, count),
		}
	}

	a.ID = fmt.Sprintf("%s%02d", day, count+1)
	a.CrawledAt = now

	_, err = tx.Exec(`
		INSERT INTO articles (id, title, source, url, description, pub_date, content, crawled_at, category_id,
			deepseek_processed, deepseek_failed, deepseek_in_progress)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0)`,
		a.ID, a.Title, a.Source, a.URL, a.Description, a.PubDate, a.Content, a.CrawledAt, a.CategoryID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Article{}, core.ArticleImage{}, &core.ArticleRejected{Reason: core.RejectDuplicateURL, Detail: a.URL}
		}
		return core.Article{}, core.ArticleImage{}, &core.StoreError{Reason: "uniqueness", Err: err}
	}

	img := core.ArticleImage{
		ArticleID:     a.ID,
		ImageName:     a.ID + imageExt,
		OriginalURL:   originalURL,
		LocalLocation: filepath.Join(imageDir, a.ID+imageExt),
	}

	res, err := tx.Exec(`
		INSERT INTO article_images (article_id, image_name, original_url, local_location)
		VALUES (?, ?, ?, ?)`,
		img.ArticleID, img.ImageName, img.OriginalURL, img.LocalLocation)
	if err != nil {
		return core.Article{}, core.ArticleImage{}, &core.StoreError{Reason: "foreign_key", Err: err}
	}
	img.ID, err = res.LastInsertId()
	if err != nil {
		return core.Article{}, core.ArticleImage{}, &core.StoreError{Reason: "transaction", Err: err}
	}

	// The article and its image link must commit together; splitting these
	// statements is exactly how articles end up pointing at no image.
	if _, err := tx.Exec("UPDATE articles SET image_id = ? WHERE id = ?", img.ID, a.ID); err != nil {
		return core.Article{}, core.ArticleImage{}, &core.StoreError{Reason: "transaction", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return core.Article{}, core.ArticleImage{}, &core.StoreError{Reason: "transaction", Err: err}
	}

	a.ImageID = img.ID
	return a, img, nil
}

// ClaimArticle performs the single-statement compare-and-set that takes
// ownership of an article for enrichment. It returns true only when this
// caller won the claim; never read-then-write.
func (s *Store) ClaimArticle(id string) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE articles
		SET deepseek_in_progress = 1, claimed_at = ?
		WHERE id = ? AND deepseek_processed = 0 AND deepseek_in_progress = 0`,
		time.Now(), id)
	if err != nil {
		return false, &core.StoreError{Reason: "transaction", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &core.StoreError{Reason: "transaction", Err: err}
	}
	return n == 1, nil
}

// ReleaseStaleClaims clears in-progress flags older than the cooldown.
// It runs at orchestrator start so claims abandoned by a dead process
// return to the unprocessed set.
func (s *Store) ReleaseStaleClaims(cooldown time.Duration) (int64, error) {
	cutoff := time.Now().Add(-cooldown)
	res, err := s.db.Exec(`
		UPDATE articles SET deepseek_in_progress = 0
		WHERE deepseek_in_progress = 1 AND deepseek_processed = 0 AND claimed_at < ?`,
		cutoff)
	if err != nil {
		return 0, &core.StoreError{Reason: "transaction", Err: err}
	}
	return res.RowsAffected()
}

// UnprocessedArticles returns the enrichment candidates ordered by
// (category_id, id) for deterministic processing and intra-category rate
// balancing.
func (s *Store) UnprocessedArticles() ([]core.Article, error) {
	rows, err := s.db.Query(`
		SELECT id, title, source, url, description, pub_date, content, crawled_at, category_id,
			COALESCE(image_id, 0), deepseek_failed
		FROM articles
		WHERE deepseek_processed = 0 AND deepseek_in_progress = 0
		ORDER BY category_id, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed articles: %w", err)
	}
	defer rows.Close()

	var articles []core.Article
	for rows.Next() {
		var a core.Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Source, &a.URL, &a.Description, &a.PubDate,
			&a.Content, &a.CrawledAt, &a.CategoryID, &a.ImageID, &a.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// ArticleIDs returns every article ID in ascending order; the verify
// phase checks each against the semantic ID shape.
func (s *Store) ArticleIDs() ([]string, error) {
	rows, err := s.db.Query("SELECT id FROM articles ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list article ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan article id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ProcessedArticles returns the articles with enrichment committed, in
// (pub_date, id) order for downstream consumers.
func (s *Store) ProcessedArticles() ([]core.Article, error) {
	rows, err := s.db.Query(`
		SELECT id, title, url, COALESCE(image_id, 0), deepseek_processed, deepseek_in_progress,
			COALESCE(zh_title, '')
		FROM articles WHERE deepseek_processed = 1
		ORDER BY pub_date, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list processed articles: %w", err)
	}
	defer rows.Close()

	var articles []core.Article
	for rows.Next() {
		var a core.Article
		if err := rows.Scan(&a.ID, &a.Title, &a.URL, &a.ImageID, &a.Processed, &a.InProgress, &a.TitleZH); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// CompleteArticle persists a validated enrichment in one transaction:
// the per-difficulty artifact rows, the response bookkeeping row, and the
// article's completion flags. Any failure rolls everything back.
func (s *Store) CompleteArticle(e core.Enrichment, responsePath, model string, payloadBytes int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &core.StoreError{Reason: "transaction", Err: err}
	}
	defer tx.Rollback()

	for _, d := range core.Difficulties {
		if _, err := tx.Exec(`
			INSERT INTO article_summaries (article_id, difficulty, summary_text)
			VALUES (?, ?, ?)`, e.ArticleID, string(d), e.Summaries[d]); err != nil {
			return &core.StoreError{Reason: "transaction", Err: err}
		}

		for _, kw := range e.Keywords[d] {
			if _, err := tx.Exec(`
				INSERT INTO keywords (article_id, difficulty, word, frequency, explanation)
				VALUES (?, ?, ?, ?, ?)`, e.ArticleID, string(d), kw.Word, kw.Frequency, kw.Explanation); err != nil {
				return &core.StoreError{Reason: "transaction", Err: err}
			}
		}

		for _, q := range e.Questions[d] {
			res, err := tx.Exec(`
				INSERT INTO questions (article_id, difficulty, question_text)
				VALUES (?, ?, ?)`, e.ArticleID, string(d), q.Question)
			if err != nil {
				return &core.StoreError{Reason: "transaction", Err: err}
			}
			qid, err := res.LastInsertId()
			if err != nil {
				return &core.StoreError{Reason: "transaction", Err: err}
			}
			for _, c := range q.Choices {
				if _, err := tx.Exec(`
					INSERT INTO choices (question_id, label, choice_text, is_correct)
					VALUES (?, ?, ?, ?)`, qid, c.Label, c.Text, c.Correct); err != nil {
					return &core.StoreError{Reason: "transaction", Err: err}
				}
			}
		}

		ps := e.Perspectives[d]
		for _, p := range ps.Perspectives {
			if _, err := tx.Exec(`
				INSERT INTO comments (article_id, difficulty, viewpoint, attitude, is_synthesis)
				VALUES (?, ?, ?, ?, 0)`, e.ArticleID, string(d), p.Viewpoint, p.Attitude); err != nil {
				return &core.StoreError{Reason: "transaction", Err: err}
			}
		}
		if _, err := tx.Exec(`
			INSERT INTO comments (article_id, difficulty, viewpoint, attitude, is_synthesis)
			VALUES (?, ?, ?, ?, 1)`, e.ArticleID, string(d), ps.Synthesis.Viewpoint, ps.Synthesis.Attitude); err != nil {
			return &core.StoreError{Reason: "transaction", Err: err}
		}

		if _, err := tx.Exec(`
			INSERT INTO background_read (article_id, difficulty, content)
			VALUES (?, ?, ?)`, e.ArticleID, string(d), e.Background[d]); err != nil {
			return &core.StoreError{Reason: "transaction", Err: err}
		}
	}

	// The Chinese hard-tier summary rides in article_summaries under its
	// own difficulty key.
	if _, err := tx.Exec(`
		INSERT INTO article_summaries (article_id, difficulty, summary_text)
		VALUES (?, 'zh_hard', ?)`, e.ArticleID, e.SummaryZHHard); err != nil {
		return &core.StoreError{Reason: "transaction", Err: err}
	}

	for _, d := range []core.Difficulty{core.DifficultyMid, core.DifficultyHard} {
		if _, err := tx.Exec(`
			INSERT INTO article_analysis (article_id, difficulty, content)
			VALUES (?, ?, ?)`, e.ArticleID, string(d), e.Analysis[d]); err != nil {
			return &core.StoreError{Reason: "transaction", Err: err}
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO response (article_id, file_path, model, payload_bytes, created_at)
		VALUES (?, ?, ?, ?, ?)`, e.ArticleID, responsePath, model, payloadBytes, time.Now()); err != nil {
		return &core.StoreError{Reason: "transaction", Err: err}
	}

	if _, err := tx.Exec(`
		UPDATE articles
		SET deepseek_processed = 1, deepseek_in_progress = 0, processed_at = ?, zh_title = ?
		WHERE id = ?`, time.Now(), e.TitleZH, e.ArticleID); err != nil {
		return &core.StoreError{Reason: "transaction", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &core.StoreError{Reason: "transaction", Err: err}
	}
	return nil
}

// FailArticle releases the claim, increments the failure counter, and
// records the last error, returning the article to the unprocessed set.
func (s *Store) FailArticle(id, errMsg string) error {
	_, err := s.db.Exec(`
		UPDATE articles
		SET deepseek_in_progress = 0, deepseek_failed = deepseek_failed + 1, deepseek_last_error = ?
		WHERE id = ?`, errMsg, id)
	if err != nil {
		return &core.StoreError{Reason: "transaction", Err: err}
	}
	return nil
}

// ArtifactCounts reports, for one article, the number of rows in each
// enrichment table plus the synthesis-row count; the verify phase checks
// these against the contract cardinalities.
func (s *Store) ArtifactCounts(articleID string) (map[string]int64, error) {
	queries := map[string]string{
		"article_summaries": "SELECT COUNT(*) FROM article_summaries WHERE article_id = ?",
		"keywords":          "SELECT COUNT(*) FROM keywords WHERE article_id = ?",
		"questions":         "SELECT COUNT(*) FROM questions WHERE article_id = ?",
		"choices":           "SELECT COUNT(*) FROM choices WHERE question_id IN (SELECT question_id FROM questions WHERE article_id = ?)",
		"comments":          "SELECT COUNT(*) FROM comments WHERE article_id = ?",
		"background_read":   "SELECT COUNT(*) FROM background_read WHERE article_id = ?",
		"article_analysis":  "SELECT COUNT(*) FROM article_analysis WHERE article_id = ?",
		"response":          "SELECT COUNT(*) FROM response WHERE article_id = ?",
		"neutral_synthesis": "SELECT COUNT(*) FROM comments WHERE article_id = ? AND is_synthesis = 1 AND attitude = 'neutral'",
	}

	counts := make(map[string]int64, len(queries))
	for name, q := range queries {
		var n int64
		if err := s.db.QueryRow(q, articleID).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s for %s: %w", name, articleID, err)
		}
		counts[name] = n
	}
	return counts, nil
}
