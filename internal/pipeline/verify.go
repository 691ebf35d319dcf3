package pipeline

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"log/slog"
	"os"
	"regexp"

	// Registers the webp decoder for rendition dimension checks.
	_ "github.com/chai2010/webp"
)

// articleIDPattern is the semantic ID shape: date plus a two-digit
// counter from 01 to 99.
var articleIDPattern = regexp.MustCompile(`^[0-9]{8}(0[1-9]|[1-9][0-9])$`)

const (
	mobileByteBudget = 50 * 1024
	mobileFloorDim   = 100
)

// VerifyReport summarizes the consistency check.
type VerifyReport struct {
	ArticlesChecked int
	Violations      []string
}

// artifactExpectations are the per-article row counts a committed
// enrichment must show: 3 tiers plus the Chinese hard summary, 10
// keywords and one quiz set per tier, 2 viewpoints plus a synthesis per
// tier, analysis for mid and hard, one response row.
var artifactExpectations = map[string]int64{
	"article_summaries": 4,
	"keywords":          30,
	"questions":         30,
	"comments":          9,
	"neutral_synthesis": 3,
	"background_read":   3,
	"article_analysis":  2,
	"response":          1,
}

// verify checks the invariants the pipeline promises: semantic IDs,
// image files present with a budget-compliant mobile rendition, and
// complete artifact sets with released claims on processed articles.
// Violations are collected, not fail-fast, so one run reports them all.
func (r *Runner) verify(log *slog.Logger) (VerifyReport, error) {
	var report VerifyReport

	ids, err := r.store.ArticleIDs()
	if err != nil {
		return report, err
	}
	report.ArticlesChecked = len(ids)

	for _, id := range ids {
		if !articleIDPattern.MatchString(id) {
			report.Violations = append(report.Violations,
				fmt.Sprintf("article %s: id does not match the semantic shape", id))
		}
		r.verifyImage(id, &report)
	}

	processed, err := r.store.ProcessedArticles()
	if err != nil {
		return report, err
	}
	for _, a := range processed {
		if a.InProgress {
			report.Violations = append(report.Violations,
				fmt.Sprintf("article %s: processed but still claimed", a.ID))
		}
		counts, err := r.store.ArtifactCounts(a.ID)
		if err != nil {
			return report, err
		}
		for table, want := range artifactExpectations {
			if counts[table] != want {
				report.Violations = append(report.Violations,
					fmt.Sprintf("article %s: %s has %d rows, want %d", a.ID, table, counts[table], want))
			}
		}
		if counts["choices"] < counts["questions"] {
			report.Violations = append(report.Violations,
				fmt.Sprintf("article %s: %d questions but only %d choices", a.ID, counts["questions"], counts["choices"]))
		}
	}

	for _, v := range report.Violations {
		log.Warn("invariant violation", "detail", v)
	}
	log.Info("verify complete", "articles", report.ArticlesChecked, "violations", len(report.Violations))

	if len(report.Violations) > 0 {
		return report, fmt.Errorf("verify found %d invariant violations", len(report.Violations))
	}
	return report, nil
}

// verifyImage checks the article's image row and files. The mobile
// rendition must fit the byte budget unless it sits at the dimension
// floor, where budget overruns are accepted.
func (r *Runner) verifyImage(articleID string, report *VerifyReport) {
	img, err := r.store.ImageByArticle(articleID)
	if err != nil {
		report.Violations = append(report.Violations,
			fmt.Sprintf("article %s: no image row", articleID))
		return
	}

	if _, err := os.Stat(img.LocalLocation); err != nil {
		report.Violations = append(report.Violations,
			fmt.Sprintf("article %s: web rendition missing at %s", articleID, img.LocalLocation))
	}

	if img.SmallLocation == "" {
		return // image stage has not run for this row yet
	}

	info, err := os.Stat(img.SmallLocation)
	if err != nil {
		report.Violations = append(report.Violations,
			fmt.Sprintf("article %s: mobile rendition missing at %s", articleID, img.SmallLocation))
		return
	}
	if info.Size() <= mobileByteBudget {
		return
	}

	w, h, err := imageDims(img.SmallLocation)
	if err != nil {
		report.Violations = append(report.Violations,
			fmt.Sprintf("article %s: mobile rendition unreadable: %v", articleID, err))
		return
	}
	if w > mobileFloorDim || h > mobileFloorDim {
		report.Violations = append(report.Violations,
			fmt.Sprintf("article %s: mobile rendition is %d bytes at %dx%d, over budget above the floor",
				articleID, info.Size(), w, h))
	}
}

func imageDims(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
