// Package clean converts raw article HTML into publication-ready
// paragraphs. Clean is a pure function of its inputs: no I/O, no state.
//
// The cascade runs in a fixed order — normalize, extract, length-floor,
// byline, promo, boilerplate, "Related:", duplicate collapse — then the
// per-category length gate and the article-level rejection filters.
package clean

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/daijiong1977/news-sub002/internal/config"
	"github.com/daijiong1977/news-sub002/internal/core"
)

// Options carries the per-invocation knobs. Thresholds and BannedWords
// come from the process config; Sport selects the sport length gate.
type Options struct {
	Thresholds   config.Thresholds
	BannedWords  []string
	Sport        bool
	SportRelaxed bool
}

// Cleaned is the accepted result: ordered paragraphs and their
// concatenation.
type Cleaned struct {
	Paragraphs []string
	Text       string
}

// Clean runs the full cascade. A policy drop returns *core.ArticleRejected
// with the reason; any other error is a parse failure.
func Clean(rawHTML, title string, opts Options) (Cleaned, error) {
	paragraphs, err := extractParagraphs(rawHTML)
	if err != nil {
		return Cleaned{}, fmt.Errorf("failed to extract paragraphs: %w", err)
	}

	minLen := opts.Thresholds.ParagraphMinLength
	if minLen <= 0 {
		minLen = 30
	}

	var kept []string
	for _, p := range paragraphs {
		p = Normalize(p)
		if len(p) < minLen {
			continue
		}
		if isByline(p) {
			continue
		}
		if isPromo(p) {
			continue
		}
		if isBoilerplate(p) {
			continue
		}
		if strings.HasPrefix(p, "Related:") {
			continue
		}
		if len(kept) > 0 && kept[len(kept)-1] == p {
			continue
		}
		kept = append(kept, p)
	}

	text := strings.Join(kept, "\n\n")

	// Article-level rejection filters run against title + cleaned text so
	// a clean body cannot rescue a disqualifying title.
	combined := Normalize(title) + "\n" + text
	if isVideo(combined) {
		return Cleaned{}, &core.ArticleRejected{Reason: core.RejectVideo}
	}
	if isTranscript(kept, combined) {
		return Cleaned{}, &core.ArticleRejected{Reason: core.RejectTranscript}
	}
	if isFiller(title) {
		return Cleaned{}, &core.ArticleRejected{Reason: core.RejectFiller}
	}
	if word := matchBannedWord(combined, opts.BannedWords); word != "" {
		return Cleaned{}, &core.ArticleRejected{Reason: core.RejectBannedWord, Detail: word}
	}

	if err := checkLength(len(text), opts); err != nil {
		return Cleaned{}, err
	}

	return Cleaned{Paragraphs: kept, Text: text}, nil
}

// checkLength applies the per-category gate on the concatenated text.
func checkLength(n int, opts Options) error {
	t := opts.Thresholds
	if opts.Sport {
		min := t.SportStrictMinChars
		if opts.SportRelaxed {
			min = t.SportRelaxedMinChars
		}
		if n < min {
			return &core.ArticleRejected{Reason: core.RejectTooShort, Detail: fmt.Sprintf("%d chars", n)}
		}
		return nil
	}
	if n < t.CleanedCharsMin {
		return &core.ArticleRejected{Reason: core.RejectTooShort, Detail: fmt.Sprintf("%d chars", n)}
	}
	if n > t.CleanedCharsMax {
		return &core.ArticleRejected{Reason: core.RejectTooLong, Detail: fmt.Sprintf("%d chars", n)}
	}
	return nil
}

// extractParagraphs pulls candidate paragraphs in document order after
// stripping non-content elements.
func extractParagraphs(rawHTML string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}

	doc.Find("script, style, nav, footer, header, aside, form, iframe, noscript, .sidebar, #sidebar, .ad, .advertisement, .popup, .modal, .cookie-banner").Remove()

	var paragraphs []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			paragraphs = append(paragraphs, t)
		}
	})
	return paragraphs, nil
}

// asciiReplacer maps typographic punctuation to ASCII equivalents.
var asciiReplacer = strings.NewReplacer(
	"‘", "'",
	"’", "'",
	"“", `"`,
	"”", `"`,
	"–", "-",
	"—", "-",
	"…", "...",
	" ", " ",
)

// Normalize unescapes HTML entities and folds curly quotes, dashes,
// ellipses, and non-breaking spaces to ASCII, collapsing runs of
// whitespace to single spaces.
func Normalize(s string) string {
	s = html.UnescapeString(s)
	s = asciiReplacer.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
