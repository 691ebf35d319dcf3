package clean

import (
	"regexp"
	"strings"
	"unicode"
)

// knownBylines are exact byline strings seen across the configured
// publishers. Matching is case-insensitive on the whole line.
var knownBylines = map[string]bool{
	"associated press":      true,
	"reuters":               true,
	"afp":                   true,
	"staff reports":         true,
	"news desk":             true,
	"editorial board":       true,
	"the conversation":      true,
	"sports correspondent":  true,
	"science correspondent": true,
}

// isByline reports whether a line looks like an author credit rather than
// body prose: a known byline, a doubled "Name Surname Name Surname"
// pattern, a short all-caps run, or a "Name:" prefix naming a known
// byline.
func isByline(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(line))
	if knownBylines[lower] {
		return true
	}
	if strings.HasPrefix(lower, "by ") && len(strings.Fields(line)) <= 5 {
		return true
	}

	fields := strings.Fields(line)

	// Doubled proper-noun pattern: "Jane Doe Jane Doe". Go's RE2 has no
	// backreferences, so compare token pairs directly.
	if len(fields) == 4 &&
		fields[0] == fields[2] && fields[1] == fields[3] &&
		isTitleCased(fields[0]) && isTitleCased(fields[1]) {
		return true
	}

	// Short all-caps lines of 2-3 tokens (section markers, wire credits).
	if len(fields) >= 2 && len(fields) <= 3 && isAllCaps(line) {
		return true
	}

	// "Name:" prefix where the name is a known byline.
	if idx := strings.Index(line, ":"); idx > 0 {
		if knownBylines[strings.ToLower(strings.TrimSpace(line[:idx]))] {
			return true
		}
	}
	return false
}

func isTitleCased(word string) bool {
	r := []rune(word)
	if len(r) < 2 {
		return false
	}
	return unicode.IsUpper(r[0]) && strings.ToLower(word[1:]) == word[1:]
}

func isAllCaps(line string) bool {
	hasLetter := false
	for _, r := range line {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

// promoEmoji are the glyphs that open sale and affiliate blurbs.
var promoEmoji = []string{"🛒", "💰", "🔥", "⚡", "🎁", "✨", "👉", "📣"}

// promoPattern matches sale/affiliate language. Brand names here mirror
// the publishers' recurring shopping-section sponsors.
var promoPattern = regexp.MustCompile(`(?i)\b(\d+% off|% off|save \$?\d+|discount|buy now|sign up|sponsored|affiliate commission|amazon|walmart|best buy)\b`)

// isPromo drops short paragraphs that open with a promo glyph or match a
// sale/affiliate pattern. The 80-character ceiling keeps legitimate prose
// that merely mentions a sale.
func isPromo(line string) bool {
	if len(line) >= 80 {
		return false
	}
	for _, e := range promoEmoji {
		if strings.HasPrefix(line, e) {
			return true
		}
	}
	return promoPattern.MatchString(line)
}

var (
	followPattern    = regexp.MustCompile(`(?i)^follow\s+\S+`)
	copyrightPattern = regexp.MustCompile(`(?i)(©|copyright\s+\d{4}|all rights reserved)`)
	addressPattern   = regexp.MustCompile(`^\d+\s+[A-Z][a-z]+\s+(St|Ave|Rd|Blvd|Street|Avenue|Road)\b`)
	numericRunOnly   = regexp.MustCompile(`^[\d\s\-/.,:]+$`)
)

// isBoilerplate drops known publisher phrases and trailing footer runs:
// "Follow <brand>", "Funding:", addresses, copyright lines, and short
// bare numeric sequences.
func isBoilerplate(line string) bool {
	if followPattern.MatchString(line) {
		return true
	}
	if strings.HasPrefix(line, "Funding:") {
		return true
	}
	if copyrightPattern.MatchString(line) {
		return true
	}
	if addressPattern.MatchString(line) {
		return true
	}
	if len(line) < 40 && numericRunOnly.MatchString(line) {
		return true
	}
	return false
}

// videoIndicators flag pages that are video shells rather than articles.
var videoIndicators = []string{"watch:", "video:", "full episode"}

func isVideo(text string) bool {
	lower := strings.ToLower(text)
	for _, ind := range videoIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// speakerLine matches a "Name: utterance" transcript turn.
var speakerLine = regexp.MustCompile(`^[A-Z][a-zA-Z.\- ]{1,30}:\s+\S`)

// isTranscript detects interview transcripts: three or more speaker turns,
// or the word "transcript" combined with "audio".
func isTranscript(paragraphs []string, text string) bool {
	turns := 0
	for _, p := range paragraphs {
		if speakerLine.MatchString(p) {
			turns++
			if turns >= 3 {
				return true
			}
		}
	}
	lower := strings.ToLower(text)
	return strings.Contains(lower, "transcript") && strings.Contains(lower, "audio")
}

// fillerTitleHits flag games and puzzle roundups.
var fillerTitleHits = []string{"wordle", "puzzle", "sudoku", "crossword"}

func isFiller(title string) bool {
	lower := strings.ToLower(title)
	for _, hit := range fillerTitleHits {
		if strings.Contains(lower, hit) {
			return true
		}
	}
	return false
}

// matchBannedWord returns the first banned word found as a whole word,
// case-insensitive, or "" when none match. Patterns are built per call;
// the cleaner stays a pure function of its inputs.
func matchBannedWord(text string, banned []string) string {
	if len(banned) == 0 {
		return ""
	}
	for _, w := range banned {
		if w == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(w) + `\b`)
		if err != nil {
			continue
		}
		if re.MatchString(text) {
			return w
		}
	}
	return ""
}
