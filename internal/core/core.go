// Package core defines the domain types shared by the mining pipeline
// stages: feeds, articles, images, and the enrichment artifacts produced
// by the LLM orchestrator.
package core

import "time"

// Feed is a configured RSS/Atom source. Feeds are created once (via seed
// data) and never deleted by the pipeline; disabled feeds are skipped by
// the crawler but stay referenced by existing articles.
type Feed struct {
	ID         int64
	Name       string
	URL        string
	CategoryID int64
	Enabled    bool
}

// Category groups feeds and selects the LLM prompt template used for
// articles harvested from them.
type Category struct {
	ID         int64
	Name       string
	PromptName string
}

// Article is a canonical news item. ID is a semantic TEXT key of the form
// YYYYMMDDnn where nn is a two-digit per-day counter allocated at insert
// time; lexicographic order on ID is chronological within a day.
type Article struct {
	ID          string
	Title       string
	Source      string
	URL         string
	Description string
	PubDate     time.Time
	Content     string
	CrawledAt   time.Time
	CategoryID  int64
	ImageID     int64
	TitleZH     string

	// DeepSeek coordination columns. Processed and InProgress act as the
	// cross-worker claim medium; see store.ClaimArticle.
	Processed   bool
	Failed      int
	InProgress  bool
	LastError   string
	ProcessedAt time.Time
}

// ArticleImage is the single image row owned by an article.
// LocalLocation is the web rendition path written by the crawler;
// SmallLocation is the mobile rendition path filled in by the image stage.
type ArticleImage struct {
	ID            int64
	ArticleID     string
	ImageName     string
	OriginalURL   string
	LocalLocation string
	SmallLocation string
	NewURL        string
}

// Difficulty keys most enrichment artifacts.
type Difficulty string

const (
	DifficultyEasy Difficulty = "easy"
	DifficultyMid  Difficulty = "mid"
	DifficultyHard Difficulty = "hard"
)

// Difficulties lists the tiers in persistence order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMid, DifficultyHard}

// Attitude values allowed on a perspective.
const (
	AttitudePositive = "positive"
	AttitudeNeutral  = "neutral"
	AttitudeNegative = "negative"
)

// Keyword is one glossary entry for a difficulty tier.
type Keyword struct {
	Word        string
	Frequency   int
	Explanation string
}

// Choice is one option of a multiple-choice question.
type Choice struct {
	Label   string
	Text    string
	Correct bool
}

// Question is a quiz item with its choices.
type Question struct {
	Question string
	Choices  []Choice
}

// Perspective is one discussion viewpoint with its attitude.
type Perspective struct {
	Viewpoint string
	Attitude  string
}

// PerspectiveSet holds the two per-tier viewpoints plus the synthesis,
// which must carry a neutral attitude.
type PerspectiveSet struct {
	Perspectives []Perspective
	Synthesis    Perspective
}

// Enrichment is the full validated LLM output for one article. It is
// persisted atomically: either every artifact row exists or none do.
type Enrichment struct {
	ArticleID     string
	TitleZH       string
	Summaries     map[Difficulty]string
	SummaryZHHard string
	Keywords      map[Difficulty][]Keyword
	Background    map[Difficulty]string
	Analysis      map[Difficulty]string // mid and hard only
	Questions     map[Difficulty][]Question
	Perspectives  map[Difficulty]PerspectiveSet
}
