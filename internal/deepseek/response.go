package deepseek

import (
	"encoding/json"
	"strings"

	"github.com/daijiong1977/news-sub002/internal/core"
)

// Response is the structured enrichment object the provider must return:
// one JSON object, no markdown fences, all keys mandatory.
type Response struct {
	ArticleID string `json:"article_id"`
	TitleZH   string `json:"title_zh"`

	SummaryEasy   string `json:"summary_easy"`
	SummaryMid    string `json:"summary_mid"`
	SummaryHard   string `json:"summary_hard"`
	SummaryZHHard string `json:"summary_zh_hard"`

	KeyWordsEasy []rawKeyword `json:"key_words_easy"`
	KeyWordsMid  []rawKeyword `json:"key_words_mid"`
	KeyWordsHard []rawKeyword `json:"key_words_hard"`

	BackgroundEasy string `json:"background_reading_easy"`
	BackgroundMid  string `json:"background_reading_mid"`
	BackgroundHard string `json:"background_reading_hard"`

	AnalysisMid  string `json:"article_analysis_mid"`
	AnalysisHard string `json:"article_analysis_hard"`

	QuestionsEasy []rawQuestion `json:"multiple_choice_questions_easy"`
	QuestionsMid  []rawQuestion `json:"multiple_choice_questions_mid"`
	QuestionsHard []rawQuestion `json:"multiple_choice_questions_hard"`

	PerspectivesEasy rawPerspectiveSet `json:"perspectives_easy"`
	PerspectivesMid  rawPerspectiveSet `json:"perspectives_mid"`
	PerspectivesHard rawPerspectiveSet `json:"perspectives_hard"`
}

// rawKeyword carries the per-tier explanation key variants
// (easy_explanation / mid_explanation / hard_explanation).
type rawKeyword struct {
	Word            string `json:"word"`
	Frequency       int    `json:"frequency"`
	EasyExplanation string `json:"easy_explanation"`
	MidExplanation  string `json:"mid_explanation"`
	HardExplanation string `json:"hard_explanation"`
}

func (k rawKeyword) explanation() string {
	switch {
	case k.EasyExplanation != "":
		return k.EasyExplanation
	case k.MidExplanation != "":
		return k.MidExplanation
	default:
		return k.HardExplanation
	}
}

type rawChoice struct {
	Label     string `json:"label"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type rawQuestion struct {
	Question string      `json:"question"`
	Choices  []rawChoice `json:"choices"`
}

type rawPerspective struct {
	Viewpoint string `json:"viewpoint"`
	Attitude  string `json:"attitude"`
}

type rawPerspectiveSet struct {
	Perspectives []rawPerspective `json:"perspectives"`
	Synthesis    rawPerspective   `json:"synthesis"`
}

// mandatoryKeys is the full top-level contract; a response missing any of
// them is rejected before field-level validation.
var mandatoryKeys = []string{
	"article_id", "title_zh",
	"summary_easy", "summary_mid", "summary_hard", "summary_zh_hard",
	"key_words_easy", "key_words_mid", "key_words_hard",
	"background_reading_easy", "background_reading_mid", "background_reading_hard",
	"article_analysis_mid", "article_analysis_hard",
	"multiple_choice_questions_easy", "multiple_choice_questions_mid", "multiple_choice_questions_hard",
	"perspectives_easy", "perspectives_mid", "perspectives_hard",
}

// summaryBands are the inclusive word-count bands for the English
// summaries. The Chinese tier is checked for presence only; CJK text has
// no field-splittable words.
var summaryBands = map[string][2]int{
	"summary_easy": {100, 200},
	"summary_mid":  {300, 500},
	"summary_hard": {500, 700},
}

// questionCounts are the mandated quiz cardinalities per tier.
var questionCounts = map[core.Difficulty]int{
	core.DifficultyEasy: 8,
	core.DifficultyMid:  10,
	core.DifficultyHard: 12,
}

const keywordsPerTier = 10

// Parse decodes the raw body into a Response. The body must be a single
// JSON object; anything else (markdown fences included) is not_json.
// Callers save the raw body before surfacing a parse error.
func Parse(raw []byte) (*Response, error) {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		return nil, &core.StructureError{Reason: "not_json"}
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &keys); err != nil {
		return nil, &core.StructureError{Reason: "not_json"}
	}
	for _, k := range mandatoryKeys {
		if _, ok := keys[k]; !ok {
			return nil, &core.StructureError{Reason: "missing_field", Field: k}
		}
	}

	var resp Response
	if err := json.Unmarshal([]byte(trimmed), &resp); err != nil {
		return nil, &core.StructureError{Reason: "not_json"}
	}
	return &resp, nil
}

// Validate enforces the contract's field-level invariants: word-count
// bands, keyword and question cardinalities, analysis presence, and the
// synthesis-neutrality invariant.
func (r *Response) Validate() error {
	for field, band := range summaryBands {
		n := wordCount(r.summaryFor(field))
		if n < band[0] || n > band[1] {
			return &core.StructureError{Reason: "word_count_out_of_band", Field: field}
		}
	}
	if strings.TrimSpace(r.SummaryZHHard) == "" {
		return &core.StructureError{Reason: "missing_field", Field: "summary_zh_hard"}
	}
	if strings.TrimSpace(r.TitleZH) == "" {
		return &core.StructureError{Reason: "missing_field", Field: "title_zh"}
	}

	keywords := map[string][]rawKeyword{
		"key_words_easy": r.KeyWordsEasy,
		"key_words_mid":  r.KeyWordsMid,
		"key_words_hard": r.KeyWordsHard,
	}
	for field, kws := range keywords {
		if len(kws) != keywordsPerTier {
			return &core.StructureError{Reason: "missing_field", Field: field}
		}
		for _, kw := range kws {
			if kw.Word == "" || kw.explanation() == "" {
				return &core.StructureError{Reason: "missing_field", Field: field}
			}
		}
	}

	backgrounds := map[string]string{
		"background_reading_easy": r.BackgroundEasy,
		"background_reading_mid":  r.BackgroundMid,
		"background_reading_hard": r.BackgroundHard,
	}
	for field, text := range backgrounds {
		if strings.TrimSpace(text) == "" {
			return &core.StructureError{Reason: "missing_field", Field: field}
		}
	}

	if strings.TrimSpace(r.AnalysisMid) == "" {
		return &core.StructureError{Reason: "missing_field", Field: "article_analysis_mid"}
	}
	if strings.TrimSpace(r.AnalysisHard) == "" {
		return &core.StructureError{Reason: "missing_field", Field: "article_analysis_hard"}
	}

	questions := map[core.Difficulty][]rawQuestion{
		core.DifficultyEasy: r.QuestionsEasy,
		core.DifficultyMid:  r.QuestionsMid,
		core.DifficultyHard: r.QuestionsHard,
	}
	for d, qs := range questions {
		field := "multiple_choice_questions_" + string(d)
		if len(qs) != questionCounts[d] {
			return &core.StructureError{Reason: "missing_field", Field: field}
		}
		for _, q := range qs {
			if q.Question == "" || len(q.Choices) == 0 {
				return &core.StructureError{Reason: "missing_field", Field: field}
			}
		}
	}

	sets := map[string]rawPerspectiveSet{
		"perspectives_easy": r.PerspectivesEasy,
		"perspectives_mid":  r.PerspectivesMid,
		"perspectives_hard": r.PerspectivesHard,
	}
	for field, set := range sets {
		if len(set.Perspectives) != 2 {
			return &core.StructureError{Reason: "missing_field", Field: field}
		}
		for _, p := range set.Perspectives {
			if !validAttitude(p.Attitude) {
				return &core.StructureError{Reason: "attitude_invariant", Field: field}
			}
		}
		if set.Synthesis.Attitude != core.AttitudeNeutral {
			return &core.StructureError{Reason: "attitude_invariant", Field: field + ".synthesis"}
		}
	}

	return nil
}

func (r *Response) summaryFor(field string) string {
	switch field {
	case "summary_easy":
		return r.SummaryEasy
	case "summary_mid":
		return r.SummaryMid
	default:
		return r.SummaryHard
	}
}

func validAttitude(a string) bool {
	return a == core.AttitudePositive || a == core.AttitudeNeutral || a == core.AttitudeNegative
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// ToEnrichment converts a validated response into the store's atomic
// persistence shape. articleID comes from the claimed row, not from the
// echo in the response.
func (r *Response) ToEnrichment(articleID string) core.Enrichment {
	e := core.Enrichment{
		ArticleID:     articleID,
		TitleZH:       r.TitleZH,
		SummaryZHHard: r.SummaryZHHard,
		Summaries: map[core.Difficulty]string{
			core.DifficultyEasy: r.SummaryEasy,
			core.DifficultyMid:  r.SummaryMid,
			core.DifficultyHard: r.SummaryHard,
		},
		Keywords: map[core.Difficulty][]core.Keyword{
			core.DifficultyEasy: convertKeywords(r.KeyWordsEasy),
			core.DifficultyMid:  convertKeywords(r.KeyWordsMid),
			core.DifficultyHard: convertKeywords(r.KeyWordsHard),
		},
		Background: map[core.Difficulty]string{
			core.DifficultyEasy: r.BackgroundEasy,
			core.DifficultyMid:  r.BackgroundMid,
			core.DifficultyHard: r.BackgroundHard,
		},
		Analysis: map[core.Difficulty]string{
			core.DifficultyMid:  r.AnalysisMid,
			core.DifficultyHard: r.AnalysisHard,
		},
		Questions: map[core.Difficulty][]core.Question{
			core.DifficultyEasy: convertQuestions(r.QuestionsEasy),
			core.DifficultyMid:  convertQuestions(r.QuestionsMid),
			core.DifficultyHard: convertQuestions(r.QuestionsHard),
		},
		Perspectives: map[core.Difficulty]core.PerspectiveSet{
			core.DifficultyEasy: convertPerspectives(r.PerspectivesEasy),
			core.DifficultyMid:  convertPerspectives(r.PerspectivesMid),
			core.DifficultyHard: convertPerspectives(r.PerspectivesHard),
		},
	}
	return e
}

func convertKeywords(raw []rawKeyword) []core.Keyword {
	out := make([]core.Keyword, len(raw))
	for i, k := range raw {
		out[i] = core.Keyword{Word: k.Word, Frequency: k.Frequency, Explanation: k.explanation()}
	}
	return out
}

func convertQuestions(raw []rawQuestion) []core.Question {
	out := make([]core.Question, len(raw))
	for i, q := range raw {
		choices := make([]core.Choice, len(q.Choices))
		for j, c := range q.Choices {
			choices[j] = core.Choice{Label: c.Label, Text: c.Text, Correct: c.IsCorrect}
		}
		out[i] = core.Question{Question: q.Question, Choices: choices}
	}
	return out
}

func convertPerspectives(raw rawPerspectiveSet) core.PerspectiveSet {
	ps := make([]core.Perspective, len(raw.Perspectives))
	for i, p := range raw.Perspectives {
		ps[i] = core.Perspective{Viewpoint: p.Viewpoint, Attitude: p.Attitude}
	}
	return core.PerspectiveSet{
		Perspectives: ps,
		Synthesis:    core.Perspective{Viewpoint: raw.Synthesis.Viewpoint, Attitude: raw.Synthesis.Attitude},
	}
}
