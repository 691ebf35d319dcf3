package deepseek

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/daijiong1977/news-sub002/internal/core"
)

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func fixtureKeywords(level string) []map[string]any {
	out := make([]map[string]any, 10)
	for i := range out {
		out[i] = map[string]any{
			"word":                  "term",
			"frequency":             i + 1,
			level + "_explanation": "a short gloss",
		}
	}
	return out
}

func fixtureQuestions(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{
			"question": "What happened?",
			"choices": []map[string]any{
				{"label": "A", "text": "first", "is_correct": true},
				{"label": "B", "text": "second", "is_correct": false},
				{"label": "C", "text": "third", "is_correct": false},
				{"label": "D", "text": "fourth", "is_correct": false},
			},
		}
	}
	return out
}

func fixturePerspectives() map[string]any {
	return map[string]any{
		"perspectives": []map[string]any{
			{"viewpoint": "supporters welcome it", "attitude": "positive"},
			{"viewpoint": "critics question the cost", "attitude": "negative"},
		},
		"synthesis": map[string]any{"viewpoint": "more data is needed", "attitude": "neutral"},
	}
}

// fixtureResponse builds a contract-complete response object that tests
// mutate to provoke individual failures.
func fixtureResponse() map[string]any {
	return map[string]any{
		"article_id":      "2026082401",
		"title_zh":        "市政会延长项目",
		"summary_easy":    words(150),
		"summary_mid":     words(400),
		"summary_hard":    words(600),
		"summary_zh_hard": "中文摘要",

		"key_words_easy": fixtureKeywords("easy"),
		"key_words_mid":  fixtureKeywords("mid"),
		"key_words_hard": fixtureKeywords("hard"),

		"background_reading_easy": "easy background",
		"background_reading_mid":  "mid background",
		"background_reading_hard": "hard background",

		"article_analysis_mid":  "mid analysis",
		"article_analysis_hard": "hard analysis",

		"multiple_choice_questions_easy": fixtureQuestions(8),
		"multiple_choice_questions_mid":  fixtureQuestions(10),
		"multiple_choice_questions_hard": fixtureQuestions(12),

		"perspectives_easy": fixturePerspectives(),
		"perspectives_mid":  fixturePerspectives(),
		"perspectives_hard": fixturePerspectives(),
	}
}

func marshalFixture(t *testing.T, m map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("failed to marshal fixture: %v", err)
	}
	return data
}

func TestParseAndValidateAcceptsContractResponse(t *testing.T) {
	resp, err := Parse(marshalFixture(t, fixtureResponse()))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if err := resp.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestParseRejectsNonJSON(t *testing.T) {
	bodies := []string{
		"Here is the enrichment you asked for.",
		"```json\n{\"article_id\": \"x\"}\n```",
		"[1, 2, 3]",
		"{not valid json",
	}
	for _, body := range bodies {
		_, err := Parse([]byte(body))
		var se *core.StructureError
		if !errors.As(err, &se) {
			t.Fatalf("Parse(%q): want StructureError, got %v", body, err)
		}
		if se.Reason != "not_json" {
			t.Errorf("Parse(%q): got reason %q, want not_json", body, se.Reason)
		}
	}
}

func TestParseRejectsMissingKeys(t *testing.T) {
	for _, key := range []string{"summary_zh_hard", "perspectives_hard", "key_words_mid"} {
		m := fixtureResponse()
		delete(m, key)
		_, err := Parse(marshalFixture(t, m))
		var se *core.StructureError
		if !errors.As(err, &se) {
			t.Fatalf("missing %s: want StructureError, got %v", key, err)
		}
		if se.Reason != "missing_field" || se.Field != key {
			t.Errorf("missing %s: got reason %q field %q", key, se.Reason, se.Field)
		}
	}
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		reason string
	}{
		{
			name:   "easy summary too short",
			mutate: func(m map[string]any) { m["summary_easy"] = words(50) },
			reason: "word_count_out_of_band",
		},
		{
			name:   "hard summary too long",
			mutate: func(m map[string]any) { m["summary_hard"] = words(900) },
			reason: "word_count_out_of_band",
		},
		{
			name:   "wrong keyword count",
			mutate: func(m map[string]any) { m["key_words_mid"] = fixtureKeywords("mid")[:7] },
			reason: "missing_field",
		},
		{
			name:   "wrong question count",
			mutate: func(m map[string]any) { m["multiple_choice_questions_easy"] = fixtureQuestions(5) },
			reason: "missing_field",
		},
		{
			name:   "empty chinese summary",
			mutate: func(m map[string]any) { m["summary_zh_hard"] = "  " },
			reason: "missing_field",
		},
		{
			name: "non-neutral synthesis",
			mutate: func(m map[string]any) {
				p := fixturePerspectives()
				p["synthesis"] = map[string]any{"viewpoint": "it is good", "attitude": "positive"}
				m["perspectives_mid"] = p
			},
			reason: "attitude_invariant",
		},
		{
			name: "invalid perspective attitude",
			mutate: func(m map[string]any) {
				p := fixturePerspectives()
				p["perspectives"] = []map[string]any{
					{"viewpoint": "one", "attitude": "enthusiastic"},
					{"viewpoint": "two", "attitude": "negative"},
				}
				m["perspectives_easy"] = p
			},
			reason: "attitude_invariant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := fixtureResponse()
			tt.mutate(m)
			resp, err := Parse(marshalFixture(t, m))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			err = resp.Validate()
			var se *core.StructureError
			if !errors.As(err, &se) {
				t.Fatalf("want StructureError, got %v", err)
			}
			if se.Reason != tt.reason {
				t.Errorf("got reason %q, want %q", se.Reason, tt.reason)
			}
		})
	}
}

func TestToEnrichment(t *testing.T) {
	resp, err := Parse(marshalFixture(t, fixtureResponse()))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	e := resp.ToEnrichment("2026082402")

	if e.ArticleID != "2026082402" {
		t.Errorf("enrichment must use the claimed id, got %s", e.ArticleID)
	}
	if e.TitleZH != "市政会延长项目" {
		t.Errorf("got zh title %q", e.TitleZH)
	}
	if len(e.Keywords[core.DifficultyHard]) != 10 {
		t.Errorf("got %d hard keywords", len(e.Keywords[core.DifficultyHard]))
	}
	if e.Keywords[core.DifficultyEasy][0].Explanation == "" {
		t.Error("tier explanation key was not mapped")
	}
	if len(e.Questions[core.DifficultyHard]) != 12 {
		t.Errorf("got %d hard questions", len(e.Questions[core.DifficultyHard]))
	}
	if got := e.Questions[core.DifficultyEasy][0].Choices[0]; !got.Correct || got.Label != "A" {
		t.Errorf("choice mapping broken: %+v", got)
	}
	if e.Perspectives[core.DifficultyMid].Synthesis.Attitude != core.AttitudeNeutral {
		t.Error("synthesis attitude lost in conversion")
	}
	if _, ok := e.Analysis[core.DifficultyEasy]; ok {
		t.Error("easy tier must not carry analysis")
	}
}

func TestRenderPrompt(t *testing.T) {
	articleJSON := `{"id":"2026082401","title":"Council extends program"}`

	for _, name := range PromptNames() {
		prompt, err := RenderPrompt(name, articleJSON)
		if err != nil {
			t.Fatalf("RenderPrompt(%s) failed: %v", name, err)
		}
		if !strings.Contains(prompt, articleJSON) {
			t.Errorf("prompt %s missing article json", name)
		}
		if strings.Contains(prompt, articlePlaceholder) {
			t.Errorf("prompt %s still contains the placeholder", name)
		}
	}

	fallback, err := RenderPrompt("no-such-category", articleJSON)
	if err != nil {
		t.Fatalf("fallback render failed: %v", err)
	}
	def, _ := RenderPrompt("default", articleJSON)
	if fallback != def {
		t.Error("unknown prompt name should fall back to default")
	}
}
