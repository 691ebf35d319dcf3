package deepseek

import (
	"fmt"
	"strings"
)

// articlePlaceholder is the single substitution point in every prompt
// template; the article JSON replaces it verbatim.
const articlePlaceholder = "{{ARTICLE_JSON}}"

// promptContract states the response shape. It is shared by all five
// templates so the parser sees one contract regardless of category.
const promptContract = `Respond with a single JSON object and nothing else: no markdown fences, no commentary. The object must contain exactly these keys:
- "article_id": the article's id, echoed back
- "title_zh": the title translated to Simplified Chinese
- "summary_easy": 100-200 words, simple vocabulary for young readers
- "summary_mid": 300-500 words
- "summary_hard": 500-700 words, full nuance
- "summary_zh_hard": Simplified Chinese translation of the hard summary
- "key_words_easy", "key_words_mid", "key_words_hard": each an array of exactly 10 objects {"word", "frequency", "<level>_explanation"} where <level> matches the tier
- "background_reading_easy", "background_reading_mid", "background_reading_hard": context a reader needs before the article
- "article_analysis_mid", "article_analysis_hard": about 100 words each on structure and argument
- "multiple_choice_questions_easy" (exactly 8 items), "multiple_choice_questions_mid" (exactly 10), "multiple_choice_questions_hard" (exactly 12): each item {"question", "choices": [{"label", "text", "is_correct"}]} with exactly one correct choice among four
- "perspectives_easy", "perspectives_mid", "perspectives_hard": each {"perspectives": [two objects {"viewpoint", "attitude"}], "synthesis": {"viewpoint", "attitude"}} where attitude is one of "positive", "neutral", "negative" and the synthesis attitude is always "neutral"

Article JSON:
` + articlePlaceholder

// promptTemplates is the fixed prompt family. A category's prompt_name
// selects one; unknown names fall back to default.
var promptTemplates = map[string]string{
	"default": `You are an editor for an age-appropriate news-reading product for readers aged 13 and up. Rewrite and enrich the following news article for three reading levels. Keep every fact accurate, avoid sensational language, and explain unfamiliar terms.

` + promptContract,

	"sports": `You are a sports editor for an age-appropriate news-reading product. Summarize the following sports article for three reading levels. Keep scores, records, and player names exact; explain rules and league context a newcomer would not know.

` + promptContract,

	"technology": `You are a technology editor for an age-appropriate news-reading product. Summarize the following technology article for three reading levels. Explain technical concepts plainly, spell out acronyms on first use, and keep company and product names exact.

` + promptContract,

	"science": `You are a science editor for an age-appropriate news-reading product. Summarize the following science article for three reading levels. Preserve the distinction between findings and speculation, name the researchers and institutions, and explain the method in accessible terms.

` + promptContract,

	"political": `You are a politics editor for an age-appropriate news-reading product. Summarize the following political article for three reading levels. Present positions neutrally, attribute every claim to its source, and give balanced weight to the perspectives involved.

` + promptContract,
}

// PromptNames lists the valid prompt_name values.
func PromptNames() []string {
	return []string{"default", "sports", "technology", "science", "political"}
}

// RenderPrompt substitutes the article JSON into the named template.
// Unknown prompt names use the default template.
func RenderPrompt(promptName, articleJSON string) (string, error) {
	tmpl, ok := promptTemplates[promptName]
	if !ok {
		tmpl = promptTemplates["default"]
	}
	if !strings.Contains(tmpl, articlePlaceholder) {
		return "", fmt.Errorf("prompt template %q has no article placeholder", promptName)
	}
	return strings.ReplaceAll(tmpl, articlePlaceholder, articleJSON), nil
}
