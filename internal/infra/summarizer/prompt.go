package summarizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"daily-digest/internal/domain/entity"
	"daily-digest/internal/utils/text"
)

// ErrMalformedResponse is returned when the model reply is not the expected JSON object.
var ErrMalformedResponse = errors.New("malformed summary response")

const systemPrompt = "You are a news editor writing a daily email digest. " +
	"Reply with a single JSON object and nothing else."

// buildPrompt asks for a JSON object with bullets, summary, category and importance_score.
func buildPrompt(articleText string, bullets, maxChars int) string {
	truncated := text.Truncate(articleText, maxChars)
	return fmt.Sprintf(`Summarize the news article below.

Return JSON with exactly these fields:
  "bullets": an array of %d short key points, each one sentence,
  "summary": a neutral two-sentence overview,
  "category": a one or two word category such as "Politics" or "AI",
  "importance_score": an integer from 1 (trivial) to 10 (major news).

Article:
"""
%s
"""`, bullets, truncated)
}

// parseSummary extracts the JSON object from a model reply. Markdown code fences and
// surrounding prose are tolerated. Bullets beyond the requested count are dropped.
// A reply without importance_score gets the fallback score, and the score is
// clamped to 1..10. An empty category is left empty for the caller to fill.
func parseSummary(reply string, bullets int) (*entity.Summary, error) {
	body := strings.TrimSpace(reply)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")

	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrMalformedResponse)
	}

	s := entity.Summary{ImportanceScore: entity.FallbackImportanceScore}
	if err := json.Unmarshal([]byte(body[start:end+1]), &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	cleaned := make([]string, 0, len(s.Bullets))
	for _, b := range s.Bullets {
		if b = strings.TrimSpace(b); b != "" {
			cleaned = append(cleaned, b)
		}
	}
	if bullets > 0 && len(cleaned) > bullets {
		cleaned = cleaned[:bullets]
	}
	s.Bullets = cleaned
	s.Summary = strings.TrimSpace(s.Summary)
	s.Category = strings.TrimSpace(s.Category)

	if len(s.Bullets) == 0 && s.Summary == "" {
		return nil, fmt.Errorf("%w: empty summary", ErrMalformedResponse)
	}

	s.ImportanceScore = entity.ClampImportance(s.ImportanceScore)
	return &s, nil
}
