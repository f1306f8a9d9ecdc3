package summarizer

import (
	"context"
	"regexp"
	"strings"

	"daily-digest/internal/domain/entity"
	"daily-digest/internal/utils/text"
)

var sentenceEnd = regexp.MustCompile(`([.!?])\s+`)

// NoOp builds a summary from the article's opening sentences without calling an LLM.
// It is used in development and when no API key is configured.
type NoOp struct {
	bullets int
}

// NewNoOp creates a NoOp summarizer producing the given number of bullets.
func NewNoOp(bullets int) *NoOp {
	if bullets < minBullets {
		bullets = minBullets
	}
	return &NoOp{bullets: bullets}
}

// Summarize returns the first sentences as bullets and the opening as the overview.
func (n *NoOp) Summarize(_ context.Context, articleText string) (*entity.Summary, error) {
	body := text.Clean(articleText)
	if body == "" {
		s := entity.FallbackSummary()
		return &s, nil
	}

	sentences := strings.Split(sentenceEnd.ReplaceAllString(body, "$1\n"), "\n")
	bullets := make([]string, 0, n.bullets)
	for _, s := range sentences {
		if len(bullets) == n.bullets {
			break
		}
		if s = strings.TrimSpace(s); s != "" {
			bullets = append(bullets, text.Ellipsize(s, 200))
		}
	}

	s := entity.Summary{
		Bullets:         bullets,
		Summary:         text.Ellipsize(body, 300),
		Category:        entity.FallbackCategory,
		ImportanceScore: entity.FallbackImportanceScore,
	}.Normalize()
	return &s, nil
}
