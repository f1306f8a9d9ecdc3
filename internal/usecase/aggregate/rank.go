package aggregate

import (
	"sort"
	"strings"

	"daily-digest/internal/domain/entity"
	"daily-digest/internal/utils/text"
)

// Scorer assigns a relevance score to an article. Higher scores rank first.
type Scorer interface {
	Score(a entity.SummarizedArticle) float64
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(a entity.SummarizedArticle) float64

// Score calls f(a).
func (f ScorerFunc) Score(a entity.SummarizedArticle) float64 { return f(a) }

// TitleLengthScorer ranks longer headlines first.
type TitleLengthScorer struct{}

// Score returns the title length in runes.
func (TitleLengthScorer) Score(a entity.SummarizedArticle) float64 {
	return float64(text.CountRunes(a.Title))
}

// ImportanceScorer ranks by the summarizer's importance score, breaking ties on
// title length.
type ImportanceScorer struct{}

// Score weights importance well above any realistic title length.
func (ImportanceScorer) Score(a entity.SummarizedArticle) float64 {
	return float64(a.ImportanceScore)*1000 + float64(text.CountRunes(a.Title))
}

// NewScorer returns the scorer registered under name, falling back to
// TitleLengthScorer for unknown names.
func NewScorer(name string) Scorer {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "importance":
		return ImportanceScorer{}
	default:
		return TitleLengthScorer{}
	}
}

// Deduplicate drops articles whose normalized title was already seen. The first
// occurrence wins and input order is kept.
func Deduplicate(articles []entity.SummarizedArticle) []entity.SummarizedArticle {
	seen := make(map[string]struct{}, len(articles))
	out := make([]entity.SummarizedArticle, 0, len(articles))
	for _, a := range articles {
		key := strings.ToLower(strings.TrimSpace(a.Title))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Rank orders articles by descending score and returns at most topN of them.
// Equal scores keep their input order. A non-positive topN keeps everything.
func Rank(articles []entity.SummarizedArticle, scorer Scorer, topN int) []entity.SummarizedArticle {
	if scorer == nil {
		scorer = TitleLengthScorer{}
	}
	type scored struct {
		article entity.SummarizedArticle
		score   float64
	}
	ranked := make([]scored, len(articles))
	for i, a := range articles {
		ranked[i] = scored{article: a, score: scorer.Score(a)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	out := make([]entity.SummarizedArticle, len(ranked))
	for i, r := range ranked {
		out[i] = r.article
	}
	return out
}
