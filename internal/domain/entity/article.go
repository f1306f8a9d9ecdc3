// Package entity defines the core domain entities and validation logic for the digest pipeline.
// It contains subscribers, ledger records, and the transient article and digest values
// that flow through aggregation and assembly, along with domain-specific errors.
package entity

// Fallback values substituted when the summarizer fails.
const (
	FallbackSummaryText     = "Summary unavailable."
	FallbackCategory        = "General"
	FallbackImportanceScore = 3
)

// RawArticle is a feed item as fetched. It is never persisted.
type RawArticle struct {
	Title     string
	URL       string
	Source    string
	Topic     string
	Published string
}

// Summary is the structured result returned by a summarizer.
type Summary struct {
	Bullets         []string `json:"bullets"`
	Summary         string   `json:"summary"`
	Category        string   `json:"category"`
	ImportanceScore int      `json:"importance_score"`
}

// FallbackSummary returns the summary used when summarization fails.
func FallbackSummary() Summary {
	return Summary{
		Bullets:         []string{},
		Summary:         FallbackSummaryText,
		Category:        FallbackCategory,
		ImportanceScore: FallbackImportanceScore,
	}
}

// Normalize clamps the importance score to 1..10 and fills empty fields from the fallback.
func (s Summary) Normalize() Summary {
	if s.Bullets == nil {
		s.Bullets = []string{}
	}
	if s.Summary == "" {
		s.Summary = FallbackSummaryText
	}
	if s.Category == "" {
		s.Category = FallbackCategory
	}
	s.ImportanceScore = ClampImportance(s.ImportanceScore)
	return s
}

// ClampImportance bounds an importance score to 1..10.
func ClampImportance(score int) int {
	return min(max(score, 1), 10)
}

// SummarizedArticle is a RawArticle with its summary attached.
type SummarizedArticle struct {
	RawArticle
	Summary
}
