package entity

import "time"

// Section is one topic block of a digest.
type Section struct {
	Topic    string
	Articles []SummarizedArticle
}

// Digest is the per-subscriber, per-day collection of summarized articles grouped by topic.
// Sections follow the subscriber's topic order and never contain empty sections.
type Digest struct {
	Date     time.Time
	Email    string
	Sections []Section
}

// Total returns the number of articles across all sections.
func (d *Digest) Total() int {
	n := 0
	for _, s := range d.Sections {
		n += len(s.Articles)
	}
	return n
}

// Empty reports whether the digest has no articles.
func (d *Digest) Empty() bool {
	return d.Total() == 0
}
