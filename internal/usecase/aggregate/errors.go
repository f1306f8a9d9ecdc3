// Package aggregate turns a subscriber's topics into a ranked list of summarized
// articles: it fetches the configured feeds, extracts and cleans article text,
// summarizes each article, removes duplicate headlines and keeps the top N.
package aggregate

import "errors"

// ErrAllFeedsFailed indicates that every feed attempted for the requested topics
// returned an error. A partial failure is logged and tolerated instead.
var ErrAllFeedsFailed = errors.New("all feeds failed")
