// Package metrics holds the Prometheus collectors shared by the HTTP layer and
// the aggregation stages. Scheduler and dispatch metrics belong to
// internal/infra/worker; provider call metrics to the summarizers.
//
//	items, err := fetcher.FetchFeed(ctx, target, limit)
//	metrics.RecordFeedFetch(target.Source, target.Topic, len(items), err)
package metrics
