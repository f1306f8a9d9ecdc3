// Package resilience groups the failure-handling helpers used by the digest
// pipeline's outbound calls.
//
//   - circuitbreaker: per-dependency breakers for feeds, article pages, the
//     Claude and OpenAI APIs, and the SMTP relay
//   - retry: exponential backoff with jitter, including the ledger write policy
//
// A typical outbound call retries inside a breaker:
//
//	cb := circuitbreaker.New(circuitbreaker.FeedFetchConfig())
//	err := retry.WithBackoff(ctx, retry.FeedFetchConfig(), func() error {
//	    _, err := cb.Execute(func() (interface{}, error) {
//	        return fetch(ctx, url)
//	    })
//	    return err
//	})
package resilience
