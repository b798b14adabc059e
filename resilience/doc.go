// Package resilience retries failing calls on an exponential backoff.
//
// The headless host retries page loads with it and spaces push channel
// reconnects with Backoff:
//
//	doc, err := resilience.Retry(ctx, resilience.RetryConfig{
//	    MaxAttempts: resilience.Unlimited,
//	    Backoff:     resilience.Backoff{Initial: time.Second, Max: 30 * time.Second},
//	}, loadPage)
//
// Errors from the errors package are retried only when marked retryable.
package resilience
