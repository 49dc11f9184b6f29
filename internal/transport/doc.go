// Package transport provides the rate-limit aware HTTP client used by the crawler.
//
// # Retry policy
//
// Only HTTP 429 responses are retried. The delay before the next attempt is
// chosen in this order:
//
//  1. Retry-After given as seconds
//  2. Retry-After given as an HTTP date (never negative)
//  3. min(BaseDelay * 2^attempt, MaxDelay)
//
// Once the attempt counter reaches RetryPolicy.MaxAttempts the request fails
// with a *Error of kind KindRateLimitExceeded. Every other failure (network
// error, non-429 status >= 400) fails immediately without retry.
//
// # Single flow
//
// A Client admits one logical request at a time. Backoff sleeps hold the gate,
// so no other request can be issued through the same Client while it waits.
// Callers sharing one upstream rate limit should share one Client.
//
// # Usage
//
//	httpClient, err := transport.NewHTTPClient(transport.HTTPOptions{Timeout: 30 * time.Second})
//	client := transport.New(
//		transport.WithHTTPClient(httpClient),
//		transport.WithRetryPolicy(transport.DefaultRetryPolicy()),
//	)
//	body, err := client.Fetch(ctx, "https://www.perseus.tufts.edu/hopper/text?doc=...")
package transport
