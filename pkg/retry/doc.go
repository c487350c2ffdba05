// Package retry provides exponential backoff retry for transient failures.
//
// Two callers use it: persistence backends retry writes that fail with
// transient storage errors, and the assistant generator retries requests that
// fail before any streamed chunk has been delivered.
//
//	err := retry.Do(ctx, retry.Transient(), func() error {
//	    return backend.Put(ctx, key, data)
//	})
//
// Errors wrapped with NonRetryable, or rejected by Config.RetryIf, end the loop
// immediately and are returned unchanged. Transient() only retries errors that
// are unclassified or classified as transient by the errors package.
//
// All retry operations respect context cancellation, both while fn runs and
// during the backoff delay.
package retry
