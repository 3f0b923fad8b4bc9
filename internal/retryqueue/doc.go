// Package retryqueue holds the retry queue backends. Every backend implements
// tracker.RetryQueue with set semantics keyed by keyword id.
package retryqueue
