// Package reporting implements the HTTP client for the laundry-events
// collector. It posts classification events as JSON, retries transient
// failures with exponential backoff, and manages rate limiting.
package reporting
