package fetcher

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned when the queue has no room and no enqueue
	// timeout was given.
	ErrQueueFull = errors.New("fetch queue is full")

	// ErrEnqueueTimeout is returned when the queue stayed full for the
	// whole enqueue timeout.
	ErrEnqueueTimeout = errors.New("timed out waiting for room in the fetch queue")

	// ErrFetchTimeout is returned by HandleURL when the result did not
	// arrive in time.
	ErrFetchTimeout = errors.New("timed out waiting for fetch result")

	// ErrNoSuchProvider is wrapped by ProviderNotFoundError.
	ErrNoSuchProvider = errors.New("no such fetch provider")

	// ErrEngineStopped is returned when queueing on a stopped engine.
	ErrEngineStopped = errors.New("fetching engine stopped")
)

// ProviderNotFoundError is returned when an event names a provider that is
// not registered.
type ProviderNotFoundError struct {
	// Name is the provider requested by the event.
	Name string
}

// Error implements the error interface.
func (e *ProviderNotFoundError) Error() string {
	return fmt.Sprintf("%s: %q", ErrNoSuchProvider, e.Name)
}

// Unwrap returns ErrNoSuchProvider.
func (e *ProviderNotFoundError) Unwrap() error {
	return ErrNoSuchProvider
}

// FetchError is reported to failure handlers when a task fails at any stage.
type FetchError struct {
	// EventID is the id stamped on the event at enqueue.
	EventID string

	// URL is the fetched resource.
	URL string

	// Provider is the provider name.
	Provider string

	// Stage is one of "provider", "fetch", "process" or "callback".
	Stage string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s of %s via %q failed at %s: %v", e.EventID, e.URL, e.Provider, e.Stage, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// HTTPStatusError is returned by the http provider for non-2xx responses.
type HTTPStatusError struct {
	// URL is the requested URL.
	URL string

	// StatusCode is the HTTP status code.
	StatusCode int

	// Body is the beginning of the response body.
	Body string
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.URL, e.StatusCode, e.Body)
}
