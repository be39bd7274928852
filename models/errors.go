package models

import "fmt"

// The four recoverable error kinds. Each one advances the fallback
// orchestrator to the next provider; none of them fails a request.

// TransportError reports a failed network call or a non-2xx status.
type TransportError struct {
	URL    string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport: GET %s returned status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("transport: GET %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError reports a 2xx response whose body was not valid JSON.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse: GET %s returned a non-JSON body: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ProviderError reports a response whose embedded status field signals
// failure even though the HTTP layer succeeded. Body carries the raw
// error payload for diagnostics.
type ProviderError struct {
	Provider string
	Code     string
	Body     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: provider envelope error code %s: %s", e.Provider, e.Code, e.Body)
}

// InsufficientDataError reports a series shorter than a metric's
// minimum-sample gate.
type InsufficientDataError struct {
	Provider string
	Got      int
	Need     int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: %d daily points, need %d", e.Provider, e.Got, e.Need)
}

// BasesExhaustedError reports that every candidate base URL for a
// provider failed. Last is the error observed on the final base.
type BasesExhaustedError struct {
	Path     string
	Attempts int
	Last     error
}

func (e *BasesExhaustedError) Error() string {
	return fmt.Sprintf("all %d bases exhausted for %s: %v", e.Attempts, e.Path, e.Last)
}

func (e *BasesExhaustedError) Unwrap() error { return e.Last }
