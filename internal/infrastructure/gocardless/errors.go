package gocardless

import "fmt"

// ExternalAPIError is returned for every non-2xx provider response.
type ExternalAPIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("failed to %s (status %d): %s", e.Operation, e.StatusCode, e.Body)
}

// ProviderAuthError is returned when no access token could be obtained:
// the credential exchange was rejected or could not be performed.
type ProviderAuthError struct {
	Operation  string
	StatusCode int // zero when the request never got a response
	Body       string
	Err        error
}

func (e *ProviderAuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("failed to %s (status %d): %s", e.Operation, e.StatusCode, e.Body)
}

func (e *ProviderAuthError) Unwrap() error {
	return e.Err
}
