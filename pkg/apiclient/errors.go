package apiclient

import (
	"fmt"
	"net/http"
)

const defaultErrorMessage = "An error occurred"

// APIError is returned for any non-2xx response.
type APIError struct {
	Message     string
	Status      int
	FieldErrors map[string][]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// NotFound reports whether the server answered 404.
func (e *APIError) NotFound() bool { return e.Status == http.StatusNotFound }

// NetworkError is returned when no response was received.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
