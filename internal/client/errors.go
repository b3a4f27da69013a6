package client

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider failures
type ErrorKind string

const (
	ProviderUnavailable ErrorKind = "provider_unavailable"
	ProviderRateLimited ErrorKind = "provider_rate_limited"
)

// ProviderError is returned when odds for a league could not be fetched
type ProviderError struct {
	League     string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: league %s (status %d): %v", e.Kind, e.League, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: league %s: %v", e.Kind, e.League, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is a rate-limited provider error
func IsRateLimited(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == ProviderRateLimited
}
