package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrNetwork matches transport failures (DNS, refused connection, timeout).
	ErrNetwork = errors.New("network error")

	// ErrDecode matches response bodies that are not valid JSON for the call.
	ErrDecode = errors.New("decode error")

	// ErrServer matches responses rejected because of their HTTP status.
	ErrServer = errors.New("server error")

	// ErrResponseTooLarge is wrapped by network errors for bodies over
	// Config.MaxResponseBytes.
	ErrResponseTooLarge = errors.New("response body too large")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassNetwork represents transport errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents undecodable response bodies.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassServer represents non-2xx responses.
	ErrorClassServer ErrorClass = "server"
)

// APIError describes a failed call against the listing API.
type APIError struct {
	// Op is the client operation, e.g. "listings" or "predict".
	Op         string
	Class      ErrorClass
	StatusCode int
	// Body is the raw response body, when one was read.
	Body []byte
	Err  error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("listing api %s %s error", e.Op, e.Class)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is matches the class sentinels ErrNetwork, ErrDecode and ErrServer.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Class == ErrorClassNetwork
	case ErrDecode:
		return e.Class == ErrorClassDecode
	case ErrServer:
		return e.Class == ErrorClassServer
	}
	return false
}

// shouldRetry determines if a failure may be retried.
// Decode errors, oversized bodies and 4xx responses are deterministic and
// never retried.
func shouldRetry(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || errors.Is(apiErr.Err, ErrResponseTooLarge) {
		return false
	}
	switch apiErr.Class {
	case ErrorClassNetwork:
		return true
	case ErrorClassServer:
		return apiErr.StatusCode >= 500
	default:
		return false
	}
}
