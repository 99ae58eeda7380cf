package calendar

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

var (
	// ErrAuth matches authorization-class failures: the request was rejected
	// because the access token is missing, expired or revoked.
	ErrAuth = errors.New("calendar authorization failed")

	// ErrNotFound matches responses for events that do not exist (404 or 410).
	ErrNotFound = errors.New("calendar event not found")
)

// APIError is a failed calendar call.
type APIError struct {
	Op   string
	Code int
	Err  error
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("calendar %s failed (HTTP %d): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("calendar %s failed: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAuth:
		return e.Code == http.StatusUnauthorized
	case ErrNotFound:
		return e.Code == http.StatusNotFound || e.Code == http.StatusGone
	}
	return false
}

// AuthError is returned when an operation still fails authorization after the
// single refresh and retry, or when the refresh itself fails.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("calendar %s: authentication failed, please refresh OAuth credentials: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func (e *AuthError) Is(target error) bool {
	return target == ErrAuth
}

// classify wraps a raw client error into an *APIError carrying the HTTP code.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &APIError{Op: op, Code: gerr.Code, Err: err}
	}
	return &APIError{Op: op, Err: err}
}

// IsNotFound reports whether err means the event no longer exists.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
