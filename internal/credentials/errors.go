package credentials

import (
	"errors"
	"fmt"
)

var (
	// ErrDisabled is wrapped by the ConfigurationError returned when the
	// integration flag is off.
	ErrDisabled = errors.New("google calendar integration is disabled")

	// ErrReauthorizationRequired is the terminal condition: the refresh token
	// was rejected and a human has to re-authorize the application.
	ErrReauthorizationRequired = errors.New("google credentials require reauthorization")

	// ErrNotInitialized is returned by operations called before Initialize.
	ErrNotInitialized = errors.New("credential manager not initialized")
)

// ConfigurationError is fatal at initialization and disables the subsystem.
type ConfigurationError struct {
	// Field names the configuration value that is missing or invalid.
	Field string

	// Reason is a short human readable explanation.
	Reason string

	// Err is the underlying error, if any.
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error (%s): %s", e.Field, e.Reason)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is, or wraps, a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// RefreshError is returned by Refresh. Terminal errors also match
// ErrReauthorizationRequired with errors.Is.
type RefreshError struct {
	// Terminal is true when the refresh token itself is invalid.
	Terminal bool

	// Code is the OAuth error code from the token endpoint, when present.
	Code string

	Err error
}

func (e *RefreshError) Error() string {
	kind := "transient"
	if e.Terminal {
		kind = "terminal"
	}
	if e.Code != "" {
		return fmt.Sprintf("token refresh failed (%s, %s): %v", kind, e.Code, e.Err)
	}
	return fmt.Sprintf("token refresh failed (%s): %v", kind, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

func (e *RefreshError) Is(target error) bool {
	return e.Terminal && target == ErrReauthorizationRequired
}
