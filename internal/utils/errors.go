package utils

import (
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with a hint telling the user what to do next
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\nSuggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// ErrOffline creates an error when the hosted backend cannot be reached
func ErrOffline(reason string) error {
	suggestion := "Local changes are kept. They will be pushed on the next sync once the connection is back"
	switch {
	case strings.Contains(reason, "no such host"):
		suggestion = "Check your DNS settings and internet connection"
	case strings.Contains(reason, "refused"):
		suggestion = "Check that the remote URL is correct and the server is running"
	case strings.Contains(reason, "expired"):
		suggestion = "The access key has expired. Store a new one with 'clinicsync credentials set --prompt'"
	}
	msg := "remote backend is offline"
	if reason != "" {
		msg += ": " + reason
	}
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("%s", msg),
		Suggestion: suggestion,
	}
}

// ErrRemoteNotConfigured creates an error when no remote URL is set
func ErrRemoteNotConfigured() error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("no remote backend configured"),
		Suggestion: "Set 'remote.url' in ~/.config/clinicsync/config.yaml or export CLINICSYNC_REMOTE_URL",
	}
}

// ErrNotLoggedIn creates an error for operations that need a current user
func ErrNotLoggedIn() error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("no user is logged in"),
		Suggestion: "Pass --user <username> to act as a clinic user",
	}
}

// ErrUserNotFound creates an error when a username does not exist locally
func ErrUserNotFound(username string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("user '%s' not found", username),
		Suggestion: "Run 'clinicsync sync' to pull accounts from the remote backend",
	}
}

// ErrCredentialsNotFound creates an error when no access key is stored for a host
func ErrCredentialsNotFound(host string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("no access key found for %s", host),
		Suggestion: fmt.Sprintf("Store one with 'clinicsync credentials set %s --prompt'", host),
	}
}

// ErrAuthenticationFailed creates an error when the remote rejects the access key
func ErrAuthenticationFailed(host string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("authentication failed for %s", host),
		Suggestion: "Check the stored key with 'clinicsync credentials get' and replace it if needed",
	}
}

// ErrConfigFileNotFound creates an error when the config file is missing
func ErrConfigFileNotFound(path string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("config file not found at %s", path),
		Suggestion: "Run clinicsync once to create a default configuration file",
	}
}

// ErrInvalidConfig creates an error for an invalid configuration field
func ErrInvalidConfig(field string, reason string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid configuration for '%s': %s", field, reason),
		Suggestion: fmt.Sprintf("Check ~/.config/clinicsync/config.yaml and fix the '%s' field", field),
	}
}

// WrapWithSuggestion wraps an existing error with a suggestion
func WrapWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}
