package drive

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// ConfigurationError reports a missing required setting or an invalid
// argument value.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Msg, e.Err)
	}
	return "configuration error: " + e.Msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// AuthError reports a credential that is missing, expired or revoked and
// could not be refreshed.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: not authorized: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NotFoundError reports a remote identifier that does not resolve.
type NotFoundError struct {
	ID  string
	Err error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("file %s not found: %v", e.ID, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// TransferError reports a download or upload that failed after it started.
// For downloads, Path holds the possibly truncated local file.
type TransferError struct {
	Op   string
	Path string
	Err  error
}

func (e *TransferError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s interrupted: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s interrupted: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// classify maps a collaborator error onto the error kinds above. id names
// the remote object the call addressed, if any. Errors with no better
// classification are wrapped with op and returned as-is.
func classify(op, id string, err error) error {
	if err == nil {
		return nil
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &AuthError{Op: op, Err: err}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized:
			return &AuthError{Op: op, Err: err}
		case http.StatusNotFound:
			if id != "" {
				return &NotFoundError{ID: id, Err: err}
			}
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
