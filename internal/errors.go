package internal

import (
	"net/http"

	"github.com/derWhity/medstock/internal/backend"
	"github.com/derWhity/medstock/internal/repos"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// ErrCodeUnknown is the error code for unknown errors
	ErrCodeUnknown = "UNKNOWN_ERROR"
	// ErrCodeRepoError is returned when the request to a repo fails with an error
	ErrCodeRepoError = "STORAGE_QUERY_FAILED"
	// ErrCodeBackendError is returned when the remote API could not be reached or answered with an error
	ErrCodeBackendError = "BACKEND_REQUEST_FAILED"
	// ErrCodeIllegalJSON is returned when the request did not contain a valid JSON body
	ErrCodeIllegalJSON = "ILLEGAL_JSON_REQUEST"
	// ErrCodeValidation is returned when the transferred data does not validate. The error data contains a map of
	// field names and messages
	ErrCodeValidation = "VALIDATION_FAILED"
	// ErrCodeInvalidUint is returned when an ID is required inside a request, but is not provided or in a wrong format
	ErrCodeInvalidUint = "INVALID_UINT"
	// ErrCodeUnknownKind is returned when a record kind is requested that does not exist
	ErrCodeUnknownKind = "UNKNOWN_RECORD_KIND"
	// ErrCodeRecordNotFound is returned when a referenced record does not exist
	ErrCodeRecordNotFound = "RECORD_NOT_FOUND"
	// ErrCodeUserNotFound is returned when a referenced user does not exist
	ErrCodeUserNotFound = "USER_NOT_FOUND"
	// ErrCodeRoleNotFound is returned when a referenced role or permission does not exist
	ErrCodeRoleNotFound = "ROLE_NOT_FOUND"
	// ErrCodeAlreadyExists is returned when an entity with the same unique name already exists
	ErrCodeAlreadyExists = "ALREADY_EXISTS"
	// ErrCodeLoginFailed is returned when the user fails to login for some reason
	ErrCodeLoginFailed = "LOGIN_FAILED"
	// ErrCodeNotLoggedIn is returned when the user tried to access an API that needs a logged-in user, but the user
	// has no authenticated session
	ErrCodeNotLoggedIn = "NOT_LOGGED_IN"
	// ErrCodeNotPermitted is returned when the logged-in user lacks the role or permission an API needs
	ErrCodeNotPermitted = "NOT_PERMITTED"
	// ErrCodeNotAvailable is returned for functions that are not available in the current setup
	ErrCodeNotAvailable = "NOT_AVAILABLE"
	// ErrCodeUnknownFunction is returned for API paths that do not exist
	ErrCodeUnknownFunction = "UNKNOWN_FUNCTION"
	// ErrCodeWrongPassword is returned when the current password given for a password change is wrong
	ErrCodeWrongPassword = "WRONG_PASSWORD"
)

var (
	// ErrNotLoggedIn is returned by functions that need a session when there is none
	ErrNotLoggedIn = MakeError(
		http.StatusForbidden,
		ErrCodeNotLoggedIn,
		"This function needs a logged-in user",
	)
	// ErrNotPermitted is returned when the session's role or permissions do not allow the requested function
	ErrNotPermitted = MakeError(
		http.StatusForbidden,
		ErrCodeNotPermitted,
		"You are not allowed to use this function",
	)
)

// storeError converts an error returned by a repository or the remote API into an error for the client.
// Messages of the remote API are passed on, everything else is logged and replaced by the given message
func storeError(logger *logrus.Entry, err error, msg string) error {
	if httpErr, ok := err.(*HTTPError); ok {
		return httpErr
	}
	var apiErr *backend.Error
	if errors.As(err, &apiErr) {
		status := http.StatusBadGateway
		if apiErr.Status >= 400 && apiErr.Status < 500 {
			// Problems with the request itself keep their status
			status = apiErr.Status
		}
		return MakeError(status, ErrCodeBackendError, apiErr.Message)
	}
	logger.WithError(err).Error(msg)
	return MakeError(http.StatusInternalServerError, ErrCodeRepoError, msg)
}

// isNotExisting checks if a repository reported a missing entity
func isNotExisting(err error) bool {
	return errors.Cause(err) == repos.ErrEntityNotExisting
}

// validationError creates the error returned when incoming data does not validate
func validationError(fields map[string]string) *HTTPError {
	return MakeErrorWithData(http.StatusBadRequest, ErrCodeValidation, "The provided data is invalid", fields)
}

// HTTPError is an error that contains information about the error message to return to the client
type HTTPError struct {
	message string
	code    string
	status  int
	data    interface{}
}

// MakeError creates a new HTTPError with the given contents
func MakeError(status int, code, message string) *HTTPError {
	return MakeErrorWithData(status, code, message, nil)
}

// MakeErrorWithData creates a new HTTPError with the given contents and an additional data element
func MakeErrorWithData(status int, code, message string, data interface{}) *HTTPError {
	return &HTTPError{message, code, status, data}
}

// Error implements the errorer interface
func (e *HTTPError) Error() string {
	return e.message
}

// Status returns the HTTP status that should be returned
func (e *HTTPError) Status() int {
	return e.status
}

// ErrorCode returns the machine-readable error code
func (e *HTTPError) ErrorCode() string {
	return e.code
}

// Data returns additional data about the error
func (e *HTTPError) Data() interface{} {
	return e.data
}
