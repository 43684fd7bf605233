package voting

import (
	"errors"
	"net/http"

	"github.com/yansimam/backend/internal/sessions"
)

var (
	// ErrInputInvalid wraps a *scoring.ValidationError or a bad verdict.
	ErrInputInvalid = errors.New("invalid input")
	// ErrAlreadyVoted means this device already has a vote in the session.
	ErrAlreadyVoted = errors.New("already voted")
	// ErrSubmitInProgress means a submission for the same session and device is in flight.
	ErrSubmitInProgress = errors.New("submission already in progress")
	// ErrNotReady is returned by Page.Submit before the page reached READY.
	ErrNotReady = errors.New("page is not ready for submission")
)

// StorageError carries a data store failure. Its message is shown to the user as is,
// and the user may retry.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }

// Outcome codes, shared by the JSON envelope, the HTML views, and metrics.
const (
	CodeSuccess          = "SUCCESS"
	CodeInputInvalid     = "INPUT_INVALID"
	CodeNotFound         = "NOT_FOUND"
	CodeExpired          = "EXPIRED"
	CodeMissingPhoto     = "MISSING_PHOTO"
	CodeAlreadyVoted     = "ALREADY_VOTED"
	CodeSubmitInProgress = "SUBMIT_IN_PROGRESS"
	CodeStorageError     = "STORAGE_ERROR"
)

// Code classifies err into an outcome code. Unclassified errors are storage errors.
func Code(err error) string {
	switch {
	case err == nil:
		return CodeSuccess
	case errors.Is(err, ErrInputInvalid):
		return CodeInputInvalid
	case errors.Is(err, sessions.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, sessions.ErrExpired):
		return CodeExpired
	case errors.Is(err, sessions.ErrMissingPhoto):
		return CodeMissingPhoto
	case errors.Is(err, ErrAlreadyVoted):
		return CodeAlreadyVoted
	case errors.Is(err, ErrSubmitInProgress):
		return CodeSubmitInProgress
	default:
		return CodeStorageError
	}
}

// HTTPStatus maps an outcome code to its response status.
func HTTPStatus(code string) int {
	switch code {
	case CodeSuccess:
		return http.StatusCreated
	case CodeInputInvalid:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeExpired:
		return http.StatusGone
	case CodeMissingPhoto:
		return http.StatusUnprocessableEntity
	case CodeAlreadyVoted:
		return http.StatusConflict
	case CodeSubmitInProgress:
		return http.StatusTooManyRequests
	default:
		return http.StatusServiceUnavailable
	}
}
