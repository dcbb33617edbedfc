package errors

import (
	stderrors "errors"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Rotation state errors
	CodeInvalidRotationState Code = "INVALID_ROTATION_STATE"

	// Generation errors
	CodeInsufficientRecipes   Code = "INSUFFICIENT_RECIPES"
	CodeConcurrentGeneration  Code = "CONCURRENT_GENERATION_IN_PROGRESS"
	CodeAlgorithmFault        Code = "ALGORITHM_FAULT"
	CodeNoActivePlan          Code = "NO_ACTIVE_PLAN"
	CodeEmptyUserID           Code = "EMPTY_USER_ID"
	CodeInvalidPreferences    Code = "INVALID_PREFERENCES"
	CodeInvalidWeekStart      Code = "INVALID_WEEK_START"
	CodeInvalidMealAssignment Code = "INVALID_MEAL_ASSIGNMENT"

	// Week protection errors
	CodeWeekLocked         Code = "WEEK_LOCKED"
	CodeWeekAlreadyStarted Code = "WEEK_ALREADY_STARTED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeEmptyUserID,
		CodeInvalidPreferences,
		CodeInvalidWeekStart,
		CodeInvalidMealAssignment:
		return http.StatusBadRequest
	case CodeInsufficientRecipes:
		return http.StatusUnprocessableEntity
	case CodeWeekLocked, CodeWeekAlreadyStarted:
		return http.StatusForbidden
	case CodeNotFound, CodeNoActivePlan:
		return http.StatusNotFound
	case CodeConcurrentGeneration:
		return http.StatusConflict
	case CodeInvalidRotationState, CodeAlgorithmFault, CodeUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// GetMetadata extracts metadata from an error if present.
// Returns nil if the error is not a domain error or has no metadata.
func GetMetadata(err error) map[string]string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Metadata
	}
	return nil
}
