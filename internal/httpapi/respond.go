package httpapi

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/mealcycle/mealcycle/internal/errors"
)

// errorBody is the JSON error envelope. Details carries code-specific fields
// such as current/required counts for insufficient favorites or the retry
// hint for concurrent generation.
type errorBody struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)

	var body errorBody
	body.Error.Code = string(code)
	body.Error.Details = apperrors.GetMetadata(err)
	if code == apperrors.CodeUnknown {
		// Internal details stay out of responses.
		body.Error.Message = "internal error"
	} else {
		body.Error.Message = err.Error()
	}
	if code == apperrors.CodeConcurrentGeneration {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, code.HTTPStatus(), body)
}
