package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hatchery-io/hatchery/internal/core"
)

// ErrorResponse is the wire shape of every error this API returns.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a structured error response. Non-AppError values
// collapse to HATCH_INTERNAL without leaking their message.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *core.AppError
	if !errors.As(err, &appErr) {
		appErr = core.NewAppError(core.ErrInternal, "internal server error")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Code.HTTPStatus())
	json.NewEncoder(w).Encode(ErrorResponse{
		Code:    string(appErr.Code),
		Message: appErr.Message,
	})
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteAccepted writes a 202 Accepted response with a task reference.
func WriteAccepted(w http.ResponseWriter, taskID string) {
	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"task_id":     taskID,
		"status":      "PENDING",
		"status_href": "/v1/tasks/" + taskID,
	})
}
