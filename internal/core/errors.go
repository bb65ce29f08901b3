package core

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrBadRequest      ErrorCode = "HATCH_BAD_REQUEST"
	ErrNotFound        ErrorCode = "HATCH_NOT_FOUND"
	ErrConflict        ErrorCode = "HATCH_CONFLICT"
	ErrConfiguration   ErrorCode = "HATCH_CONFIGURATION"
	ErrUnknownProvider ErrorCode = "HATCH_UNKNOWN_PROVIDER"
	ErrConnectivity    ErrorCode = "HATCH_CONNECTIVITY"
	ErrInvalidState    ErrorCode = "HATCH_INVALID_STATE"
	ErrNaming          ErrorCode = "HATCH_NAMING"
	ErrInternal        ErrorCode = "HATCH_INTERNAL"
)

// HTTPStatus returns the HTTP status code for this error code.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	case ErrBadRequest, ErrNaming, ErrUnknownProvider:
		return 400
	case ErrNotFound:
		return 404
	case ErrConflict:
		return 409
	case ErrInvalidState, ErrConfiguration:
		return 412
	case ErrConnectivity:
		return 502
	default:
		return 500
	}
}

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAppError(code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// CodeOf extracts the error code from err, or ErrInternal for plain errors.
func CodeOf(err error) ErrorCode {
	var app *AppError
	if errors.As(err, &app) {
		return app.Code
	}
	return ErrInternal
}
