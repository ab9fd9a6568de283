package http

import (
	"fmt"
	"net/http"
)

// AppError is an error that knows the HTTP status and machine code it is
// reported with. Err stays server side.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func newAppError(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithError attaches the underlying cause.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func BadRequestError(message string) *AppError {
	return newAppError(http.StatusBadRequest, "ERR_BAD_REQUEST", message)
}

func UnauthorizedError(message string) *AppError {
	return newAppError(http.StatusUnauthorized, "ERR_UNAUTHORIZED", message)
}

func NotFoundError(message string) *AppError {
	return newAppError(http.StatusNotFound, "ERR_NOT_FOUND", message)
}

func ConflictError(message string) *AppError {
	return newAppError(http.StatusConflict, "ERR_CONFLICT", message)
}

func InternalError(message string) *AppError {
	return newAppError(http.StatusInternalServerError, "ERR_INTERNAL", message)
}
