package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Envelope is the body of every API response. Status mirrors the HTTP status.
type Envelope struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ListData wraps a collection together with its size before any limit.
type ListData struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_ONEOF"`
	Field   string                 `json:"field,omitempty" example:"sort"`
	Message string                 `json:"message,omitempty" example:"sort must be one of: symbol, score"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// JSON writes data inside the envelope.
func JSON(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Envelope{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

func OK(c echo.Context, data interface{}) error {
	return JSON(c, http.StatusOK, data)
}

func List(c echo.Context, rows interface{}, total int64) error {
	return JSON(c, http.StatusOK, &ListData{Rows: rows, Total: total})
}

// Invalid answers 400 with the rejected fields.
func Invalid(c echo.Context, errs ...ValidationError) error {
	return JSON(c, http.StatusBadRequest, errs)
}

// Fail writes err as a one-element error list under its own status. Errors
// that are not an AppError never leak their text and answer 500.
func Fail(c echo.Context, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = InternalError("something went wrong")
	}
	return JSON(c, appErr.Status, []*AppError{appErr})
}
