package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = newValidator()

// newValidator reports fields under the key the client sent them with, so a
// missing body field reads "auth_code" rather than "AuthCode".
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"query", "param", "json", "form"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return ""
	})
	return v
}

// Bind decodes the request into req, fills `default` tags left empty and
// validates the result. It returns nil when req is usable.
func Bind(c echo.Context, req interface{}) []ValidationError {
	if err := c.Bind(req); err != nil {
		return bindErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return bindErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return bindErrors(err)
	}
	return nil
}

func bindErrors(err error) []ValidationError {
	var fields validator.ValidationErrors
	if errors.As(err, &fields) {
		out := make([]ValidationError, 0, len(fields))
		for _, fe := range fields {
			out = append(out, fieldError(fe))
		}
		return out
	}

	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprint(he.Message)
	}
	return []ValidationError{{Code: "ERR_MALFORMED", Message: msg}}
}

func fieldError(fe validator.FieldError) ValidationError {
	field, param := fe.Field(), fe.Param()
	ve := ValidationError{
		Code:  "ERR_" + strings.ToUpper(fe.Tag()),
		Field: field,
	}

	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}
	switch fe.Tag() {
	case "required":
		ve.Message = field + " is required"
	case "oneof":
		opts := strings.Fields(param)
		ve.Message = fmt.Sprintf("%s must be one of: %s", field, strings.Join(opts, ", "))
		ve.Params = map[string]interface{}{"options": opts}
	case "min", "gte":
		ve.Message = fmt.Sprintf("%s must be at least %s%s", field, param, unit)
		ve.Params = map[string]interface{}{"min": param}
	case "max", "lte":
		ve.Message = fmt.Sprintf("%s must be at most %s%s", field, param, unit)
		ve.Params = map[string]interface{}{"max": param}
	default:
		ve.Message = fmt.Sprintf("%s failed %s", field, fe.Tag())
		if param != "" {
			ve.Params = map[string]interface{}{"value": param}
		}
	}
	return ve
}
