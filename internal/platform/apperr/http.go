package apperr

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Body is the JSON error envelope returned by every endpoint.
type Body struct {
	Error         string                 `json:"error"`
	Reason        Reason                 `json:"reason"`
	Hint          string                 `json:"hint,omitempty"`
	CurrentStatus string                 `json:"current_status,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
	RequestID     string                 `json:"request_id,omitempty"`
}

// FromHTTPError converts an echo error (routing, binding, middleware) into the
// application taxonomy.
func FromHTTPError(he *echo.HTTPError) *Error {
	msg := fmt.Sprintf("%v", he.Message)
	switch he.Code {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		return New(KindValidation, ReasonValidationFailed, msg)
	case http.StatusUnauthorized:
		return New(KindUnauthorized, ReasonUnauthorized, msg)
	case http.StatusForbidden:
		return New(KindForbidden, ReasonForbiddenActor, msg)
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return New(KindNotFound, ReasonRouteNotFound, msg)
	case http.StatusConflict:
		return New(KindConflict, ReasonInvalidTransition, msg)
	case http.StatusTooManyRequests:
		return ErrRateLimited.WithMessage("%s", msg)
	default:
		return Internal(msg, he.Internal)
	}
}

// HTTPErrorHandler renders errors as Body. Internal errors are logged with their
// cause and shown to the client as a generic message.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		var ae *Error
		if he, ok := err.(*echo.HTTPError); ok {
			ae = FromHTTPError(he)
			status = he.Code
		} else if e, ok := As(err); ok {
			ae = e
			status = e.Status()
		} else {
			ae = Internal("internal server error", err)
		}

		body := Body{
			Error:   ae.Message,
			Reason:  ae.Reason,
			Hint:    ae.Hint,
			Details: ae.Details,
		}
		if cs, ok := ae.Details["current_status"].(string); ok {
			body.CurrentStatus = cs
		}
		if rid, ok := c.Get("request_id").(string); ok {
			body.RequestID = rid
		}
		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("request_id", body.RequestID).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
			body.Error = "internal server error"
			body.Details = nil
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Error().Err(err).Msg("failed to write error response")
		}
	}
}
