package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cimillas/library-lending/internal/domain"
)

const (
	codeMethodNotAllowed   = "method_not_allowed"
	codeNotFound           = "not_found"
	codeInvalidRequestBody = "invalid_request_body"
	codeValidationFailed   = "validation_failed"
	codeUnauthenticated    = "unauthenticated"
	codeInternalError      = "internal_error"

	retryAfterSeconds = "1"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, errorResponse{Error: msg, Code: code})
}

// statusFor maps a failure classification to an HTTP status.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindInvalid:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindBusinessRule:
		if errors.Is(err, domain.ErrLoanLimitExceeded) {
			return http.StatusTooManyRequests
		}
		return http.StatusConflict
	case domain.KindUnauthorized:
		return http.StatusForbidden
	case domain.KindDependencyUnavailable, domain.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail renders err as {"error","code"}. Internal failures are logged with
// the request id and their detail is withheld from the client.
func (s *Server) fail(c echo.Context, err error) error {
	var re *requestError
	if errors.As(err, &re) {
		return writeError(c, http.StatusBadRequest, re.code, re.msg)
	}

	status := statusFor(err)
	kind := domain.KindOf(err)

	if kind == domain.KindTransient {
		c.Response().Header().Set("Retry-After", retryAfterSeconds)
	}

	switch kind {
	case domain.KindUnexpected:
		s.logger.ErrorContext(c.Request().Context(), "request failed",
			slog.String("req_id", requestID(c)), slog.String("path", c.Path()), slog.Any("err", err))
		return writeError(c, status, codeInternalError, "internal error")
	case domain.KindIllegalState:
		s.logger.ErrorContext(c.Request().Context(), "consistency violation",
			slog.String("req_id", requestID(c)), slog.String("path", c.Path()), slog.Any("err", err))
	}

	var de *domain.Error
	if errors.As(err, &de) {
		return writeError(c, status, de.Code, de.Msg)
	}
	return writeError(c, status, codeInternalError, "internal error")
}

// handleEchoError renders routing, binding and middleware errors in the same
// JSON shape as domain failures.
func (s *Server) handleEchoError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if !errors.As(err, &he) {
		_ = s.fail(c, err)
		return
	}

	var out error
	switch he.Code {
	case http.StatusNotFound:
		out = writeError(c, he.Code, codeNotFound, "not found")
	case http.StatusMethodNotAllowed:
		out = writeError(c, he.Code, codeMethodNotAllowed, "method not allowed")
	case http.StatusUnauthorized:
		out = writeError(c, he.Code, codeUnauthenticated, "missing or invalid token")
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		out = writeError(c, he.Code, codeInvalidRequestBody, "invalid request body")
	default:
		if he.Code >= http.StatusInternalServerError {
			s.logger.ErrorContext(c.Request().Context(), "request failed",
				slog.String("req_id", requestID(c)), slog.Any("err", err))
		}
		out = writeError(c, he.Code, codeInternalError, http.StatusText(he.Code))
	}
	if out != nil {
		s.logger.WarnContext(c.Request().Context(), "failed to write error response", slog.Any("err", out))
	}
}
