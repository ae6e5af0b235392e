// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/ballot-ledger/internal/i18n"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/candidates"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/challenge"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/credential"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/ledger"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/session"
	"github.com/labstack/echo/v4"
)

// APIError is the body of every error response.
type APIError struct {
	Code    string       `json:"error"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
}

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorCodes maps service errors to a status and a stable code. Order
// matters: the first match wins.
var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{credential.ErrInvalidFormat, http.StatusUnprocessableEntity, "invalid_format"},
	{credential.ErrDuplicateIdentity, http.StatusConflict, "duplicate_identity"},
	{credential.ErrAlreadyVerified, http.StatusConflict, "already_verified"},
	{credential.ErrNotFound, http.StatusNotFound, "unknown_identity"},
	{challenge.ErrUnknownIdentity, http.StatusNotFound, "unknown_identity"},
	{challenge.ErrAlreadyVerified, http.StatusConflict, "already_verified"},
	{challenge.ErrNoActiveChallenge, http.StatusNotFound, "no_active_challenge"},
	{challenge.ErrExpired, http.StatusBadRequest, "challenge_expired"},
	{challenge.ErrMismatch, http.StatusBadRequest, "challenge_mismatch"},
	{challenge.ErrThrottled, http.StatusTooManyRequests, "throttled"},
	{challenge.ErrResendTooSoon, http.StatusTooManyRequests, "resend_too_soon"},
	{session.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{session.ErrNotVerified, http.StatusForbidden, "not_verified"},
	{session.ErrExpired, http.StatusUnauthorized, "session_expired"},
	{session.ErrUnknown, http.StatusUnauthorized, "unauthenticated"},
	{session.ErrForbidden, http.StatusForbidden, "forbidden"},
	{ledger.ErrInvalidCandidate, http.StatusUnprocessableEntity, "invalid_candidate"},
	{ledger.ErrAlreadyVoted, http.StatusConflict, "already_voted"},
	{ledger.ErrNotEligible, http.StatusForbidden, "not_eligible"},
	{ledger.ErrTransient, http.StatusServiceUnavailable, "transient"},
	{candidates.ErrNotFound, http.StatusNotFound, "not_found"},
	{candidates.ErrUnknownAction, http.StatusNotFound, "not_found"},
	{candidates.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
}

// classify returns the status and code for err. Unknown errors are
// internal.
func classify(err error) (int, string) {
	for _, m := range errorCodes {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		switch {
		case he.Code == http.StatusNotFound || he.Code == http.StatusMethodNotAllowed:
			return he.Code, "not_found"
		case he.Code == http.StatusUnauthorized:
			return he.Code, "unauthenticated"
		case he.Code == http.StatusForbidden:
			return he.Code, "forbidden"
		case he.Code < http.StatusInternalServerError:
			return he.Code, "bad_request"
		}
	}

	return http.StatusInternalServerError, "internal_error"
}

// ErrorHandler renders every error returned by a handler or middleware as an
// APIError. Internal details are logged, never sent.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	ctx := c.Request().Context()
	status, code := classify(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		slog.ErrorContext(ctx, "request_failed", "path", c.Path(), "error", err)
	}

	body := APIError{Code: code, Message: i18n.T(ctx, code)}

	var verr *credential.ValidationError
	if errors.As(err, &verr) {
		for _, fe := range verr.Errors {
			body.Fields = append(body.Fields, FieldError{
				Field:   fe.Field,
				Code:    fe.Code,
				Message: i18n.T(ctx, fe.Code),
			})
		}
	}

	var renderErr error
	if c.Request().Method == http.MethodHead {
		renderErr = c.NoContent(status)
	} else {
		renderErr = c.JSON(status, body)
	}
	if renderErr != nil {
		slog.ErrorContext(ctx, "failed to render error", "error", renderErr)
	}
}
