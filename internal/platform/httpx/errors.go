// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/adminory/adminory/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status, title := Classify(err)
	detail := ""
	if status < http.StatusInternalServerError {
		detail = err.Error()
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	Problem(w, status, title, detail)
}

// Classify returns the status code and problem title for err.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrInvalidToken),
		errors.Is(err, shared.ErrRevokedToken),
		errors.Is(err, shared.ErrPrincipalNotFound),
		errors.Is(err, shared.ErrInvalidCredentials),
		errors.Is(err, shared.ErrUnauthenticated):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, shared.ErrPrincipalInactive), errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, shared.ErrEmailTaken), errors.Is(err, shared.ErrConflict):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrOneTimeTokenInvalid),
		errors.Is(err, shared.ErrIncorrectPassword):
		return http.StatusBadRequest, "Bad Request"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}
