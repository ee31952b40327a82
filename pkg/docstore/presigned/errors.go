package presigned

import (
	"errors"
	"net/http"
)

// Error is a rejected signature check. Status is the HTTP status the
// download route answers with.
type Error struct {
	Status int
	Code   string
	msg    string
}

func (e *Error) Error() string {
	return "presigned: " + e.msg
}

var (
	ErrNoSecretKey       = &Error{http.StatusServiceUnavailable, "signing_unavailable", "no secret key configured"}
	ErrMissingSignature  = &Error{http.StatusUnauthorized, "missing_signature", "missing signature parameter"}
	ErrMissingExpiration = &Error{http.StatusUnauthorized, "missing_expires", "missing expires parameter"}
	ErrInvalidExpiration = &Error{http.StatusBadRequest, "invalid_expires", "invalid expires parameter"}
	ErrExpired           = &Error{http.StatusForbidden, "expired", "URL has expired"}
	ErrInvalidSignature  = &Error{http.StatusForbidden, "invalid_signature", "invalid signature"}
)

// StatusOf maps a validation error to its HTTP status and error code.
// Unknown errors are treated as forbidden.
func StatusOf(err error) (int, string) {
	var e *Error
	if errors.As(err, &e) {
		return e.Status, e.Code
	}
	return http.StatusForbidden, "forbidden"
}

// IsAuthError reports whether err rejects the caller's URL, as opposed to
// the server lacking a signing key
func IsAuthError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e != ErrNoSecretKey
}
