package iam

import (
	"errors"

	"github.com/sriramreddyM/coco-annotator/internal/auth"
)

var (
	// ErrAuthenticationRequired is returned when an endpoint needs a login and
	// the request resolved to the Anonymous Principal.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrTokenExpired and ErrTokenInvalid are the token codec's failure kinds.
	ErrTokenExpired = auth.ErrTokenExpired
	ErrTokenInvalid = auth.ErrTokenInvalid

	// ErrCredentialNotFound is returned when a verified token names no stored account.
	ErrCredentialNotFound = errors.New("credential does not match any account")

	// ErrPermissionDenied is returned when a capability check fails.
	ErrPermissionDenied = errors.New("permission denied")
)

// IsAuthenticationError reports whether err should be surfaced as 401.
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrAuthenticationRequired) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenInvalid) ||
		errors.Is(err, ErrCredentialNotFound)
}
