package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sriramreddyM/coco-annotator/internal/services/annotation"
	"github.com/sriramreddyM/coco-annotator/internal/services/iam"
	"github.com/sriramreddyM/coco-annotator/internal/services/images"
	"github.com/sriramreddyM/coco-annotator/internal/services/imaging"
	"github.com/sriramreddyM/coco-annotator/internal/services/users"
)

var (
	// ErrInvalidBody is returned when a request body is not the expected JSON.
	ErrInvalidBody = errors.New("invalid request body")

	// ErrInvalidParameter is returned when a query or form parameter has the wrong type.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// errorMapping is the response of a known service error.
type errorMapping struct {
	err     error
	status  int
	message string
}

// errorMappings is checked in order with errors.Is.
var errorMappings = []errorMapping{
	{users.ErrRegistrationDisabled, http.StatusBadRequest, "Registration of new accounts is disabled."},
	{users.ErrUsernameTaken, http.StatusBadRequest, "Username already exists."},
	{users.ErrInvalidCredentials, http.StatusBadRequest, "Could not authenticate user"},
	{users.ErrPasswordMismatch, http.StatusBadRequest, "Password does not match current password"},
	{users.ErrMissingCredentials, http.StatusBadRequest, "Username and password are required"},

	{images.ErrInvalidImageID, http.StatusBadRequest, "Invalid image id"},
	{images.ErrDatasetNotFound, http.StatusBadRequest, "dataset does not exist"},
	{images.ErrFileExists, http.StatusBadRequest, "file already exists"},
	{images.ErrUploadNotPermitted, http.StatusBadRequest, "Upload not permitted"},
	{images.ErrInvalidFileName, http.StatusBadRequest, "Invalid file name"},
	{imaging.ErrUnsupportedImage, http.StatusBadRequest, "Unsupported or corrupt image"},

	{annotation.ErrInvalidImageIDs, http.StatusBadRequest, "Invalid image ids"},
	{annotation.ErrCopySelf, http.StatusBadRequest, "Cannot copy self"},
	{annotation.ErrSizeMismatch, http.StatusBadRequest, "Image sizes do not match"},

	{ErrInvalidBody, http.StatusBadRequest, "Invalid request body"},
	{ErrInvalidParameter, http.StatusBadRequest, ""},

	{iam.ErrPermissionDenied, http.StatusForbidden, "You do not have permission to perform this action"},
	{iam.ErrAuthenticationRequired, http.StatusUnauthorized, "Authentication required"},
	{iam.ErrTokenExpired, http.StatusUnauthorized, "Token has expired"},
	{iam.ErrTokenInvalid, http.StatusUnauthorized, "Token is invalid"},
	{iam.ErrCredentialNotFound, http.StatusUnauthorized, "Credential does not match any account"},
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with {"success": false, "message": ...}. Unknown
// errors are logged and reported as 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			message := m.message
			if message == "" {
				message = err.Error()
			}
			writeJSON(w, m.status, errorResponse{Message: message})
			return
		}
	}
	logger.ErrorContext(r.Context(), "request failed",
		"method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal server error"})
}

// decodeJSON reads an optional JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return errors.Join(ErrInvalidBody, err)
}
