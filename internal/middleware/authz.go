package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/sriramreddyM/coco-annotator/internal/services/iam"
)

// RequireAuthentication rejects requests resolved to the Anonymous Principal
// with 401. When loginDisabled is set every request passes through.
func RequireAuthentication(loginDisabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !loginDisabled {
				p, ok := iam.PrincipalFrom(r.Context())
				if !ok || p.IsAnonymous() {
					writeError(w, http.StatusUnauthorized, iam.ErrAuthenticationRequired.Error())
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Message: message})
}
