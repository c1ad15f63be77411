package middleware

import (
	"log/slog"
	"net/http"

	"github.com/sriramreddyM/coco-annotator/internal/services/iam"
)

// MultiAuthMiddleware resolves every request to a Principal.
//
// The IAM service tries the session cookie, the Bearer token and the API
// key in that order and falls back to the Anonymous Principal when no
// credential material is present. The resolved principal is stored in the
// request context. A token that fails verification, or a verified token
// naming no account, is answered with 401; store failures with 500.
func MultiAuthMiddleware(iamService iam.Service, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			principal, err := iamService.AuthenticateRequest(ctx, iam.NewAuthRequest(r))
			if err != nil {
				if iam.IsAuthenticationError(err) {
					logger.InfoContext(ctx, "authentication failed",
						"method", r.Method, "path", r.URL.Path, "error", err)
					writeError(w, http.StatusUnauthorized, err.Error())
					return
				}
				logger.ErrorContext(ctx, "credential resolution failed",
					"method", r.Method, "path", r.URL.Path, "error", err)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(iam.WithPrincipal(ctx, principal)))
		})
	}
}
