package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	annotatormiddleware "github.com/sriramreddyM/coco-annotator/internal/middleware"
	"github.com/sriramreddyM/coco-annotator/internal/services/iam"
	"github.com/sriramreddyM/coco-annotator/internal/telemetry"
)

// RouterOptions controls the construction of the annotator HTTP router.
// Namespaces whose service is nil are not mounted.
type RouterOptions struct {
	IAMService  iam.Service
	Users       UserService
	Images      ImageService
	Annotations AnnotationService

	// APIPrefix is the path the namespaces are mounted under. Empty means "/api";
	// config validation rejects a root prefix.
	APIPrefix string
	// LoginDisabled lets anonymous callers reach endpoints that require a login.
	LoginDisabled bool

	Logger        *slog.Logger
	ServerMetrics *telemetry.ServerMetrics
	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
	ExtraRoutes   func(chi.Router)
}

// DefaultCORSOptions returns the shared development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:8080",
			"http://127.0.0.1:8080",
		},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// CORSOptionsFor returns the default policy restricted to origins, or the
// default policy unchanged when origins is empty.
func CORSOptionsFor(origins []string) cors.Options {
	opts := DefaultCORSOptions()
	if len(origins) > 0 {
		opts.AllowedOrigins = origins
	}
	return opts
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles a chi.Router with shared middleware, CORS policy, and
// the annotator namespaces mounted under the API prefix.
func NewRouter(opts RouterOptions) chi.Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefix := opts.APIPrefix
	if prefix == "" {
		prefix = "/api"
	}

	r := chi.NewRouter()

	// Baseline middleware shared across entrypoints.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(annotatormiddleware.RequestLogger(logger, opts.ServerMetrics))
	r.Use(middleware.Recoverer)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	if opts.IAMService != nil {
		requireLogin := annotatormiddleware.RequireAuthentication(opts.LoginDisabled)

		r.Route(prefix, func(api chi.Router) {
			api.Use(annotatormiddleware.MultiAuthMiddleware(opts.IAMService, logger))

			if opts.Users != nil {
				MountUserHandlers(api, NewUserHandlers(opts.Users, opts.LoginDisabled, logger), requireLogin)
			} else {
				logger.Warn("user namespace not mounted: no user service")
			}
			if opts.Images != nil && opts.Annotations != nil {
				MountImageHandlers(api, NewImageHandlers(opts.Images, opts.Annotations, logger), requireLogin)
			} else {
				logger.Warn("image namespace not mounted: image or annotation service missing")
			}
		})
	} else {
		logger.Warn("API namespaces not mounted: no IAM service")
	}

	if opts.ExtraRoutes != nil {
		opts.ExtraRoutes(r)
	}

	return r
}

// MountUserHandlers mounts the /user namespace.
func MountUserHandlers(r chi.Router, h *UserHandlers, requireLogin func(http.Handler) http.Handler) {
	r.Route("/user", func(ur chi.Router) {
		ur.Post("/register", h.Register)
		ur.Post("/login", h.Login)
		ur.Post("/login/token", h.LoginToken)
		ur.Get("/leaderboard", h.Leaderboard)

		ur.Group(func(ar chi.Router) {
			ar.Use(requireLogin)
			ar.Get("/", h.Me)
			ar.Post("/password", h.ChangePassword)
			ar.Get("/logout", h.Logout)
			ar.Get("/live", h.Live)
		})
	})
}

// MountImageHandlers mounts the /image namespace.
func MountImageHandlers(r chi.Router, h *ImageHandlers, requireLogin func(http.Handler) http.Handler) {
	r.Route("/image", func(ir chi.Router) {
		ir.Post("/", h.Upload)
		ir.Get("/{id}", h.Get)
		ir.Put("/{id}", h.Update)
		ir.Post("/flag", h.Flag)

		ir.Group(func(ar chi.Router) {
			ar.Use(requireLogin)
			ar.Get("/", h.List)
			ar.Delete("/{id}", h.Delete)
			ar.Get("/{id}/coco", h.COCO)
			ar.Post("/copy/{from}/{to}/annotations", h.CopyAnnotations)
			ar.Post("/approve", h.Approve)
		})
	})
}

// NewH2CHandler wraps the router with an h2c server to provide HTTP/2 over
// cleartext.
func NewH2CHandler(opts RouterOptions) (http.Handler, error) {
	router := NewRouter(opts)
	return h2c.NewHandler(router, &http2.Server{}), nil
}
