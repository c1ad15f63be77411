package server

import (
	"log/slog"
	"net/http"

	"github.com/sriramreddyM/coco-annotator/internal/auth"
	"github.com/sriramreddyM/coco-annotator/internal/services/iam"
	"github.com/sriramreddyM/coco-annotator/internal/services/users"
)

// UserHandlers serves the /user namespace.
type UserHandlers struct {
	service       UserService
	loginDisabled bool
	logger        *slog.Logger
}

// NewUserHandlers creates the user handler set.
func NewUserHandlers(service UserService, loginDisabled bool, logger *slog.Logger) *UserHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandlers{service: service, loginDisabled: loginDisabled, logger: logger}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type passwordRequest struct {
	Password    string `json:"password"`
	NewPassword string `json:"new_password"`
}

func principal(r *http.Request) *iam.Principal {
	p, _ := iam.PrincipalFrom(r.Context())
	return p
}

func sessionMeta(r *http.Request) iam.SessionMeta {
	return iam.SessionMeta{UserAgent: r.UserAgent(), IPAddress: r.RemoteAddr}
}

// Me handles GET /user/
func (h *UserHandlers) Me(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if h.loginDisabled {
		writeJSON(w, http.StatusOK, p)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": p})
}

// ChangePassword handles POST /user/password
func (h *UserHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.service.ChangePassword(r.Context(), principal(r), req.Password, req.NewPassword); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Register handles POST /user/register
func (h *UserHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req users.RegisterInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.service.Register(r.Context(), req, sessionMeta(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.startSession(w, r, res)
}

// Login handles POST /user/login
func (h *UserHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.service.Login(r.Context(), req.Username, req.Password, sessionMeta(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.startSession(w, r, res)
}

func (h *UserHandlers) startSession(w http.ResponseWriter, r *http.Request, res *users.LoginResult) {
	http.SetCookie(w, auth.NewSessionCookie(r, res.SessionToken, res.Session.ExpiresAt))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": res.User})
}

// LoginToken handles POST /user/login/token
func (h *UserHandlers) LoginToken(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	token, _, err := h.service.LoginToken(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Logout handles GET /user/logout
func (h *UserHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), principal(r)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	http.SetCookie(w, auth.ClearSessionCookie(r))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Live handles GET /user/live
func (h *UserHandlers) Live(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.Live(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "live_count": n})
}

// Leaderboard handles GET /user/leaderboard
func (h *UserHandlers) Leaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := h.service.Leaderboard(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"leaderboard": map[string]int{
			"images":      lb.Images,
			"annotations": lb.Annotations,
		},
		"image_chart":      lb.ImageChart,
		"annotation_chart": lb.AnnotationChart,
	})
}
