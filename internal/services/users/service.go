// Package users implements account registration, login and the activity
// views (live users, contributor leaderboard).
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/sriramreddyM/coco-annotator/internal/auth"
	"github.com/sriramreddyM/coco-annotator/internal/db/models"
	"github.com/sriramreddyM/coco-annotator/internal/repository"
	"github.com/sriramreddyM/coco-annotator/internal/services/iam"
)

var (
	ErrRegistrationDisabled = errors.New("registration of new accounts is disabled")
	ErrUsernameTaken        = errors.New("username already exists")
	ErrInvalidCredentials   = errors.New("could not authenticate user")
	ErrPasswordMismatch     = errors.New("password does not match current password")
	ErrMissingCredentials   = errors.New("username and password are required")
)

// Config controls registration and the live window.
type Config struct {
	AllowRegistration bool
	// LiveWindow is how recently, rounded to whole minutes, a user must
	// have been seen to count as live.
	LiveWindow time.Duration
	Now        func() time.Time
}

// Service implements the user namespace.
type Service struct {
	users  repository.UserRepository
	iam    iam.Service
	cfg    Config
	logger *slog.Logger
}

// NewService creates a user service.
func NewService(users repository.UserRepository, iamService iam.Service, cfg Config, logger *slog.Logger) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LiveWindow <= 0 {
		cfg.LiveWindow = 3 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, iam: iamService, cfg: cfg, logger: logger}
}

// RegisterInput is the body of the register endpoint.
type RegisterInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

// LoginResult is a freshly authenticated account with its new session.
type LoginResult struct {
	User         *models.User
	Principal    *iam.Principal
	Session      *models.Session
	SessionToken string
}

// Register creates an account and logs it in. The first account becomes admin.
func (s *Service) Register(ctx context.Context, in RegisterInput, meta iam.SessionMeta) (*LoginResult, error) {
	count, err := s.users.Count(ctx)
	if err != nil {
		return nil, err
	}
	if !s.cfg.AllowRegistration && count != 0 {
		return nil, ErrRegistrationDisabled
	}

	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return nil, ErrMissingCredentials
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !repository.IsNotFound(err) {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     username,
		PasswordHash: hash,
		Email:        in.Email,
		Name:         in.Name,
		IsAdmin:      count == 0,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("register %s: %w", username, err)
	}
	s.logger.InfoContext(ctx, "user registered", "username", user.Username, "admin", user.IsAdmin)

	return s.startSession(ctx, user, meta)
}

// Login verifies the password and starts a cookie session.
func (s *Service) Login(ctx context.Context, username, password string, meta iam.SessionMeta) (*LoginResult, error) {
	user, err := s.verify(ctx, username, password)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, fmt.Sprintf("User %s has LOGIN", user.Username), "username", user.Username)
	return s.startSession(ctx, user, meta)
}

// LoginToken verifies the password, records activity and issues a bearer token.
func (s *Service) LoginToken(ctx context.Context, username, password string) (string, *models.User, error) {
	user, err := s.verify(ctx, username, password)
	if err != nil {
		return "", nil, err
	}
	if err := s.iam.Touch(ctx, s.iam.PrincipalFor(user, iam.MethodToken, "")); err != nil {
		return "", nil, err
	}
	token, err := s.iam.IssueToken(ctx, user)
	if err != nil {
		return "", nil, err
	}
	s.logger.InfoContext(ctx, fmt.Sprintf("User %s has LOGIN", user.Username), "username", user.Username, "method", "token")
	return token, user, nil
}

// Logout revokes the principal's cookie session, if it has one.
func (s *Service) Logout(ctx context.Context, p *iam.Principal) error {
	s.logger.InfoContext(ctx, fmt.Sprintf("User %s has LOGOUT", p.Username()), "username", p.Username())
	if p.SessionID == "" {
		return nil
	}
	return s.iam.RevokeSession(ctx, p.SessionID)
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, p *iam.Principal, current, next string) error {
	if p.IsAnonymous() {
		return iam.ErrAuthenticationRequired
	}
	if err := auth.VerifyPassword(p.User.PasswordHash, current); err != nil {
		return ErrPasswordMismatch
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.users.SetPasswordHash(ctx, p.User.ID, hash); err != nil {
		return err
	}
	p.User.PasswordHash = hash
	return nil
}

// Live touches the caller and counts users seen within the live window.
func (s *Service) Live(ctx context.Context, p *iam.Principal) (int, error) {
	if err := s.iam.Touch(ctx, p); err != nil {
		return 0, err
	}
	return s.LiveCount(ctx)
}

// LiveCount counts users whose last_seen, in either direction from now and
// rounded half-to-even to whole minutes, falls within the live window.
func (s *Service) LiveCount(ctx context.Context) (int, error) {
	now := s.cfg.Now().UTC()
	limit := math.Floor(s.cfg.LiveWindow.Minutes())

	// A difference rounds to at most limit minutes only below limit+0.5.
	candidates, err := s.users.ListSeenSince(ctx, now.Add(-s.cfg.LiveWindow-30*time.Second))
	if err != nil {
		return 0, err
	}

	live := 0
	for _, u := range candidates {
		if u.LastSeen == nil {
			continue
		}
		diff := now.Sub(*u.LastSeen)
		if diff < 0 {
			diff = -diff
		}
		if math.RoundToEven(diff.Minutes()) <= limit {
			live++
		}
	}
	return live, nil
}

// Leaderboard totals the crowd-sourcing counters of every contributor.
type Leaderboard struct {
	Images          int
	Annotations     int
	ImageChart      map[string]int
	AnnotationChart map[string]int
}

// Leaderboard aggregates cs_images and cs_annotations. Users with a zero
// counter are left out of that chart.
func (s *Service) Leaderboard(ctx context.Context) (*Leaderboard, error) {
	all, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	lb := &Leaderboard{ImageChart: map[string]int{}, AnnotationChart: map[string]int{}}
	for _, u := range all {
		if u.CSImages != 0 {
			lb.ImageChart[u.Username] = u.CSImages
			lb.Images += u.CSImages
		}
		if u.CSAnnotations != 0 {
			lb.AnnotationChart[u.Username] = u.CSAnnotations
			lb.Annotations += u.CSAnnotations
		}
	}
	return lb, nil
}

func (s *Service) verify(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) startSession(ctx context.Context, user *models.User, meta iam.SessionMeta) (*LoginResult, error) {
	session, token, err := s.iam.CreateSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	principal := s.iam.PrincipalFor(user, iam.MethodCookie, session.ID)
	if err := s.iam.Touch(ctx, principal); err != nil {
		return nil, err
	}
	return &LoginResult{User: user, Principal: principal, Session: session, SessionToken: token}, nil
}
