package iam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/casbin/casbin/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sriramreddyM/coco-annotator/internal/auth"
	"github.com/sriramreddyM/coco-annotator/internal/config"
	"github.com/sriramreddyM/coco-annotator/internal/db/models"
	"github.com/sriramreddyM/coco-annotator/internal/repository"
	"github.com/sriramreddyM/coco-annotator/internal/telemetry"
)

const tracerName = "annotator/services/iam"

// iamService implements the Service interface.
type iamService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	codec    *auth.TokenCodec

	policy    Policy
	anonymous *Principal

	authenticators []Authenticator

	sessionTTL time.Duration
	now        func() time.Time
	metrics    *telemetry.AuthMetrics
	logger     *slog.Logger
}

// IAMServiceDependencies contains all dependencies for IAM service construction.
type IAMServiceDependencies struct {
	Users    repository.UserRepository
	Sessions repository.SessionRepository
	Codec    *auth.TokenCodec

	// Enforcer backs the default authenticated-principal policy. Ignored when Policy is set.
	Enforcer casbin.IEnforcer
	Policy   Policy

	Metrics *telemetry.AuthMetrics
	Logger  *slog.Logger
}

// IAMServiceConfig contains configuration for IAM service construction.
type IAMServiceConfig struct {
	SessionTTL      time.Duration
	AnonymousAccess config.AnonymousAccess

	// Now overrides the clock in tests.
	Now func() time.Time
}

// NewIAMService creates a new IAM service with all dependencies.
func NewIAMService(deps IAMServiceDependencies, cfg IAMServiceConfig) (Service, error) {
	if deps.Users == nil || deps.Sessions == nil {
		return nil, errors.New("iam: user and session repositories are required")
	}
	if deps.Codec == nil {
		return nil, errors.New("iam: token codec is required")
	}
	policy := deps.Policy
	if policy == nil {
		if deps.Enforcer == nil {
			return nil, errors.New("iam: either a policy or a casbin enforcer is required")
		}
		policy = NewCasbinPolicy(deps.Enforcer)
	}
	if cfg.SessionTTL <= 0 {
		return nil, errors.New("iam: session ttl must be positive")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	svc := &iamService{
		users:      deps.Users,
		sessions:   deps.Sessions,
		codec:      deps.Codec,
		policy:     policy,
		anonymous:  NewAnonymousPrincipal(AnonymousPolicy(cfg.AnonymousAccess)),
		sessionTTL: cfg.SessionTTL,
		now:        now,
		metrics:    deps.Metrics,
		logger:     logger,
	}

	// Authenticator priority:
	//  1. SessionAuthenticator (annotator.session cookie)
	//  2. TokenAuthenticator (Authorization: Bearer header)
	//  3. APIKeyAuthenticator (api_key query parameter)
	svc.authenticators = []Authenticator{
		NewSessionAuthenticator(deps.Sessions, now),
		NewTokenAuthenticator(deps.Users, deps.Codec),
		NewAPIKeyAuthenticator(deps.Users),
	}

	return svc, nil
}

// =========================================================================
// Authentication (Request Path)
// =========================================================================

// AuthenticateRequest tries all registered authenticators in order.
func (s *iamService) AuthenticateRequest(ctx context.Context, req AuthRequest) (*Principal, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.AuthenticateRequest",
		attribute.Int("authenticator_count", len(s.authenticators)),
	)
	defer span.End()

	var deferred error
	var deferredMethod Method
	for i, authenticator := range s.authenticators {
		principal, err := authenticator.Authenticate(ctx, req)
		if err != nil {
			if deferred == nil && isTokenFailure(err) {
				// Keep going: a later transport may still identify the caller.
				deferred, deferredMethod = err, authenticator.Method()
				telemetry.AddEvent(span, "authentication.deferred",
					attribute.Int("authenticator_index", i),
					attribute.String("error", err.Error()),
				)
				continue
			}
			telemetry.AddEvent(span, "authentication.failed",
				attribute.Int("authenticator_index", i),
				attribute.String("error", err.Error()),
			)
			telemetry.RecordError(span, err)
			s.recordAuth(ctx, authenticator.Method(), false, start)
			return nil, err
		}
		if principal != nil {
			principal.policy = s.policy
			span.SetAttributes(
				attribute.String(telemetry.AttrPrincipalID, principal.ID()),
				attribute.String(telemetry.AttrPrincipalKind, string(principal.Kind)),
				attribute.String(telemetry.AttrPrincipalMethod, string(principal.Method)),
				attribute.Int("authenticator_index", i),
			)
			telemetry.AddEvent(span, "authentication.succeeded",
				attribute.String("principal_id", principal.ID()),
				attribute.Int("authenticator_index", i),
			)
			s.recordAuth(ctx, principal.Method, true, start)
			return principal, nil
		}
	}

	if deferred != nil {
		telemetry.RecordError(span, deferred)
		s.recordAuth(ctx, deferredMethod, false, start)
		return nil, deferred
	}

	telemetry.AddEvent(span, "authentication.no_credentials")
	span.SetAttributes(attribute.String(telemetry.AttrPrincipalKind, string(KindAnonymous)))
	return s.anonymous, nil
}

func isTokenFailure(err error) bool {
	return errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenInvalid)
}

func (s *iamService) recordAuth(ctx context.Context, method Method, success bool, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordAuth(ctx, string(method), success, float64(time.Since(start))/float64(time.Millisecond))
}

func (s *iamService) Anonymous() *Principal {
	return s.anonymous
}

func (s *iamService) PrincipalFor(user *models.User, method Method, sessionID string) *Principal {
	return NewUserPrincipal(user, method, sessionID, s.policy)
}

// =========================================================================
// Authorization
// =========================================================================

func (s *iamService) Authorize(ctx context.Context, p *Principal, action string, res Resource) error {
	_, span := telemetry.StartSpan(ctx, tracerName, "iam.Authorize")
	defer span.End()

	allowed, err := p.Allowed(action, res)
	span.SetAttributes(policyAttrs(action, res, allowed)...)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("authorize %s on %s: %w", action, res.Kind, err)
	}
	if !allowed {
		return fmt.Errorf("%w: %s may not %s this %s", ErrPermissionDenied, p.Username(), action, res.Kind)
	}
	return nil
}

// =========================================================================
// Activity and Sessions
// =========================================================================

func (s *iamService) Touch(ctx context.Context, p *Principal) error {
	if p.IsAnonymous() {
		return nil
	}
	now := s.now().UTC()
	if err := s.users.TouchLastSeen(ctx, p.User.ID, now); err != nil {
		return fmt.Errorf("touch %s: %w", p.User.Username, err)
	}
	p.User.LastSeen = &now
	return nil
}

func (s *iamService) CreateSession(ctx context.Context, user *models.User, meta SessionMeta) (*models.Session, string, error) {
	token, hash, err := auth.GenerateSessionToken()
	if err != nil {
		return nil, "", err
	}

	now := s.now().UTC()
	session := &models.Session{
		UserID:     user.ID,
		TokenHash:  hash,
		ExpiresAt:  now.Add(s.sessionTTL),
		CreatedAt:  now,
		LastUsedAt: now,
	}
	if meta.UserAgent != "" {
		session.UserAgent = &meta.UserAgent
	}
	if meta.IPAddress != "" {
		session.IPAddress = &meta.IPAddress
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", fmt.Errorf("create session: %w", err)
	}
	return session, token, nil
}

func (s *iamService) RevokeSession(ctx context.Context, sessionID string) error {
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *iamService) IssueToken(_ context.Context, user *models.User) (string, error) {
	return s.codec.Encode(user.Username, s.now())
}
