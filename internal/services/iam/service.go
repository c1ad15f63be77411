package iam

import (
	"context"

	"github.com/sriramreddyM/coco-annotator/internal/db/models"
)

// SessionMeta describes the client starting a session.
type SessionMeta struct {
	UserAgent string
	IPAddress string
}

// Service resolves request credentials and manages the session lifecycle.
type Service interface {
	// AuthenticateRequest resolves the request to a Principal.
	//
	// Authenticators are tried in priority order: session cookie, Bearer
	// token, API key. A token failure does not stop the chain; the API key is
	// still tried and the token error is returned only if the key does not
	// resolve. Any other failure aborts. When nothing resolves, the Anonymous
	// Principal is returned. Resolution has no side effects.
	AuthenticateRequest(ctx context.Context, req AuthRequest) (*Principal, error)

	// Anonymous returns the Anonymous Principal.
	Anonymous() *Principal

	// PrincipalFor builds the authenticated principal for user, as after a login.
	PrincipalFor(user *models.User, method Method, sessionID string) *Principal

	// Authorize returns ErrPermissionDenied unless p may perform action on res.
	Authorize(ctx context.Context, p *Principal, action string, res Resource) error

	// Touch records activity on the principal's account (last_seen = now).
	// It is a no-op for the Anonymous Principal.
	Touch(ctx context.Context, p *Principal) error

	// CreateSession starts a cookie session for user and returns the
	// unhashed token to hand to the client.
	CreateSession(ctx context.Context, user *models.User, meta SessionMeta) (*models.Session, string, error)

	// RevokeSession invalidates a session by ID.
	RevokeSession(ctx context.Context, sessionID string) error

	// IssueToken signs a bearer token for user.
	IssueToken(ctx context.Context, user *models.User) (string, error)
}
