package iam

import (
	"context"
	"fmt"
	"time"

	"github.com/sriramreddyM/coco-annotator/internal/auth"
	"github.com/sriramreddyM/coco-annotator/internal/repository"
)

// SessionAuthenticator authenticates requests using the session cookie
// issued by password login and registration.
//
// A cookie whose session is unknown, revoked or expired is treated like a
// missing cookie: the session machinery simply has no user for it.
type SessionAuthenticator struct {
	sessions repository.SessionRepository
	now      func() time.Time
}

// NewSessionAuthenticator creates a new session authenticator.
func NewSessionAuthenticator(sessions repository.SessionRepository, now func() time.Time) *SessionAuthenticator {
	if now == nil {
		now = time.Now
	}
	return &SessionAuthenticator{sessions: sessions, now: now}
}

// Method implements Authenticator.
func (a *SessionAuthenticator) Method() Method { return MethodCookie }

// Authenticate resolves the annotator.session cookie with one store lookup.
func (a *SessionAuthenticator) Authenticate(ctx context.Context, req AuthRequest) (*Principal, error) {
	token := req.cookie(auth.SessionCookieName)
	if token == "" {
		return nil, nil
	}

	session, err := a.sessions.GetByTokenHash(ctx, auth.HashToken(token))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if !session.Active(a.now()) || session.User == nil {
		return nil, nil
	}

	return &Principal{
		Kind:      KindUser,
		User:      session.User,
		Method:    MethodCookie,
		SessionID: session.ID,
	}, nil
}
