package iam

import (
	"context"
	"fmt"

	"github.com/sriramreddyM/coco-annotator/internal/auth"
	"github.com/sriramreddyM/coco-annotator/internal/repository"
)

// TokenAuthenticator authenticates "Authorization: Bearer <token>" requests.
// Signature and expiry are verified before the subject is trusted; the
// subject is always a username.
type TokenAuthenticator struct {
	users repository.UserRepository
	codec *auth.TokenCodec
}

// NewTokenAuthenticator creates a new bearer token authenticator.
func NewTokenAuthenticator(users repository.UserRepository, codec *auth.TokenCodec) *TokenAuthenticator {
	return &TokenAuthenticator{users: users, codec: codec}
}

// Method implements Authenticator.
func (a *TokenAuthenticator) Method() Method { return MethodToken }

// Authenticate returns ErrTokenExpired or ErrTokenInvalid for bad tokens and
// ErrCredentialNotFound when the subject names no account.
func (a *TokenAuthenticator) Authenticate(ctx context.Context, req AuthRequest) (*Principal, error) {
	raw, present, err := auth.BearerToken(req.Headers.Get("Authorization"))
	if !present {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	claims, err := a.codec.Decode(raw)
	if err != nil {
		return nil, err
	}

	user, err := a.users.GetByUsername(ctx, claims.Subject)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w: token subject %q", ErrCredentialNotFound, claims.Subject)
		}
		return nil, fmt.Errorf("lookup token subject: %w", err)
	}

	return &Principal{Kind: KindUser, User: user, Method: MethodToken}, nil
}
