package iam

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sriramreddyM/coco-annotator/internal/repository"
)

// APIKeyQueryParam carries the API key. Its value is a user ID.
const APIKeyQueryParam = "api_key"

// APIKeyAuthenticator resolves the api_key query parameter. Unlike tokens, an
// unknown key is not an error: the request falls through to anonymous.
type APIKeyAuthenticator struct {
	users repository.UserRepository
}

// NewAPIKeyAuthenticator creates a new API key authenticator.
func NewAPIKeyAuthenticator(users repository.UserRepository) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{users: users}
}

// Method implements Authenticator.
func (a *APIKeyAuthenticator) Method() Method { return MethodAPIKey }

// Authenticate implements Authenticator.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, req AuthRequest) (*Principal, error) {
	key := req.Query.Get(APIKeyQueryParam)
	if key == "" {
		return nil, nil
	}
	if _, err := uuid.Parse(key); err != nil {
		return nil, nil
	}

	user, err := a.users.GetByID(ctx, key)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup api key: %w", err)
	}

	return &Principal{Kind: KindUser, User: user, Method: MethodAPIKey}, nil
}
