package iam

import (
	"context"
	"net/http"
	"net/url"
)

// Authenticator resolves one kind of credential material.
//
// Return values:
//   - (principal, nil): Authentication successful
//   - (nil, nil): Credentials not present (not an error, try next authenticator)
//   - (nil, error): Authentication failed (invalid credentials or store failure)
type Authenticator interface {
	Authenticate(ctx context.Context, req AuthRequest) (*Principal, error)

	// Method names the credential transport, used for metrics and the Principal.
	Method() Method
}

// AuthRequest carries the credential material of one HTTP request.
type AuthRequest struct {
	// Headers contains HTTP headers (including Authorization)
	Headers http.Header

	// Cookies contains parsed cookies
	Cookies []*http.Cookie

	// Query holds the URL query parameters (api_key)
	Query url.Values
}

// NewAuthRequest extracts credential material from r.
func NewAuthRequest(r *http.Request) AuthRequest {
	return AuthRequest{
		Headers: r.Header,
		Cookies: r.Cookies(),
		Query:   r.URL.Query(),
	}
}

func (r AuthRequest) cookie(name string) string {
	for _, c := range r.Cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}
