package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired is returned when a correctly signed token is past its exp claim.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenInvalid covers every other decode failure: bad signature,
	// unexpected algorithm, malformed structure, missing subject or a
	// malformed Authorization header.
	ErrTokenInvalid = errors.New("token is invalid")
)

// TokenClaims is the signed payload of a bearer token: {sub, iat, exp}.
// The subject is always the account username.
type TokenClaims struct {
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies HS256 bearer tokens with a server-held secret.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenCodec returns a codec signing with secret and issuing tokens valid for ttl.
func NewTokenCodec(secret string, ttl time.Duration) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &TokenCodec{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL is the lifetime of issued tokens.
func (c *TokenCodec) TTL() time.Duration { return c.ttl }

// Encode signs a token for username issued at issuedAt.
func (c *TokenCodec) Encode(username string, issuedAt time.Time) (string, error) {
	if username == "" {
		return "", errors.New("token subject must not be empty")
	}
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(c.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies signature and expiry before returning the claims.
func (c *TokenCodec) Decode(raw string) (*TokenClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	claims := &TokenClaims{}
	token, err := parser.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		// Claims are validated before the signature, so an expired token is
		// only reported as expired once its signature checks out.
		if errors.Is(err, jwt.ErrTokenExpired) && c.signatureValid(raw) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}

func (c *TokenCodec) signatureValid(raw string) bool {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(strings.TrimSpace(raw), &TokenClaims{}, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	return err == nil
}

// BearerToken extracts the token from an Authorization header value.
//
// Returns present=false when the header is empty. A non-empty header that is
// not of the form "Bearer <token>" is reported as ErrTokenInvalid.
func BearerToken(header string) (token string, present bool, err error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false, nil
	}
	scheme, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", true, fmt.Errorf("%w: authorization header must use the Bearer scheme", ErrTokenInvalid)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", true, fmt.Errorf("%w: empty bearer token", ErrTokenInvalid)
	}
	return value, true, nil
}
