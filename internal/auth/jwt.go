// Package auth provides bearer tokens, password hashing, Google sign-in and the
// HTTP middleware that ties them together.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. The client registers (POST /auth/register) or signs in with a password
//     (POST /auth/login) or a Google profile (POST /auth/google).
//  2. The server answers with {user, accessToken}.
//  3. The client sends "Authorization: Bearer <accessToken>" on protected calls.
//  4. RequireAuth validates the token, resolves the subject to a live user and
//     stores that user in the request context.
//
// WHY JWT?
// JWT (JSON Web Token) is stateless: the server doesn't store sessions. The
// signed payload carries the user id and expiry, and the signature ensures
// nobody can tamper with it without the secret key.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: claims → {"sub":"<user id>","username":"alice","exp":1234567890}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
//
// There is no refresh token and no revocation list: expiry is the only way a
// token stops working (apart from its user being deleted, see RequireAuth).
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "media-backend"

// DefaultTokenTTL is the lifetime of an access token when none is configured.
const DefaultTokenTTL = 24 * time.Hour

var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret used for both signing and verifying, and the token
// lifetime. Both come from configuration at startup.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret and lifetime.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// Claims is what a valid token proves.
type Claims struct {
	UserID   string
	Identity string // username, or email for Google-only accounts
}

// tokenClaims is the JWT payload. "sub" carries the internal user id; the
// extra "username" claim lets clients show who is signed in without a lookup.
type tokenClaims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Generate creates and signs an access token for the user.
//
// Signing algorithm: HS256 (HMAC-SHA256)
// - Symmetric: same key for signing and verifying
// - Fast and simple, good for a single service that both issues and checks tokens
func (s *TokenService) Generate(userID, identity string) (string, error) {
	return s.GenerateWithDuration(userID, identity, s.ttl)
}

// GenerateWithDuration creates a token with a custom lifetime.
// Tests use it to mint already-expired tokens.
func (s *TokenService) GenerateWithDuration(userID, identity string, d time.Duration) (string, error) {
	now := time.Now()

	c := tokenClaims{
		Username: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	// jwt.NewWithClaims creates an unsigned token with the given algorithm.
	// SignedString(key) signs it and returns the complete JWT string.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired (ExpiresAt is in the future)
//   - Issuer matches (prevents tokens minted by other apps sharing the secret)
//   - Algorithm is HS256 (prevents algorithm confusion attacks)
//
// ALGORITHM CONFUSION ATTACK:
// Without checking the algorithm, an attacker could send a token signed with
// "none" and the library might accept it. jwt.WithValidMethods prevents this.
//
// Returned errors wrap ErrTokenExpired or ErrInvalidToken.
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&tokenClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: unexpected claims", ErrInvalidToken)
	}

	if c.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}

	return &Claims{UserID: c.Subject, Identity: c.Username}, nil
}
