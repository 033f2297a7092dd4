// Package auth holds everything about identity: session tokens, password
// hashing, GitHub sign-in, the request middleware that resolves the acting
// user, and the ownership rule that gates every mutation.
//
// HOW A SESSION WORKS:
//
//  1. The user registers, logs in, or completes the GitHub OAuth flow.
//  2. TokenService.Generate issues an HS256 JWT whose subject is the user's ID.
//  3. The handler stores it in the HttpOnly "token" cookie; API clients may send
//     it as "Authorization: Bearer <token>" instead.
//  4. Authenticate validates it on each request and puts an Actor in the context.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "snippet-share"

// ErrInvalidToken covers every reason a token is rejected: bad signature,
// wrong issuer, expiry, malformed subject.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenService signs and validates session tokens with one HMAC secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService requires a secret of at least 16 bytes. A non-positive ttl
// falls back to 24 hours.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is the lifetime of issued tokens; the session cookie uses it as MaxAge.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Generate issues a token for userID that expires after the configured TTL.
func (s *TokenService) Generate(userID int64) (string, error) {
	return s.generate(userID, time.Now(), s.ttl)
}

func (s *TokenService) generate(userID int64, now time.Time, ttl time.Duration) (string, error) {
	c := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    issuer,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate checks the signature, algorithm, issuer and expiry and returns the
// user ID carried in the subject.
func (s *TokenService) Validate(tokenStr string) (int64, error) {
	var c jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(
		tokenStr,
		&c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		// Pinning the method closes the "alg: none" and RS/HS confusion holes.
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, fmt.Errorf("%w: expired", ErrInvalidToken)
		}
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, c.Subject)
	}
	return userID, nil
}
