package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrExpiredCredential = errors.New("expired credential")
)

// Verifier checks bearer tokens minted by the identity collaborator.
// Tokens are HMAC-signed JWTs carrying the user id in the "sub" claim.
type Verifier struct {
	secret   []byte
	tokenTTL time.Duration
}

func NewVerifier(secret string, tokenTTL time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), tokenTTL: tokenTTL}
}

// Verify returns the authenticated user id, or one of the credential errors.
func (v *Verifier) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrMissingCredential
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredCredential
		}
		return "", ErrInvalidCredential
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidCredential
	}
	return sub, nil
}

// Issue mints a token in the same format the collaborator issues.
// Used by tests and the local dev token helper; the feed itself only verifies.
func (v *Verifier) Issue(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(v.tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// BearerToken extracts the credential from an Authorization header or,
// for websocket dials that cannot set headers, a "token" query parameter.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
