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
	ErrNoToken       = errors.New("kiosk token not configured")
	ErrMissingBooth  = errors.New("kiosk token has no booth_id claim")
	ErrMalformedAuth = errors.New("malformed kiosk token")
)

// TokenSource yields the bearer token the kiosk presents to the backend.
// Where it is stored is up to the implementation.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource backed by a fixed string, typically from config.
type StaticToken string

func (s StaticToken) Token() (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// Authorize sets the Authorization header from src. A nil source or an
// unconfigured token leaves the request anonymous.
func Authorize(r *http.Request, src TokenSource) error {
	if src == nil {
		return nil
	}
	tok, err := src.Token()
	if errors.Is(err, ErrNoToken) {
		return nil
	}
	if err != nil {
		return err
	}
	r.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

// BoothClaims is what the kiosk reads out of its own token.
type BoothClaims struct {
	BoothID   string
	Name      string
	ExpiresAt *time.Time
}

// Expired reports whether the token carries an exp claim in the past.
func (c BoothClaims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// ParseBoothClaims decodes the kiosk token without verifying its signature.
// The backend is the one that verifies it; the kiosk only needs the booth id
// and expiry for display and early warnings.
func ParseBoothClaims(token string) (BoothClaims, error) {
	token = strings.TrimPrefix(strings.TrimSpace(token), "Bearer ")

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return BoothClaims{}, fmt.Errorf("%w: %v", ErrMalformedAuth, err)
	}

	out := BoothClaims{}
	switch id := claims["booth_id"].(type) {
	case string:
		out.BoothID = id
	case float64:
		out.BoothID = fmt.Sprintf("%.0f", id)
	}
	if out.BoothID == "" {
		return BoothClaims{}, ErrMissingBooth
	}

	if name, ok := claims["name"].(string); ok {
		out.Name = name
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return BoothClaims{}, fmt.Errorf("%w: %v", ErrMalformedAuth, err)
	}
	if exp != nil {
		t := exp.Time
		out.ExpiresAt = &t
	}

	return out, nil
}
