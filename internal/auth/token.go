// internal/auth/token.go
//
// HS256 tokens: session credentials and short-lived sign-in links. Each
// carries a purpose claim so one kind cannot stand in for the other.

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	purposeSession = "session"
	purposeMagic   = "magic"
)

// SessionClaims is the payload of a session credential.
type SessionClaims struct {
	UserID  string `json:"id"`
	Email   string `json:"email"`
	Admin   bool   `json:"admin"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// MagicClaims is the payload of a sign-in link.
type MagicClaims struct {
	Email    string `json:"email"`
	Invite   string `json:"invite,omitempty"`
	Redirect string `json:"redirect,omitempty"`
	Purpose  string `json:"purpose"`
	jwt.RegisteredClaims
}

// signer signs and verifies HS256 tokens with one secret.
type signer struct {
	secret []byte
}

func (s signer) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s signer) parse(raw string, claims jwt.Claims, now time.Time) error {
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("token not valid")
	}
	return nil
}

func (s signer) sessionToken(u *User, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	ss, err := s.sign(SessionClaims{
		UserID:  u.ID,
		Email:   u.Email,
		Admin:   u.Admin,
		Purpose: purposeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing session: %w", err)
	}
	return ss, exp, nil
}

func (s signer) parseSession(raw string, now time.Time) (*SessionClaims, error) {
	var c SessionClaims
	if err := s.parse(raw, &c, now); err != nil {
		return nil, err
	}
	if c.Purpose != purposeSession || c.UserID == "" {
		return nil, errors.New("not a session token")
	}
	return &c, nil
}

func (s signer) magicToken(email, invite, redirect string, now time.Time, ttl time.Duration) (string, error) {
	return s.sign(MagicClaims{
		Email:    email,
		Invite:   invite,
		Redirect: redirect,
		Purpose:  purposeMagic,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
}

func (s signer) parseMagic(raw string, now time.Time) (*MagicClaims, error) {
	var c MagicClaims
	if err := s.parse(raw, &c, now); err != nil {
		return nil, err
	}
	if c.Purpose != purposeMagic || c.Email == "" {
		return nil, errors.New("not a sign-in token")
	}
	return &c, nil
}
