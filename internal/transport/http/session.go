package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultSessionTTL is the lifetime of the browser session cookie.
const DefaultSessionTTL = 25 * time.Minute

const sessionCookieName = "exercise_session"

// CookieSessions identifies browsers by a signed cookie carrying an opaque session id.
// The session state itself lives in the engine's SessionRepository.
type CookieSessions struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewCookieSessions(secret string, ttl time.Duration, secure bool) *CookieSessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &CookieSessions{secret: []byte(secret), ttl: ttl, secure: secure, now: time.Now}
}

// Lookup returns the session id carried by the request cookie.
func (s *CookieSessions) Lookup(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return "", false
	}
	id, err := s.parse(cookie.Value)
	if err != nil {
		return "", false
	}
	return id, true
}

// Issue returns the request's session id, minting a new one when absent, and
// (re)sets the cookie so its expiry restarts.
func (s *CookieSessions) Issue(w http.ResponseWriter, r *http.Request) (string, error) {
	id, ok := s.Lookup(r)
	if !ok {
		id = uuid.NewString()
	}
	value, err := s.sign(id)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id, nil
}

func (s *CookieSessions) sign(id string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	})
	return token.SignedString(s.secret)
}

func (s *CookieSessions) parse(value string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", fmt.Errorf("parse session cookie: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("invalid session cookie")
	}
	return claims.Subject, nil
}
