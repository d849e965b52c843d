package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// SessionCookie is the name of the console session cookie.
const SessionCookie = "DRUID_SESSION"

// sessionTTL bounds how long a console login stays valid.
const sessionTTL = 30 * time.Minute

var errInvalidSession = errors.New("invalid session")

// sessions issues and verifies console login tokens. Tokens are HS256 JWTs
// signed with a key generated at startup, so a restart logs everyone out.
type sessions struct {
	username string
	password string
	secret   []byte
	revoked  *lru.Cache[string, time.Time]
}

func newSessions(username, password string) (*sessions, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}
	revoked, err := lru.New[string, time.Time](1024)
	if err != nil {
		return nil, err
	}
	return &sessions{username: username, password: password, secret: secret, revoked: revoked}, nil
}

// enabled reports whether a login is required at all.
func (s *sessions) enabled() bool { return s.username != "" }

// check compares the submitted credentials in constant time.
func (s *sessions) check(username, password string) bool {
	u := subtle.ConstantTimeCompare([]byte(username), []byte(s.username))
	p := subtle.ConstantTimeCompare([]byte(password), []byte(s.password))
	return u&p == 1
}

// issue signs a new token for the configured user.
func (s *sessions) issue(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   s.username,
		Issuer:    "druid",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// verify parses tokenStr and returns its claims when it is valid, issued
// for the configured user and not revoked.
func (s *sessions) verify(tokenStr string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errInvalidSession
	}
	if claims.Subject != s.username {
		return nil, errInvalidSession
	}
	if _, gone := s.revoked.Get(claims.ID); gone {
		return nil, errInvalidSession
	}
	return claims, nil
}

// revoke invalidates the token carried by r, if any.
func (s *sessions) revoke(r *http.Request) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return
	}
	if claims, err := s.verify(c.Value); err == nil {
		s.revoked.Add(claims.ID, claims.ExpiresAt.Time)
	}
}

// authenticated reports whether r carries a valid session cookie.
func (s *sessions) authenticated(r *http.Request) bool {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return false
	}
	_, err = s.verify(c.Value)
	return err == nil
}

func sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
