// Package auth implements the relay token scheme: the client presents
// "Authorization: Token <token>" and a server side compares it in constant
// time.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// Scheme is the Authorization scheme used by relay sessions.
const Scheme = "Token"

var (
	ErrUnauthorized       = errors.New("auth: unauthorized")
	ErrMissingCredentials = errors.New("auth: missing credentials")
)

// Header formats token as an Authorization header value.
func Header(token string) string {
	return Scheme + " " + token
}

// FromHeader extracts the token from an Authorization header value. The
// scheme is matched case-insensitively.
func FromHeader(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ErrMissingCredentials
	}
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, Scheme) || strings.TrimSpace(token) == "" {
		return "", ErrUnauthorized
	}
	return strings.TrimSpace(token), nil
}

// Validator validates a presented token.
type Validator interface {
	Validate(token string) error
}

// StaticToken accepts exactly one shared token. An empty Token denies all.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// Request validates the Authorization header of r.
func Request(v Validator, r *http.Request) error {
	token, err := FromHeader(r.Header.Get("Authorization"))
	if err != nil {
		return err
	}
	return v.Validate(token)
}

// Middleware rejects requests that fail v with 401.
func Middleware(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := Request(v, r); err != nil {
				log.Warn().Msgf("auth.Middleware rejected %s %s err=%v", r.Method, r.URL.Path, err)
				w.Header().Set("WWW-Authenticate", Scheme)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
