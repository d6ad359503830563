// Copyright 2025 the MetaMCP authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package auth authenticates API requests by bearer API key and resolves
// the caller's active profile.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/metatool-ai/metamcp/internal/httputil"
	logging "github.com/metatool-ai/metamcp/internal/log"
	"github.com/metatool-ai/metamcp/internal/store"
)

// Reason classifies why authentication failed.
type Reason string

const (
	ReasonMissingCredential Reason = "missing_credential"
	ReasonInvalidCredential Reason = "invalid_credential"
	ReasonNoActiveProfile   Reason = "no_active_profile"
)

// Error is an authentication failure. Surfaced to HTTP callers as 401.
type Error struct {
	Reason  Reason
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	var ae *Error
	return errors.As(err, &ae)
}

// Identity is the authenticated caller: the API key used and the active
// profile all scoped operations run against.
type Identity struct {
	Key     *store.APIKey
	Profile *store.Profile
}

// Authenticator resolves bearer API keys to identities.
type Authenticator struct {
	store  store.Store
	logger *slog.Logger
}

// NewAuthenticator creates an authenticator backed by the store.
func NewAuthenticator(st store.Store, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{store: st, logger: logging.WithComponent(logger, "auth")}
}

// ExtractBearerToken extracts the Bearer token from the Authorization
// header. The prefix match is case-insensitive per RFC 6750.
func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", &Error{Reason: ReasonMissingCredential, Message: "missing Authorization header"}
	}

	const bearerPrefix = "bearer "
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", &Error{Reason: ReasonMissingCredential, Message: "invalid Authorization header format, expected 'Bearer <token>'"}
	}

	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", &Error{Reason: ReasonMissingCredential, Message: "empty Bearer token"}
	}
	return token, nil
}

// Authenticate resolves the request's bearer token to an identity. Unknown
// tokens fail with a generic message so key values can't be probed.
func (a *Authenticator) Authenticate(r *http.Request) (*Identity, error) {
	token, err := ExtractBearerToken(r)
	if err != nil {
		return nil, err
	}

	key, err := a.store.GetAPIKeyByValue(r.Context(), token)
	if errors.Is(err, store.ErrAPIKeyNotFound) {
		a.logger.Warn("rejected unknown api key",
			slog.String("api_key", logging.SanitizeAPIKey(token)))
		return nil, &Error{Reason: ReasonInvalidCredential, Message: "Invalid API key"}
	}
	if err != nil {
		return nil, err
	}

	profile, err := a.store.GetActiveProfile(r.Context(), key.ProjectUUID)
	if err != nil {
		if errors.Is(err, store.ErrProjectNotFound) {
			return nil, &Error{Reason: ReasonNoActiveProfile, Message: "no active profile for API key"}
		}
		return nil, err
	}

	return &Identity{Key: key, Profile: profile}, nil
}

type contextKey int

const identityKey contextKey = 0

// WithIdentity returns a context carrying the authenticated identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the authenticated identity, or nil when the
// request did not pass through the auth middleware.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// Middleware authenticates every request and injects the identity into the
// request context. Failures are answered with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.Authenticate(r)
		if err != nil {
			if IsAuthError(err) {
				httputil.WriteError(w, http.StatusUnauthorized, err.Error())
				return
			}
			a.logger.Error("authentication lookup failed", logging.Error(err))
			httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}
