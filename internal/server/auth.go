package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"ems/dispatch/internal/config"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

type contextKey string

// UserContextKey stores the authenticated dispatcher's claims.
const UserContextKey contextKey = "user"

// UserClaims are the Keycloak claims the engine reads.
type UserClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// AuthMiddleware validates bearer tokens against the realm JWKS and enforces one
// realm role on every /v1 route.
type AuthMiddleware struct {
	keyFunc      jwt.Keyfunc
	cancelFn     context.CancelFunc
	validIssuers []string
	requiredRole string
	log          zerolog.Logger
}

// NewAuthMiddleware fetches the realm JWKS and keeps it refreshed until Close.
func NewAuthMiddleware(ctx context.Context, cfg config.KeycloakConfig, log zerolog.Logger) (*AuthMiddleware, error) {
	jwksURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.URL, cfg.Realm)

	jwksCtx, cancelFn := context.WithCancel(ctx)
	jwks, err := keyfunc.NewDefaultCtx(jwksCtx, []string{jwksURL})
	if err != nil {
		cancelFn()
		return nil, fmt.Errorf("failed to create JWKS from %s: %w", jwksURL, err)
	}

	// Tokens minted through either the internal or the public Keycloak URL are accepted.
	issuers := []string{
		fmt.Sprintf("%s/realms/%s", cfg.URL, cfg.Realm),
		fmt.Sprintf("%s/realms/%s", cfg.PublicURL, cfg.Realm),
	}
	a := newAuthMiddleware(jwks.Keyfunc, issuers, cfg.RequiredRole, log)
	a.cancelFn = cancelFn

	log.Info().
		Str("jwks_url", jwksURL).
		Strs("valid_issuers", issuers).
		Str("required_role", cfg.RequiredRole).
		Msg("JWT authentication middleware initialized")
	return a, nil
}

func newAuthMiddleware(kf jwt.Keyfunc, issuers []string, role string, log zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		keyFunc:      kf,
		validIssuers: issuers,
		requiredRole: role,
		log:          log.With().Str("component", "auth").Logger(),
	}
}

// Close stops the JWKS refresh.
func (a *AuthMiddleware) Close() {
	if a.cancelFn != nil {
		a.cancelFn()
	}
}

// Middleware answers 401 for a missing or invalid token and 403 when the required
// role is absent.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.authenticate(r)
		if err != nil {
			a.log.Debug().Err(err).Str("path", r.URL.Path).Msg("authentication failed")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if a.requiredRole != "" && !slices.Contains(claims.RealmAccess.Roles, a.requiredRole) {
			a.log.Debug().
				Str("username", claims.PreferredUsername).
				Strs("roles", claims.RealmAccess.Roles).
				Msg("user lacks required role")
			http.Error(w, "Forbidden: missing "+a.requiredRole+" role", http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *AuthMiddleware) authenticate(r *http.Request) (*UserClaims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, errors.New("missing Authorization header")
	}
	scheme, raw, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || raw == "" {
		return nil, errors.New("invalid Authorization header format")
	}

	claims := &UserClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, a.keyFunc,
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}
	if !slices.Contains(a.validIssuers, claims.Issuer) {
		return nil, fmt.Errorf("invalid issuer: %s", claims.Issuer)
	}
	return claims, nil
}

// GetUserFromContext returns the claims stored by the middleware.
func GetUserFromContext(ctx context.Context) (*UserClaims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*UserClaims)
	return claims, ok
}
