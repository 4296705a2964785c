package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/mrhollen/KnowledgeChat/internal/models"
	"github.com/mrhollen/KnowledgeChat/pkg/utils"
)

const tokensKey = "access_tokens"

var (
	ErrMissingHeader = errors.New("authorization header is missing")
	ErrBadHeader     = errors.New("invalid Authorization header format")
)

// TokenStore lists the access tokens that are currently valid.
type TokenStore interface {
	GetAccessTokens(ctx context.Context) ([]models.AccessToken, error)
}

// AccessTokenAuthorizer accepts bearer tokens from a fixed list and from a
// token store. Store tokens are cached for a few minutes and checked for
// expiry on every use.
type AccessTokenAuthorizer struct {
	store  TokenStore
	static []string
	cache  *cache.Cache
	logger *zap.Logger
}

// NewAccessTokenAuthorizer returns an authorizer; store may be nil.
func NewAccessTokenAuthorizer(store TokenStore, static []string, logger *zap.Logger) *AccessTokenAuthorizer {
	return &AccessTokenAuthorizer{
		store:  store,
		static: static,
		cache:  cache.New(5*time.Minute, 10*time.Minute),
		logger: utils.OrNop(logger),
	}
}

func (a *AccessTokenAuthorizer) CheckToken(ctx context.Context, accessTokenValue string) (bool, error) {
	if accessTokenValue == "" {
		return false, nil
	}
	for _, t := range a.static {
		if subtle.ConstantTimeCompare([]byte(t), []byte(accessTokenValue)) == 1 {
			return true, nil
		}
	}
	if a.store == nil {
		return false, nil
	}

	tokens, err := a.storeTokens(ctx)
	if err != nil {
		return false, err
	}
	now := time.Now()
	for _, t := range tokens {
		if !t.Expiration.After(now) {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(t.Token), []byte(accessTokenValue)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

func (a *AccessTokenAuthorizer) storeTokens(ctx context.Context) ([]models.AccessToken, error) {
	if x, found := a.cache.Get(tokensKey); found {
		return x.([]models.AccessToken), nil
	}

	tokens, err := a.store.GetAccessTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not fetch access tokens: %w", err)
	}
	a.cache.Set(tokensKey, tokens, cache.DefaultExpiration)
	return tokens, nil
}

// Refresh drops cached store tokens.
func (a *AccessTokenAuthorizer) Refresh() {
	a.cache.Delete(tokensKey)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingHeader
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return "", ErrBadHeader
	}
	return strings.TrimSpace(token), nil
}

// Middleware rejects requests without a valid bearer token.
func (a *AccessTokenAuthorizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := BearerToken(r)
		if err == nil {
			var ok bool
			ok, err = a.CheckToken(r.Context(), token)
			if err == nil && !ok {
				err = errors.New("unknown access token")
			}
		}
		if err != nil {
			a.logger.Warn("unauthorized request", zap.String("path", r.URL.Path), zap.Error(err))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
