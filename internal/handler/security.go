package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/xenking/techtrove/internal/domain/auth"
)

// identityKey is the context key for the authenticated caller.
type identityKey struct{}

// IdentityFromContext extracts the authenticated API key identity from the
// context, or nil when the request was not authenticated.
func IdentityFromContext(ctx context.Context) *auth.APIKeyInfo {
	info, _ := ctx.Value(identityKey{}).(*auth.APIKeyInfo)
	return info
}

// Security authenticates API requests via HMAC-SHA256 hashed API keys and
// binds the resulting user identity to the request context.
type Security struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurity creates a Security with the given API key repository and HMAC
// pepper.
func NewSecurity(apikeys auth.Repository, pepper []byte) *Security {
	return &Security{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Authenticate wraps next, requiring a valid api_key header. The key's HMAC
// is looked up in the repository and compared in constant time; on success
// the bound identity is stored in the request context.
func (s *Security) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("api_key")
		if key == "" {
			respondError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		mac := hmac.New(sha256.New, s.pepper)
		mac.Write([]byte(key))
		hash := mac.Sum(nil)

		info, err := s.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
		if err != nil {
			respondError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		// Constant-time comparison guards against timing side-channels even
		// though the lookup already succeeded.
		storedBytes, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(hash, storedBytes) != 1 {
			respondError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireIdentity returns the caller identity or writes a 401 and reports
// false. Handlers call it first.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.APIKeyInfo, bool) {
	info := IdentityFromContext(r.Context())
	if info == nil {
		respondError(w, r, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return info, true
}

// requireAdmin is requireIdentity plus an admin-key check for the /api/admin
// surface.
func requireAdmin(w http.ResponseWriter, r *http.Request) (*auth.APIKeyInfo, bool) {
	info, ok := requireIdentity(w, r)
	if !ok {
		return nil, false
	}
	if !info.Admin {
		respondError(w, r, http.StatusForbidden, "admin access required")
		return nil, false
	}
	return info, true
}
