package auth

import "context"

// APIKeyInfo holds the identity bound to a validated API key. UserID is the
// shopper (or admin) on whose behalf authenticated requests act.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	UserID  string
	Name    string
	Admin   bool
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
