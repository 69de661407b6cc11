package domain

import "time"

// AuthContext contains the caller identity attached to a request context.
// Identity is asserted by a bearer token issued elsewhere; this service only verifies it.
type AuthContext struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenClaims represents the verified bearer token payload
type TokenClaims struct {
	UserID    string `json:"sub"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}
