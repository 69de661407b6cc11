package driven

import "github.com/custodia-labs/sercha-chat/internal/core/domain"

// TokenVerifier validates bearer tokens and extracts the caller identity.
// Token issuance is only exposed for local tooling.
type TokenVerifier interface {
	GenerateToken(claims *domain.TokenClaims) (string, error)
	ParseToken(token string) (*domain.TokenClaims, error)
}
