package providers

import (
	"context"
	"fmt"
	"strings"
)

var _ AuthProvider = &StaticAuthProvider{}

// StaticAuthProvider accepts tokens of the form "static:<uid>". It
// exists for local development and tests where no identity backend is
// available.
type StaticAuthProvider struct {
}

func NewStaticAuthProvider() *StaticAuthProvider {
	return &StaticAuthProvider{}
}

// VerifyToken extracts the uid from a static token.
func (p *StaticAuthProvider) VerifyToken(ctx context.Context, idToken string) (*TokenClaims, error) {
	uid, ok := strings.CutPrefix(idToken, "static:")
	if !ok || uid == "" {
		return nil, fmt.Errorf("invalid static token")
	}
	return &TokenClaims{
		UID: uid,
	}, nil
}
