package identity

import (
	"fmt"
	"os"
	"strings"

	"pdm-go/internal/config"
)

// Identity is a resolved acting identity. Role is empty when no source
// provided one; the caller then resolves it from the shared roles record.
type Identity struct {
	User string
	Role string
}

// Resolve determines the acting identity, in precedence order:
//
//  1. a signed token from the PDM_TOKEN environment variable or the
//     configured token file (carries the user and possibly a role),
//  2. the PDM_USER environment variable,
//  3. the configured static user.
//
// A token requires an auth secret (PDM_AUTH_SECRET env or config); a token
// that fails validation is an error, never a silent fallback.
func Resolve(cfg config.IdentityConfig) (Identity, error) {
	token := strings.TrimSpace(os.Getenv("PDM_TOKEN"))
	if token == "" && cfg.TokenPath != "" {
		data, err := os.ReadFile(cfg.TokenPath)
		if err != nil && !os.IsNotExist(err) {
			return Identity{}, fmt.Errorf("reading token file: %w", err)
		}
		token = strings.TrimSpace(string(data))
	}

	if token != "" {
		signer, err := NewSigner(authSecret(cfg))
		if err != nil {
			return Identity{}, fmt.Errorf("validating token: %w", err)
		}
		claims, err := signer.ParseAndValidate(token)
		if err != nil {
			return Identity{}, fmt.Errorf("validating token: %w", err)
		}
		return Identity{User: claims.Subject, Role: claims.Role}, nil
	}

	if user := strings.TrimSpace(os.Getenv("PDM_USER")); user != "" {
		return Identity{User: user}, nil
	}
	if cfg.User != "" {
		return Identity{User: cfg.User}, nil
	}
	return Identity{}, fmt.Errorf("no acting identity: set PDM_USER, provide a token, or configure [identity] user")
}

// authSecret returns the token-signing secret, preferring the environment.
func authSecret(cfg config.IdentityConfig) string {
	if s := os.Getenv("PDM_AUTH_SECRET"); s != "" {
		return s
	}
	return cfg.AuthSecret
}

// NewSignerFromConfig creates a Signer from the configured auth secret.
func NewSignerFromConfig(cfg config.IdentityConfig) (*Signer, error) {
	return NewSigner(authSecret(cfg))
}
