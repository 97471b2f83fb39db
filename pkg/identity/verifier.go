package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
)

// ErrInvalidToken is returned for any identity token that fails verification
var ErrInvalidToken = errors.New("invalid identity token")

// VerifiedIdentity holds the claims extracted from a verified identity token.
// Name and Picture are empty when the issuer omitted them.
type VerifiedIdentity struct {
	Subject       string
	Email         string
	Name          string
	Picture       string
	EmailVerified bool
}

// Verifier validates raw identity tokens
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*VerifiedIdentity, error)
}

// Config configures an OIDCVerifier
type Config struct {
	IssuerURL string
	ClientID  string
	// RequireVerifiedEmail rejects tokens whose email_verified claim is false
	RequireVerifiedEmail bool
	// HTTPClient is used for discovery and key fetches; nil uses http.DefaultClient
	HTTPClient *http.Client
}

// OIDCVerifier verifies identity tokens with go-oidc
type OIDCVerifier struct {
	verifier    *oidc.IDTokenVerifier
	requireMail bool
}

// NewOIDCVerifier discovers the issuer's configuration and key set
func NewOIDCVerifier(ctx context.Context, cfg Config) (*OIDCVerifier, error) {
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("issuer URL is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}

	if cfg.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, cfg.HTTPClient)
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &OIDCVerifier{
		verifier:    provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		requireMail: cfg.RequireVerifiedEmail,
	}, nil
}

// NewOIDCVerifierWithKeySet builds a verifier over an explicit key set,
// skipping discovery
func NewOIDCVerifierWithKeySet(issuer string, keys oidc.KeySet, cfg Config) *OIDCVerifier {
	return &OIDCVerifier{
		verifier:    oidc.NewVerifier(issuer, keys, &oidc.Config{ClientID: cfg.ClientID}),
		requireMail: cfg.RequireVerifiedEmail,
	}
}

type identityClaims struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Verify validates rawToken and extracts the caller's identity
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*VerifiedIdentity, error) {
	if rawToken == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims identityClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: failed to parse claims: %v", ErrInvalidToken, err)
	}

	if claims.Email == "" {
		return nil, fmt.Errorf("%w: missing email claim", ErrInvalidToken)
	}

	verified := claims.EmailVerified != nil && *claims.EmailVerified
	if v.requireMail && !verified {
		return nil, fmt.Errorf("%w: email not verified", ErrInvalidToken)
	}

	return &VerifiedIdentity{
		Subject:       idToken.Subject,
		Email:         claims.Email,
		Name:          claims.Name,
		Picture:       claims.Picture,
		EmailVerified: verified,
	}, nil
}
