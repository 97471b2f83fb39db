// Package identity verifies identity tokens issued by a trusted OpenID Connect
// provider.
//
// Verification checks the signature against the issuer's published keys, the
// audience against the configured client ID, the issuer, and expiry. Keys are
// discovered once at startup and cached by go-oidc, which refetches the key set
// when a token carries an unknown key ID.
//
// Every failure mode collapses to ErrInvalidToken so callers cannot tell which
// check failed. The underlying cause stays wrapped for logging.
package identity
