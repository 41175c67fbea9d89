// Package identity resolves the credentials a sync worker reads ledgers with.
//
// Workers never receive a live session object from their caller. Each worker
// calls a Loader, which re-derives the identity from durable storage (the OS
// keyring or a local file) every time it is needed.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNotFound means no identity is stored
	ErrNotFound = errors.New("identity not found")

	// ErrExpired means the stored identity is past its expiry
	ErrExpired = errors.New("identity expired")

	// ErrUnauthorized means a ledger rejected the identity
	ErrUnauthorized = errors.New("identity unauthorized")

	// ErrMalformed means the stored token cannot be decoded
	ErrMalformed = errors.New("identity token malformed")
)

// IsCredentialError reports whether err means the identity is gone or
// unusable, as opposed to a transient failure
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrMalformed)
}

// Identity is the credential context of a sync worker
type Identity struct {
	// Principal is the subject the token was issued to
	Principal string

	// Token is the bearer token presented to ledger backends
	Token string

	// ExpiresAt is the token expiry; zero means it does not expire
	ExpiresAt time.Time
}

// Expired reports whether the identity is expired at now
func (i *Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// Loader resolves the current identity from durable storage
//
//go:generate mockgen -destination=mocks/mock_loader.go -package=mocks github.com/stacklok/toolhive-wallet-sync/internal/identity Loader,Storage
type Loader interface {
	// LoadIdentity returns the stored identity, or a credential error when
	// there is none or it can no longer be used
	LoadIdentity(ctx context.Context) (*Identity, error)
}

// Storage is a Loader that can also save and erase the token
type Storage interface {
	Loader
	Store(ctx context.Context, token string) error
	Delete(ctx context.Context) error
}

var (
	_ Storage = (*FileLoader)(nil)
	_ Storage = (*KeyringLoader)(nil)
)

// FromToken builds an Identity from a JWT bearer token.
//
// The signature is not verified: the ledger backends verify the token, the
// worker only needs the subject and the expiry to stop polling early.
func FromToken(token string) (*Identity, error) {
	if token == "" {
		return nil, ErrNotFound
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	subject, err := claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid subject: %w", ErrMalformed, err)
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}

	ident := &Identity{
		Principal: subject,
		Token:     token,
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid expiry: %w", ErrMalformed, err)
	}
	if exp != nil {
		ident.ExpiresAt = exp.Time
	}

	return ident, nil
}

// checkUsable returns ErrExpired when ident is expired at now
func checkUsable(ident *Identity, now time.Time) (*Identity, error) {
	if ident.Expired(now) {
		return nil, fmt.Errorf("%w: principal %s expired at %s",
			ErrExpired, ident.Principal, ident.ExpiresAt.Format(time.RFC3339))
	}
	return ident, nil
}
