package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the keyring service name identities are stored under
const DefaultKeyringService = "toolhive-wallet-sync"

// KeyringLoader loads the identity token from the OS keyring
type KeyringLoader struct {
	service string
	user    string
	now     func() time.Time
}

// NewKeyringLoader creates a loader for the given keyring service and user
func NewKeyringLoader(service, user string) *KeyringLoader {
	if service == "" {
		service = DefaultKeyringService
	}
	return &KeyringLoader{
		service: service,
		user:    user,
		now:     time.Now,
	}
}

// LoadIdentity reads the token from the keyring and decodes it
func (l *KeyringLoader) LoadIdentity(_ context.Context) (*Identity, error) {
	token, err := keyring.Get(l.service, l.user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read identity from keyring: %w", err)
	}

	ident, err := FromToken(token)
	if err != nil {
		return nil, err
	}
	return checkUsable(ident, l.now())
}

// Store saves token in the keyring after checking it decodes
func (l *KeyringLoader) Store(_ context.Context, token string) error {
	if _, err := FromToken(token); err != nil {
		return err
	}
	if err := keyring.Set(l.service, l.user, token); err != nil {
		return fmt.Errorf("failed to write identity to keyring: %w", err)
	}
	return nil
}

// Delete removes the stored token. Deleting a missing token is not an error.
func (l *KeyringLoader) Delete(_ context.Context) error {
	if err := keyring.Delete(l.service, l.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete identity from keyring: %w", err)
	}
	return nil
}
