// Package identity is the boundary to the primary identity system: the store
// that owns account names and password hashes. The core only needs existence
// checks, password verification, account creation with a generated password,
// and password restore.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Store is the contract the primary-identity system provides.
type Store interface {
	// Exists reports whether a primary account with this lowercased name exists.
	Exists(ctx context.Context, nickname string) (bool, error)

	// VerifyPassword checks a plaintext credential against the stored hash.
	VerifyPassword(ctx context.Context, nickname, password string) (bool, error)

	// CreateAccount creates a primary account with the given password.
	CreateAccount(ctx context.Context, nickname, password string) error

	// SetPassword replaces the account's password (the restore action).
	SetPassword(ctx context.Context, nickname, password string) error

	// IsPremium reports whether the nickname belongs to an externally
	// verified (premium) identity.
	IsPremium(ctx context.Context, nickname string) (bool, error)
}

// GeneratePassword returns a random password for registration and restore.
func GeneratePassword() (string, error) {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
