package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jogardn/coastal-farmer/pkg/models"
)

type AdminStore interface {
	CredentialStore
	CreateAdmin(ctx context.Context, admin *models.Administrator) error
}

// EnsureAdmin creates an administrator unless one with the email already
// exists. It reports whether a record was created.
func EnsureAdmin(ctx context.Context, store AdminStore, hasher *Hasher, name, email, password string) (bool, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return false, errors.New("admin email and password are required")
	}

	existing, err := store.FindAdminByEmail(ctx, email)
	if err != nil {
		return false, fmt.Errorf("failed to look up admin: %w", err)
	}
	if existing != nil {
		return false, nil
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return false, err
	}

	admin := &models.Administrator{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.CreateAdmin(ctx, admin); err != nil {
		return false, fmt.Errorf("failed to create admin: %w", err)
	}
	return true, nil
}
