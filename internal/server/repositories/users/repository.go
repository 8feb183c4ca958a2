// Package users holds the durable backends of the credential store. Both
// backends key records by normalized email and never delete them.
package users

import (
	"context"

	"github.com/dmitrijs2005/authgate/internal/server/models"
)

type Repository interface {
	// LoadAll returns every stored user keyed by email.
	LoadAll(ctx context.Context) (map[string]*models.User, error)
	// Get returns common.ErrorNotFound when the email is unknown.
	Get(ctx context.Context, email string) (*models.User, error)
	// Upsert inserts or replaces the record for u.Email.
	Upsert(ctx context.Context, u *models.User) error
}
