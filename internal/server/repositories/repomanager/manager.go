// Package repomanager builds the durable backends for one storage choice
// (JSON files or PostgreSQL) behind a single RepositoryManager.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/logs"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Users() users.Repository
	Audit() logs.Repository[models.AuditEntry]
	Threats() logs.Repository[models.SecurityEvent]
	RateLimits() logs.Repository[models.RateLimitEvent]
	IPBlocks() logs.Repository[models.IPBlockEvent]
	Alerts() logs.Repository[models.Alert]
	Close() error
}
