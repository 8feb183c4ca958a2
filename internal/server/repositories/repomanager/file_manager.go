package repomanager

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/authgate/internal/filex"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/logs"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/users"
)

// FileRepositoryManager keeps every store as a JSON file under one directory.
type FileRepositoryManager struct {
	dir        string
	users      *users.FileRepository
	audit      *logs.FileRepository[models.AuditEntry]
	threats    *logs.FileRepository[models.SecurityEvent]
	rateLimits *logs.FileRepository[models.RateLimitEvent]
	ipBlocks   *logs.FileRepository[models.IPBlockEvent]
	alerts     *logs.FileRepository[models.Alert]
}

// NewFileRepositoryManager creates dir if needed and binds the repositories to it.
func NewFileRepositoryManager(dir string) (*FileRepositoryManager, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	return &FileRepositoryManager{
		dir:        abs,
		users:      users.NewFileRepository(filepath.Join(abs, "users.json")),
		audit:      logs.NewFileRepository[models.AuditEntry](abs, logs.StreamAudit),
		threats:    logs.NewFileRepository[models.SecurityEvent](abs, logs.StreamThreats),
		rateLimits: logs.NewFileRepository[models.RateLimitEvent](abs, logs.StreamRateLimits),
		ipBlocks:   logs.NewFileRepository[models.IPBlockEvent](abs, logs.StreamIPBlocks),
		alerts:     logs.NewFileRepository[models.Alert](abs, logs.StreamAlerts),
	}, nil
}

// Dir returns the absolute data directory.
func (m *FileRepositoryManager) Dir() string { return m.dir }

// RunMigrations is a no-op: JSON files need no schema.
func (m *FileRepositoryManager) RunMigrations(ctx context.Context) error { return nil }

func (m *FileRepositoryManager) Users() users.Repository { return m.users }

func (m *FileRepositoryManager) Audit() logs.Repository[models.AuditEntry] { return m.audit }

func (m *FileRepositoryManager) Threats() logs.Repository[models.SecurityEvent] { return m.threats }

func (m *FileRepositoryManager) RateLimits() logs.Repository[models.RateLimitEvent] {
	return m.rateLimits
}

func (m *FileRepositoryManager) IPBlocks() logs.Repository[models.IPBlockEvent] { return m.ipBlocks }

func (m *FileRepositoryManager) Alerts() logs.Repository[models.Alert] { return m.alerts }

func (m *FileRepositoryManager) Close() error { return nil }
