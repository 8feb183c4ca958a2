package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/authgate/internal/server/migrations"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/logs"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct {
	db *sql.DB
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(db *sql.DB) *PostgresRepositoryManager {
	return &PostgresRepositoryManager{db: db}
}

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

// OpenPostgres opens a pgx-backed *sql.DB and checks connectivity.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresRepositoryManager, error) {
	db, err := sqlOpen("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return NewPostgresRepositoryManager(db), nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the manager's database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, m.db, "."); err != nil {
		return err
	}
	return nil
}

func (m *PostgresRepositoryManager) Users() users.Repository {
	return users.NewPostgresRepository(m.db)
}

func (m *PostgresRepositoryManager) Audit() logs.Repository[models.AuditEntry] {
	return logs.NewPostgresRepository[models.AuditEntry](m.db, logs.StreamAudit)
}

func (m *PostgresRepositoryManager) Threats() logs.Repository[models.SecurityEvent] {
	return logs.NewPostgresRepository[models.SecurityEvent](m.db, logs.StreamThreats)
}

func (m *PostgresRepositoryManager) RateLimits() logs.Repository[models.RateLimitEvent] {
	return logs.NewPostgresRepository[models.RateLimitEvent](m.db, logs.StreamRateLimits)
}

func (m *PostgresRepositoryManager) IPBlocks() logs.Repository[models.IPBlockEvent] {
	return logs.NewPostgresRepository[models.IPBlockEvent](m.db, logs.StreamIPBlocks)
}

func (m *PostgresRepositoryManager) Alerts() logs.Repository[models.Alert] {
	return logs.NewPostgresRepository[models.Alert](m.db, logs.StreamAlerts)
}

func (m *PostgresRepositoryManager) Close() error {
	return m.db.Close()
}
