package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/dbx"
	"github.com/dmitrijs2005/authgate/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `email, password_hash, role, name, is_active, expires_at, mfa_enabled,
		 app_access, metadata, created_at, created_by, is_temporary,
		 deactivated_at, deactivated_by, password_changed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*models.User, error) {
	var (
		u                                           models.User
		role                                        string
		expiresAt, deactivatedAt, passwordChangedAt sql.NullTime
		appAccess, metadata                         []byte
	)

	err := s.Scan(&u.Email, &u.PasswordHash, &role, &u.Name, &u.IsActive, &expiresAt, &u.MFAEnabled,
		&appAccess, &metadata, &u.CreatedAt, &u.CreatedBy, &u.IsTemporary,
		&deactivatedAt, &u.DeactivatedBy, &passwordChangedAt)
	if err != nil {
		return nil, err
	}

	u.Role = models.Role(role)
	u.ExpiresAt = timePtr(expiresAt)
	u.DeactivatedAt = timePtr(deactivatedAt)
	u.PasswordChangedAt = timePtr(passwordChangedAt)

	if len(appAccess) > 0 {
		if err := json.Unmarshal(appAccess, &u.AppAccess); err != nil {
			return nil, fmt.Errorf("decode app_access: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &u.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}

	return &u, nil
}

func (r *PostgresRepository) LoadAll(ctx context.Context) (map[string]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	all := map[string]*models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		all[u.Email] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return all, nil
}

func (r *PostgresRepository) Get(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE email = $1`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, models.NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return u, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, u *models.User) error {
	appAccess, err := json.Marshal(nonNilSlice(u.AppAccess))
	if err != nil {
		return fmt.Errorf("encode app_access: %w", err)
	}
	metadata, err := json.Marshal(nonNilMap(u.Metadata))
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	query :=
		`INSERT INTO users (` + userColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (email) DO UPDATE SET
		 password_hash = EXCLUDED.password_hash, role = EXCLUDED.role, name = EXCLUDED.name,
		 is_active = EXCLUDED.is_active, expires_at = EXCLUDED.expires_at, mfa_enabled = EXCLUDED.mfa_enabled,
		 app_access = EXCLUDED.app_access, metadata = EXCLUDED.metadata, is_temporary = EXCLUDED.is_temporary,
		 deactivated_at = EXCLUDED.deactivated_at, deactivated_by = EXCLUDED.deactivated_by,
		 password_changed_at = EXCLUDED.password_changed_at`

	_, err = r.db.ExecContext(ctx, query,
		models.NormalizeEmail(u.Email), u.PasswordHash, string(u.Role), u.Name, u.IsActive, nullTime(u.ExpiresAt), u.MFAEnabled,
		appAccess, metadata, u.CreatedAt, u.CreatedBy, u.IsTemporary,
		nullTime(u.DeactivatedAt), u.DeactivatedBy, nullTime(u.PasswordChangedAt))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nonNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
