package users

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/filex"
	"github.com/dmitrijs2005/authgate/internal/server/models"
)

// FileRepository keeps all users in one JSON object (email -> record).
// Every Upsert re-reads the file so edits made by other processes are kept,
// then replaces it atomically.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

func (r *FileRepository) read() (map[string]*models.User, error) {
	all := map[string]*models.User{}
	if _, err := filex.ReadJSON(r.path, &all); err != nil {
		return nil, fmt.Errorf("file error: %w", err)
	}
	for email, u := range all {
		if u == nil {
			delete(all, email)
			continue
		}
		if u.Email == "" {
			u.Email = email
		}
	}
	return all, nil
}

func (r *FileRepository) LoadAll(ctx context.Context) (map[string]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read()
}

func (r *FileRepository) Get(ctx context.Context, email string) (*models.User, error) {
	all, err := r.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	u, ok := all[models.NormalizeEmail(email)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (r *FileRepository) Upsert(ctx context.Context, u *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.read()
	if err != nil {
		return err
	}

	all[models.NormalizeEmail(u.Email)] = u.Clone()

	if err := filex.WriteJSONAtomic(r.path, all); err != nil {
		return fmt.Errorf("file error: %w", err)
	}
	return nil
}
