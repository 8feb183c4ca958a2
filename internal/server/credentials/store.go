// Package credentials is the in-memory user cache in front of a durable
// users.Repository. Reads never wait on storage I/O held by another
// goroutine; writes are serialized and reach the backend before the cache.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/users"
)

type Store struct {
	repo   users.Repository
	logger logging.Logger

	mu    sync.RWMutex
	cache map[string]*models.User

	writeMu sync.Mutex
}

func NewStore(repo users.Repository, logger logging.Logger) *Store {
	return &Store{
		repo:   repo,
		logger: logger.With("module", "credentials"),
		cache:  map[string]*models.User{},
	}
}

// Load replaces the cache with the backend's full contents.
func (s *Store) Load(ctx context.Context) error {
	all, err := s.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}

	next := make(map[string]*models.User, len(all))
	for email, u := range all {
		next[models.NormalizeEmail(email)] = u
	}

	s.mu.Lock()
	s.cache = next
	s.mu.Unlock()

	s.logger.Info(ctx, "users loaded", "count", len(next))
	return nil
}

// Get returns a copy of the user. On a cache miss it asks the backend once,
// so records written by another process become visible.
func (s *Store) Get(ctx context.Context, email string) (*models.User, error) {
	key := models.NormalizeEmail(email)

	s.mu.RLock()
	u, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return u.Clone(), nil
	}

	u, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("reload user: %w", err)
	}

	s.mu.Lock()
	if existing, ok := s.cache[key]; ok {
		u = existing
	} else {
		s.cache[key] = u
	}
	s.mu.Unlock()

	return u.Clone(), nil
}

// List returns copies of all cached users sorted by email.
func (s *Store) List(ctx context.Context) []*models.User {
	s.mu.RLock()
	out := make([]*models.User, 0, len(s.cache))
	for _, u := range s.cache {
		out = append(out, u.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

// Len reports the number of cached users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// Create stores u if no record exists for its email.
func (s *Store) Create(ctx context.Context, u *models.User) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	key := models.NormalizeEmail(u.Email)
	if _, err := s.Get(ctx, key); err == nil {
		return common.ErrorAlreadyExists
	} else if !errors.Is(err, common.ErrorNotFound) {
		return err
	}

	return s.put(ctx, key, u)
}

// Put stores u, replacing any existing record.
func (s *Store) Put(ctx context.Context, u *models.User) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.put(ctx, models.NormalizeEmail(u.Email), u)
}

// Update applies fn to a copy of the current record and stores the result.
// If fn returns an error nothing is written.
func (s *Store) Update(ctx context.Context, email string, fn func(u *models.User) error) (*models.User, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	key := models.NormalizeEmail(email)
	u, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := fn(u); err != nil {
		return nil, err
	}
	u.Email = key

	if err := s.put(ctx, key, u); err != nil {
		return nil, err
	}
	return u.Clone(), nil
}

func (s *Store) put(ctx context.Context, key string, u *models.User) error {
	stored := u.Clone()
	stored.Email = key

	if err := s.repo.Upsert(ctx, stored); err != nil {
		return fmt.Errorf("store user: %w", err)
	}

	s.mu.Lock()
	s.cache[key] = stored
	s.mu.Unlock()
	return nil
}
