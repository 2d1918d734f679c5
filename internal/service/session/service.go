// Package session holds the currently authenticated actor for the process
// lifetime, backed by a durable snapshot for fast resume.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-sync/internal/model"
	"github.com/jwalitptl/clinic-sync/internal/repository"
	"github.com/jwalitptl/clinic-sync/internal/store"
	"github.com/jwalitptl/clinic-sync/pkg/apperror"
	"github.com/jwalitptl/clinic-sync/pkg/logger"
	"github.com/jwalitptl/clinic-sync/pkg/security"
)

const (
	snapshotKey = "session.current_user"
	cacheKey    = "current_user"
)

// Service is the process-wide session cache. The in-memory entry and the
// durable snapshot are always written together so they never disagree
// about the current actor. Both hold the encoded snapshot; Current decodes
// a fresh copy per call, so callers can mutate the result freely.
type Service struct {
	users  repository.UserRepository
	store  *store.Store
	cache  *gocache.Cache
	hasher security.PasswordHasher
	log    *logger.Logger

	mu sync.Mutex
}

// NewService creates the session service.
func NewService(users repository.UserRepository, s *store.Store, hasher security.PasswordHasher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewLogger(nil)
	}
	return &Service{
		users:  users,
		store:  s,
		cache:  gocache.New(gocache.NoExpiration, 10*time.Minute),
		hasher: hasher,
		log:    log,
	}
}

// Register validates uniqueness, persists the new user and makes it the
// current actor.
func (s *Service) Register(ctx context.Context, req *model.CreateUserRequest) (*model.User, error) {
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperror.Validation(err.Error())
	}

	user, err := s.users.Create(ctx, req, hash)
	if err != nil {
		return nil, err
	}
	if err := s.setCurrent(ctx, user); err != nil {
		return nil, err
	}
	s.log.Info("user registered", "user_id", user.ID, "role", string(user.Role))
	return user, nil
}

// Login verifies credentials and makes the user the current actor.
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.Unauthorized("invalid credentials")
		}
		return nil, err
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, apperror.Unauthorized("invalid credentials")
	}
	if err := s.setCurrent(ctx, user); err != nil {
		return nil, err
	}
	s.log.Info("user logged in", "user_id", user.ID)
	return user, nil
}

// Current returns the current actor: from the in-memory cache when warm,
// otherwise resumed from the durable snapshot. Absence means not
// authenticated.
func (s *Service) Current(ctx context.Context) (*model.User, error) {
	if cached, ok := s.cache.Get(cacheKey); ok {
		return decodeUser(cached.([]byte))
	}

	raw, err := s.store.KVGet(ctx, snapshotKey)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.Unauthorized("not authenticated")
		}
		return nil, err
	}

	s.cache.Set(cacheKey, raw, gocache.NoExpiration)
	return decodeUser(raw)
}

func decodeUser(raw []byte) (*model.User, error) {
	var user model.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, apperror.Internal(err)
	}
	return &user, nil
}

// UpdateProfile persists profile changes and refreshes both session
// representations when the current actor edited themselves.
func (s *Service) UpdateProfile(ctx context.Context, user *model.User) (*model.User, error) {
	updated, err := s.users.Update(ctx, user)
	if err != nil {
		return nil, err
	}

	current, err := s.Current(ctx)
	if err == nil && current.ID == updated.ID {
		if err := s.setCurrent(ctx, updated); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

// Logout clears the cache and the durable snapshot together.
func (s *Service) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.KVDelete(ctx, snapshotKey); err != nil {
		return err
	}
	s.cache.Delete(cacheKey)
	s.log.Info("session cleared")
	return nil
}

func (s *Service) setCurrent(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(user)
	if err != nil {
		return apperror.Internal(err)
	}
	if err := s.store.KVPut(ctx, snapshotKey, raw); err != nil {
		return err
	}
	s.cache.Set(cacheKey, raw, gocache.NoExpiration)
	return nil
}
