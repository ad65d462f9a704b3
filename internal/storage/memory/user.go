package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/rryowa/botgate/internal/models"
	"github.com/rryowa/botgate/internal/storage"
)

// InMemoryUserRepository keeps users in process memory. Every read returns a copy,
// so callers can't mutate stored state behind the repository's back.
type InMemoryUserRepository struct {
	mu      sync.RWMutex
	users   map[string]models.User
	byEmail map[string]string
	log     *zap.SugaredLogger
}

var _ storage.UserRepository = (*InMemoryUserRepository)(nil)

func NewUserRepository(log *zap.SugaredLogger) *InMemoryUserRepository {
	return &InMemoryUserRepository{
		users:   make(map[string]models.User),
		byEmail: make(map[string]string),
		log:     log,
	}
}

func (m *InMemoryUserRepository) FindByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return cloneUser(m.users[id]), nil
}

func (m *InMemoryUserRepository) FindByID(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (m *InMemoryUserRepository) Create(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[user.Email]; ok {
		return storage.ErrUserExists
	}
	m.users[user.ID] = *cloneUser(*user)
	m.byEmail[user.Email] = user.ID
	m.log.Debugw("User created", "userID", user.ID)

	return nil
}

func (m *InMemoryUserRepository) Save(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.users[user.ID]
	if !ok {
		return storage.ErrUserNotFound
	}
	if prev.Email != user.Email {
		if _, taken := m.byEmail[user.Email]; taken {
			return storage.ErrUserExists
		}
		delete(m.byEmail, prev.Email)
		m.byEmail[user.Email] = user.ID
	}
	m.users[user.ID] = *cloneUser(*user)
	m.log.Debugw("User saved", "userID", user.ID, "sessions", len(user.SessionRecords))

	return nil
}

func (m *InMemoryUserRepository) RotateSession(
	_ context.Context,
	userID, family, expectedVersion string,
	next models.RefreshTokenRecord,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	for i, rec := range u.SessionRecords {
		if rec.Family != family {
			continue
		}
		if rec.Version != expectedVersion {
			return storage.ErrSessionConflict
		}
		u.SessionRecords[i] = models.RefreshTokenRecord{
			Family:    family,
			Version:   next.Version,
			ExpiresAt: next.ExpiresAt,
		}
		m.users[userID] = u
		return nil
	}
	return storage.ErrSessionConflict
}

func (m *InMemoryUserRepository) DeleteSessionFamily(_ context.Context, userID, family string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return nil
	}
	kept := u.SessionRecords[:0]
	for _, rec := range u.SessionRecords {
		if rec.Family != family {
			kept = append(kept, rec)
		}
	}
	u.SessionRecords = kept
	m.users[userID] = u

	return nil
}

func cloneUser(u models.User) *models.User {
	cp := u
	if u.SessionRecords != nil {
		cp.SessionRecords = append([]models.RefreshTokenRecord(nil), u.SessionRecords...)
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		cp.LastLogin = &t
	}
	return &cp
}
