package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/ec-shop/internal/domain/user"
)

// UserRepository stores users and their sessions.
type UserRepository struct {
	mu       sync.RWMutex
	users    map[string]user.User
	sessions map[string]user.Session
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:    make(map[string]user.User),
		sessions: make(map[string]user.Session),
	}
}

func (r *UserRepository) Insert(ctx context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return user.ErrEmailTaken
		}
	}
	r.users[u.ID] = *u
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return &u, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, user.ErrUserNotFound
}

func (r *UserRepository) InsertSession(ctx context.Context, s *user.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = *s
	return nil
}

func (r *UserRepository) FindSession(ctx context.Context, id string) (*user.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, user.ErrSessionNotFound
	}
	return &s, nil
}

func (r *UserRepository) EndSession(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return user.ErrSessionNotFound
	}
	s.LogoutTime = &at
	r.sessions[id] = s
	return nil
}

func (r *UserRepository) ListSessions(ctx context.Context, userID string) ([]*user.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []*user.Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			s := s
			list = append(list, &s)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].LoginTime.After(list[j].LoginTime) })
	return list, nil
}
