package iam

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sriramreddyM/coco-annotator/internal/auth"
	"github.com/sriramreddyM/coco-annotator/internal/db/models"
	"github.com/sriramreddyM/coco-annotator/internal/repository"
)

// mockUserRepository is an in-memory UserRepository for testing
type mockUserRepository struct {
	mu      sync.Mutex
	users   map[string]*models.User // id → user
	lookups int
	err     error
}

func newMockUserRepository(users ...*models.User) *mockUserRepository {
	m := &mockUserRepository{users: make(map[string]*models.User)}
	for _, u := range users {
		u.UsernameFold = auth.FoldUsername(u.Username)
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUserRepository) Create(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.UsernameFold = auth.FoldUsername(user.Username)
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.err != nil {
		return nil, m.err
	}
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("%w: user %s", repository.ErrNotFound, id)
}

func (m *mockUserRepository) GetByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.users {
		if u.UsernameFold == auth.FoldUsername(username) {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: user %q", repository.ErrNotFound, username)
}

func (m *mockUserRepository) Count(context.Context) (int, error) { return len(m.users), nil }

func (m *mockUserRepository) List(context.Context) ([]models.User, error) {
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

func (m *mockUserRepository) ListSeenSince(_ context.Context, since time.Time) ([]models.User, error) {
	var out []models.User
	for _, u := range m.users {
		if u.LastSeen != nil && !u.LastSeen.Before(since) {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *mockUserRepository) SetPasswordHash(_ context.Context, id, hash string) error {
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *mockUserRepository) TouchLastSeen(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.LastSeen = &at
	return nil
}

func (m *mockUserRepository) IncrementContributions(_ context.Context, id string, images, annotations int) error {
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.CSImages += images
	u.CSAnnotations += annotations
	return nil
}

// mockSessionRepository for testing
type mockSessionRepository struct {
	users    *mockUserRepository
	sessions map[string]*models.Session // tokenHash → session
	err      error
}

func newMockSessionRepository(users *mockUserRepository) *mockSessionRepository {
	return &mockSessionRepository{users: users, sessions: make(map[string]*models.Session)}
}

func (m *mockSessionRepository) Create(_ context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = fmt.Sprintf("session-%d", len(m.sessions)+1)
	}
	m.sessions[session.TokenHash] = session
	return nil
}

func (m *mockSessionRepository) GetByTokenHash(_ context.Context, tokenHash string) (*models.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.sessions[tokenHash]
	if !ok {
		return nil, fmt.Errorf("%w: session", repository.ErrNotFound)
	}
	s.User = m.users.users[s.UserID]
	return s, nil
}

func (m *mockSessionRepository) Revoke(_ context.Context, id string) error {
	for _, s := range m.sessions {
		if s.ID == id {
			s.Revoked = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *mockSessionRepository) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	n := 0
	for hash, s := range m.sessions {
		if s.ExpiresAt.Before(now) {
			delete(m.sessions, hash)
			n++
		}
	}
	return n, nil
}

// mockAuthenticator returns a canned result
type mockAuthenticator struct {
	method    Method
	principal *Principal
	err       error
	called    bool
}

func (m *mockAuthenticator) Authenticate(context.Context, AuthRequest) (*Principal, error) {
	m.called = true
	return m.principal, m.err
}

func (m *mockAuthenticator) Method() Method { return m.method }

var errStoreDown = errors.New("store unavailable")
