package users

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sriramreddyM/coco-annotator/internal/auth"
	"github.com/sriramreddyM/coco-annotator/internal/config"
	"github.com/sriramreddyM/coco-annotator/internal/db/models"
	"github.com/sriramreddyM/coco-annotator/internal/repository"
	"github.com/sriramreddyM/coco-annotator/internal/services/iam"
)

type mockUserRepository struct {
	users  []*models.User
	nextID int
}

func (m *mockUserRepository) Create(_ context.Context, user *models.User) error {
	m.nextID++
	user.ID = fmt.Sprintf("0192a9c0-0000-7000-8000-%012d", m.nextID)
	user.UsernameFold = auth.FoldUsername(user.Username)
	m.users = append(m.users, user)
	return nil
}

func (m *mockUserRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepository) GetByUsername(_ context.Context, username string) (*models.User, error) {
	for _, u := range m.users {
		if auth.SameUsername(u.Username, username) {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
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

func (m *mockUserRepository) SetPasswordHash(ctx context.Context, id, hash string) error {
	u, err := m.GetByID(ctx, id)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (m *mockUserRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	u, err := m.GetByID(ctx, id)
	if err != nil {
		return err
	}
	u.LastSeen = &at
	return nil
}

func (m *mockUserRepository) IncrementContributions(ctx context.Context, id string, images, annotations int) error {
	u, err := m.GetByID(ctx, id)
	if err != nil {
		return err
	}
	u.CSImages += images
	u.CSAnnotations += annotations
	return nil
}

type mockSessionRepository struct {
	sessions []*models.Session
}

func (m *mockSessionRepository) Create(_ context.Context, s *models.Session) error {
	s.ID = fmt.Sprintf("session-%d", len(m.sessions)+1)
	m.sessions = append(m.sessions, s)
	return nil
}

func (m *mockSessionRepository) GetByTokenHash(_ context.Context, hash string) (*models.Session, error) {
	for _, s := range m.sessions {
		if s.TokenHash == hash {
			return s, nil
		}
	}
	return nil, repository.ErrNotFound
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

func (m *mockSessionRepository) DeleteExpired(context.Context, time.Time) (int, error) { return 0, nil }

type fixture struct {
	svc      *Service
	iam      iam.Service
	users    *mockUserRepository
	sessions *mockSessionRepository
	codec    *auth.TokenCodec
	now      time.Time
}

func newFixture(t *testing.T, allowRegistration bool) *fixture {
	t.Helper()
	f := &fixture{
		users:    &mockUserRepository{},
		sessions: &mockSessionRepository{},
		now:      time.Now().UTC(),
	}
	clock := func() time.Time { return f.now }

	codec, err := auth.NewTokenCodec("secret", 300*time.Minute)
	require.NoError(t, err)
	f.codec = codec

	f.iam, err = iam.NewIAMService(iam.IAMServiceDependencies{
		Users:    f.users,
		Sessions: f.sessions,
		Codec:    codec,
		Policy:   iam.AnonymousPolicy(config.AnonymousPermissive),
	}, iam.IAMServiceConfig{SessionTTL: time.Hour, Now: clock})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(f.users, f.iam, Config{AllowRegistration: allowRegistration, LiveWindow: 3 * time.Minute, Now: clock}, logger)
	return f
}

func TestRegister(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	first, err := f.svc.Register(ctx, RegisterInput{Username: "Alice", Password: "pw", Email: "a@example.com"}, iam.SessionMeta{})
	require.NoError(t, err)
	assert.True(t, first.User.IsAdmin, "first account becomes admin")
	assert.NotEmpty(t, first.SessionToken)
	assert.Equal(t, first.Session.ID, first.Principal.SessionID)
	require.NotNil(t, first.User.LastSeen)
	assert.NotEqual(t, "pw", first.User.PasswordHash)

	second, err := f.svc.Register(ctx, RegisterInput{Username: "bob", Password: "pw"}, iam.SessionMeta{})
	require.NoError(t, err)
	assert.False(t, second.User.IsAdmin)

	_, err = f.svc.Register(ctx, RegisterInput{Username: "ALICE", Password: "pw"}, iam.SessionMeta{})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = f.svc.Register(ctx, RegisterInput{Username: " ", Password: "pw"}, iam.SessionMeta{})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestRegister_Disabled(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	// The very first account can always be created.
	_, err := f.svc.Register(ctx, RegisterInput{Username: "root", Password: "pw"}, iam.SessionMeta{})
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, RegisterInput{Username: "bob", Password: "pw"}, iam.SessionMeta{})
	assert.ErrorIs(t, err, ErrRegistrationDisabled)
}

func TestLogin(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Password: "pw"}, iam.SessionMeta{})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "alice", "wrong", iam.SessionMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "nobody", "pw", iam.SessionMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	f.now = f.now.Add(time.Minute)
	res, err := f.svc.Login(ctx, "ALICE", "pw", iam.SessionMeta{UserAgent: "ua"})
	require.NoError(t, err)
	require.NotNil(t, res.User.LastSeen)
	firstSeen := *res.User.LastSeen
	assert.True(t, firstSeen.Equal(f.now))

	f.now = f.now.Add(time.Minute)
	res, err = f.svc.Login(ctx, "alice", "pw", iam.SessionMeta{})
	require.NoError(t, err)
	assert.True(t, res.User.LastSeen.After(firstSeen), "last_seen is non-decreasing across logins")

	require.NoError(t, f.svc.Logout(ctx, res.Principal))
	assert.True(t, f.sessions.sessions[len(f.sessions.sessions)-1].Revoked)
}

func TestLoginToken(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Password: "pw"}, iam.SessionMeta{})
	require.NoError(t, err)

	token, user, err := f.svc.LoginToken(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	claims, err := f.codec.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)

	_, _, err = f.svc.LoginToken(ctx, "alice", "bad")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	res, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Password: "old"}, iam.SessionMeta{})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.ChangePassword(ctx, res.Principal, "nope", "new"), ErrPasswordMismatch)
	require.NoError(t, f.svc.ChangePassword(ctx, res.Principal, "old", "new"))

	_, err = f.svc.Login(ctx, "alice", "new", iam.SessionMeta{})
	assert.NoError(t, err)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, f.iam.Anonymous(), "x", "y"), iam.ErrAuthenticationRequired)
}

func TestLiveCount(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	now := f.now

	seen := func(name string, offset time.Duration) {
		at := now.Add(offset)
		f.users.users = append(f.users.users, &models.User{ID: name, Username: name, LastSeen: &at})
	}
	seen("just-now", 0)
	seen("three-min", -3*time.Minute)
	seen("three-min-29s", -(3*time.Minute + 29*time.Second))
	seen("three-and-a-half", -(3*time.Minute + 30*time.Second)) // 3.5 rounds to 4
	seen("ten-min", -10*time.Minute)
	seen("future-skew", 2*time.Minute)
	f.users.users = append(f.users.users, &models.User{ID: "never", Username: "never"})

	n, err := f.svc.LiveCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// The live ping touches the caller first.
	caller := &models.User{ID: "caller", Username: "caller"}
	f.users.users = append(f.users.users, caller)
	n, err = f.svc.Live(ctx, f.iam.PrincipalFor(caller, iam.MethodCookie, ""))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestLeaderboard(t *testing.T) {
	f := newFixture(t, true)
	f.users.users = []*models.User{
		{ID: "1", Username: "alice", CSImages: 2, CSAnnotations: 5},
		{ID: "2", Username: "bob", CSAnnotations: 1},
		{ID: "3", Username: "carol"},
	}

	lb, err := f.svc.Leaderboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, lb.Images)
	assert.Equal(t, 6, lb.Annotations)
	assert.Equal(t, map[string]int{"alice": 2}, lb.ImageChart)
	assert.Equal(t, map[string]int{"alice": 5, "bob": 1}, lb.AnnotationChart)
}
