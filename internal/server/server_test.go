package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sriramreddyM/coco-annotator/internal/auth"
	"github.com/sriramreddyM/coco-annotator/internal/config"
	"github.com/sriramreddyM/coco-annotator/internal/db/models"
	"github.com/sriramreddyM/coco-annotator/internal/services/annotation"
	"github.com/sriramreddyM/coco-annotator/internal/services/iam"
	"github.com/sriramreddyM/coco-annotator/internal/services/images"
	"github.com/sriramreddyM/coco-annotator/internal/services/imaging"
	"github.com/sriramreddyM/coco-annotator/internal/services/users"
)

// stubIAM resolves every request to principal (anonymous when nil) or err.
type stubIAM struct {
	principal *iam.Principal
	err       error
}

func (s *stubIAM) AuthenticateRequest(context.Context, iam.AuthRequest) (*iam.Principal, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.principal != nil {
		return s.principal, nil
	}
	return s.Anonymous(), nil
}

func (s *stubIAM) Anonymous() *iam.Principal {
	return iam.NewAnonymousPrincipal(iam.AnonymousPolicy(config.AnonymousPermissive))
}

func (s *stubIAM) PrincipalFor(user *models.User, method iam.Method, sessionID string) *iam.Principal {
	return iam.NewUserPrincipal(user, method, sessionID, nil)
}

func (s *stubIAM) Authorize(context.Context, *iam.Principal, string, iam.Resource) error { return nil }
func (s *stubIAM) Touch(context.Context, *iam.Principal) error                          { return nil }
func (s *stubIAM) RevokeSession(context.Context, string) error                          { return nil }

func (s *stubIAM) CreateSession(context.Context, *models.User, iam.SessionMeta) (*models.Session, string, error) {
	return nil, "", errors.New("not implemented")
}

func (s *stubIAM) IssueToken(context.Context, *models.User) (string, error) {
	return "", errors.New("not implemented")
}

type mockUserService struct {
	login       func(username, password string) (*users.LoginResult, error)
	leaderboard *users.Leaderboard
	liveCount   int
	livePrinc   *iam.Principal
}

func (m *mockUserService) Register(_ context.Context, in users.RegisterInput, meta iam.SessionMeta) (*users.LoginResult, error) {
	return m.Login(context.Background(), in.Username, in.Password, meta)
}

func (m *mockUserService) Login(_ context.Context, username, password string, _ iam.SessionMeta) (*users.LoginResult, error) {
	if m.login == nil {
		return nil, users.ErrInvalidCredentials
	}
	return m.login(username, password)
}

func (m *mockUserService) LoginToken(context.Context, string, string) (string, *models.User, error) {
	return "signed.token.value", &models.User{Username: "alice"}, nil
}

func (m *mockUserService) Logout(context.Context, *iam.Principal) error { return nil }

func (m *mockUserService) ChangePassword(_ context.Context, _ *iam.Principal, current, _ string) error {
	if current != "old" {
		return users.ErrPasswordMismatch
	}
	return nil
}

func (m *mockUserService) Live(_ context.Context, p *iam.Principal) (int, error) {
	m.livePrinc = p
	return m.liveCount, nil
}

func (m *mockUserService) Leaderboard(context.Context) (*users.Leaderboard, error) {
	if m.leaderboard == nil {
		return &users.Leaderboard{ImageChart: map[string]int{}, AnnotationChart: map[string]int{}}, nil
	}
	return m.leaderboard, nil
}

type mockImageService struct {
	page       *images.Page
	listParams images.ListParams
	rendered   []byte
	renderOpts imaging.Options
	renderErr  error
	uploaded   images.UploadInput
	updateErr  error
	flagged    map[int64]bool
}

func (m *mockImageService) List(_ context.Context, _ *iam.Principal, params images.ListParams) (*images.Page, error) {
	m.listParams = params
	return m.page, nil
}

func (m *mockImageService) Upload(_ context.Context, _ *iam.Principal, in images.UploadInput) (int64, error) {
	m.uploaded = in
	return 42, nil
}

func (m *mockImageService) Render(_ context.Context, _ *iam.Principal, id int64, opts imaging.Options) ([]byte, *models.Image, error) {
	m.renderOpts = opts
	if m.renderErr != nil {
		return nil, nil, m.renderErr
	}
	return m.rendered, &models.Image{ID: id, FileName: "cat 1.png"}, nil
}

func (m *mockImageService) Delete(context.Context, *iam.Principal, int64) error { return nil }

func (m *mockImageService) Update(_ context.Context, p *iam.Principal, id int64, in images.UpdateInput) (*models.Image, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return &models.Image{ID: id, CSAnnotating: in.Annotating, CSAnnotated: models.StringSet{p.Username()}}, nil
}

func (m *mockImageService) Flag(_ context.Context, _ *iam.Principal, id int64, flagged bool) error {
	if m.flagged == nil {
		m.flagged = map[int64]bool{}
	}
	m.flagged[id] = flagged
	return nil
}

func (m *mockImageService) Approve(context.Context, *iam.Principal, int64) error {
	return iam.ErrPermissionDenied
}

type mockAnnotationService struct {
	copyErr error
}

func (m *mockAnnotationService) CopyAnnotations(context.Context, *iam.Principal, int64, int64, []int64) (int, error) {
	if m.copyErr != nil {
		return 0, m.copyErr
	}
	return 3, nil
}

func (m *mockAnnotationService) ImageCOCO(context.Context, *iam.Principal, int64) (*annotation.COCO, error) {
	return &annotation.COCO{}, nil
}

type fixture struct {
	iam         *stubIAM
	users       *mockUserService
	images      *mockImageService
	annotations *mockAnnotationService
	handler     http.Handler
}

func newFixture(t *testing.T, loginDisabled bool) *fixture {
	t.Helper()
	f := &fixture{
		iam:         &stubIAM{},
		users:       &mockUserService{},
		images:      &mockImageService{},
		annotations: &mockAnnotationService{},
	}
	f.handler = NewRouter(RouterOptions{
		IAMService:    f.iam,
		Users:         f.users,
		Images:        f.images,
		Annotations:   f.annotations,
		LoginDisabled: loginDisabled,
		Logger:        slog.New(slog.DiscardHandler),
	})
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func alice() *iam.Principal {
	return iam.NewUserPrincipal(&models.User{ID: "u1", Username: "alice"}, iam.MethodCookie, "s1", nil)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestAnonymousLeaderboard(t *testing.T) {
	f := newFixture(t, false)
	f.users.leaderboard = &users.Leaderboard{
		Images:          3,
		Annotations:     5,
		ImageChart:      map[string]int{"alice": 3},
		AnnotationChart: map[string]int{"bob": 5},
	}

	rec := f.do(t, http.MethodGet, "/api/user/leaderboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, map[string]any{"images": float64(3), "annotations": float64(5)}, body["leaderboard"])
	assert.Equal(t, map[string]any{"alice": float64(3)}, body["image_chart"])
	assert.Equal(t, map[string]any{"bob": float64(5)}, body["annotation_chart"])
}

func TestLoginRequiredEndpoints(t *testing.T) {
	f := newFixture(t, false)

	tests := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/user/"},
		{http.MethodPost, "/api/user/password"},
		{http.MethodGet, "/api/user/logout"},
		{http.MethodGet, "/api/user/live"},
		{http.MethodGet, "/api/image/"},
		{http.MethodDelete, "/api/image/1"},
		{http.MethodGet, "/api/image/1/coco"},
		{http.MethodPost, "/api/image/copy/1/2/annotations"},
		{http.MethodPost, "/api/image/approve"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
		})
	}
}

func TestAuthenticationFailureIsNotAnonymous(t *testing.T) {
	f := newFixture(t, false)
	f.iam.err = iam.ErrTokenExpired

	rec := f.do(t, http.MethodGet, "/api/user/leaderboard", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "expired")
}

func TestMe(t *testing.T) {
	t.Run("authenticated", func(t *testing.T) {
		f := newFixture(t, false)
		f.iam.principal = alice()

		rec := f.do(t, http.MethodGet, "/api/user/", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		user, ok := body["user"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "alice", user["username"])
		assert.NotContains(t, user, "password_hash")
	})

	t.Run("login disabled returns the anonymous identity", func(t *testing.T) {
		f := newFixture(t, true)

		rec := f.do(t, http.MethodGet, "/api/user/", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, iam.AnonymousUsername, body["username"])
		assert.Equal(t, iam.AnonymousName, body["name"])
		assert.Equal(t, true, body["anonymous"])
		assert.Equal(t, false, body["is_admin"])
	})
}

func TestLogin(t *testing.T) {
	f := newFixture(t, false)
	expires := time.Now().Add(time.Hour)
	f.users.login = func(username, password string) (*users.LoginResult, error) {
		if username != "alice" || password != "secret" {
			return nil, users.ErrInvalidCredentials
		}
		return &users.LoginResult{
			User:         &models.User{ID: "u1", Username: "alice"},
			Session:      &models.Session{ID: "s1", ExpiresAt: expires},
			SessionToken: "session-token",
		}, nil
	}

	t.Run("success sets the session cookie", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/user/login", map[string]string{"username": "alice", "password": "secret"})
		require.Equal(t, http.StatusOK, rec.Code)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, auth.SessionCookieName, cookies[0].Name)
		assert.Equal(t, "session-token", cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)

		body := decodeBody(t, rec)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "alice", body["user"].(map[string]any)["username"])
	})

	t.Run("bad credentials", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/user/login", map[string]string{"username": "alice", "password": "nope"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "Could not authenticate user", body["message"])
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/user/login", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid request body", decodeBody(t, rec)["message"])
	})
}

func TestLoginToken(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodPost, "/api/user/login/token", map[string]string{"username": "alice", "password": "secret"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "signed.token.value", decodeBody(t, rec)["token"])
}

func TestLogoutClearsCookie(t *testing.T) {
	f := newFixture(t, false)
	f.iam.principal = alice()

	rec := f.do(t, http.MethodGet, "/api/user/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.SessionCookieName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t, false)
	f.iam.principal = alice()

	rec := f.do(t, http.MethodPost, "/api/user/password", map[string]string{"password": "wrong", "new_password": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Password does not match current password", decodeBody(t, rec)["message"])

	rec = f.do(t, http.MethodPost, "/api/user/password", map[string]string{"password": "old", "new_password": "x"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLive(t *testing.T) {
	f := newFixture(t, false)
	f.iam.principal = alice()
	f.users.liveCount = 4

	rec := f.do(t, http.MethodGet, "/api/user/live", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(4), body["live_count"])
	assert.Equal(t, "alice", f.users.livePrinc.Username())
}

func TestListImages(t *testing.T) {
	f := newFixture(t, false)
	f.iam.principal = alice()
	f.images.page = &images.Page{
		Total:   2,
		Pages:   1,
		Page:    1,
		PerPage: 50,
		Images: []models.Image{
			{ID: 1, FileName: "a.png", Width: 10, Height: 20},
			{ID: 2, FileName: "b.png", Width: 30, Height: 40},
		},
	}

	rec := f.do(t, http.MethodGet, "/api/image/?page=1&per_page=50&fields=file_name,width", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, images.ListParams{Page: 1, PerPage: 50}, f.images.listParams)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["total"])
	assert.Equal(t, "file_name,width", body["fields"])

	list, ok := body["images"].([]any)
	require.True(t, ok)
	require.Len(t, list, 2)
	assert.Equal(t, map[string]any{"id": float64(1), "file_name": "a.png", "width": float64(10)}, list[0])

	rec = f.do(t, http.MethodGet, "/api/image/?per_page=many", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProject(t *testing.T) {
	items := []models.Image{{ID: 7, FileName: "x.png", Width: 5}}

	all, err := project(items, parseFields(""))
	require.NoError(t, err)
	assert.Contains(t, string(all[0]), `"height"`)

	some, err := project(items, parseFields(" width , missing,,id"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"width":5}`, string(some[0]))
}

func TestGetImage(t *testing.T) {
	f := newFixture(t, false)
	f.images.rendered = []byte{0xff, 0xd8, 0xff}

	t.Run("jpeg response", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/image/5?width=100&thumbnail=true&asAttachment=true", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="cat 1.png"`, rec.Header().Get("Content-Disposition"))
		assert.Equal(t, "3", rec.Header().Get("Content-Length"))
		assert.Equal(t, f.images.rendered, rec.Body.Bytes())
		assert.Equal(t, imaging.Options{Width: 100, Thumbnail: true}, f.images.renderOpts)
	})

	t.Run("inline by default", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/image/5", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `inline; filename="cat 1.png"`, rec.Header().Get("Content-Disposition"))
	})

	t.Run("unknown image", func(t *testing.T) {
		f.images.renderErr = images.ErrInvalidImageID
		defer func() { f.images.renderErr = nil }()

		rec := f.do(t, http.MethodGet, "/api/image/404", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"success":false}`, rec.Body.String())
	})

	t.Run("non-numeric id", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/image/abc", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"success":false}`, rec.Body.String())
	})
}

func TestUpload(t *testing.T) {
	f := newFixture(t, false)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("dataset_id", "3"))
	require.NoError(t, mw.WriteField("latitude", "51.5"))
	part, err := mw.CreateFormFile("image", "photo.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("image-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/image/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "42\n", rec.Body.String())
	assert.Equal(t, int64(3), f.images.uploaded.DatasetID)
	assert.Equal(t, "photo.jpg", f.images.uploaded.FileName)
	assert.Equal(t, []byte("image-bytes"), f.images.uploaded.Data)
	require.NotNil(t, f.images.uploaded.Latitude)
	assert.InDelta(t, 51.5, *f.images.uploaded.Latitude, 1e-9)
	assert.Nil(t, f.images.uploaded.Longitude)
}

func TestUpdateImage(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPut, "/api/image/9", map[string]bool{"cs_annotating": true, "is_annotations_added": true})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Updated image", body["message"])
	assert.Equal(t, true, body["annotating"])
	assert.Equal(t, []any{iam.AnonymousUsername}, body["annotated by"])

	f.images.updateErr = images.ErrInvalidImageID
	rec = f.do(t, http.MethodPut, "/api/image/9", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid image id", decodeBody(t, rec)["message"])
}

func TestFlagAndApprove(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/api/image/flag", map[string]any{"image_id": 4, "is_flagged": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[int64]bool{4: true}, f.images.flagged)

	f.iam.principal = alice()
	rec = f.do(t, http.MethodPost, "/api/image/approve", map[string]any{"image_id": 4})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["success"])
}

func TestCopyAnnotations(t *testing.T) {
	f := newFixture(t, false)
	f.iam.principal = alice()

	rec := f.do(t, http.MethodPost, "/api/image/copy/1/2/annotations", map[string]any{"category_ids": []int64{1}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), decodeBody(t, rec)["annotations_created"])

	tests := []struct {
		err     error
		message string
	}{
		{annotation.ErrCopySelf, "Cannot copy self"},
		{annotation.ErrSizeMismatch, "Image sizes do not match"},
		{annotation.ErrInvalidImageIDs, "Invalid image ids"},
	}
	for _, tt := range tests {
		f.annotations.copyErr = tt.err
		rec := f.do(t, http.MethodPost, "/api/image/copy/1/2/annotations", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, tt.message, decodeBody(t, rec)["message"])
	}
}

func TestUnknownErrorsAreHidden(t *testing.T) {
	f := newFixture(t, false)
	f.iam.principal = alice()
	f.annotations.copyErr = errors.New("disk on fire")

	rec := f.do(t, http.MethodPost, "/api/image/copy/1/2/annotations", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk")
}

func TestLoginDisabledOpensGatedEndpoints(t *testing.T) {
	f := newFixture(t, true)
	f.images.page = &images.Page{Page: 1, PerPage: 50}

	rec := f.do(t, http.MethodGet, "/api/image/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
