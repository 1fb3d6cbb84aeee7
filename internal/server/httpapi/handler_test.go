package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/ritw/internal/common"
	"github.com/dmitrijs2005/ritw/internal/cryptox"
	"github.com/dmitrijs2005/ritw/internal/logging"
	"github.com/dmitrijs2005/ritw/internal/server/auth"
	"github.com/dmitrijs2005/ritw/internal/server/models"
	usersrepo "github.com/dmitrijs2005/ritw/internal/server/repositories/users"
	"github.com/dmitrijs2005/ritw/internal/server/services"
	"github.com/dmitrijs2005/ritw/internal/server/statements"
	"github.com/dmitrijs2005/ritw/internal/server/storage/storagetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	ctx := context.Background()

	gw := storagetest.NewSQLite(t)
	repo := usersrepo.NewSQLRepository(gw, statements.NewRegistry(gw))
	require.NoError(t, repo.ProvisionSchema(ctx))

	signer, err := cryptox.NewSigner("test-key")
	require.NoError(t, err)
	us := services.NewUserService(repo, auth.NewIssuer(signer, time.Hour), logging.Discard())

	return NewServer(opts, logging.Discard(), us, gw)
}

func postForm(t *testing.T, h http.Handler, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func do(t *testing.T, h http.Handler, method, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func tokenCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == common.TokenCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", common.TokenCookieName)
	return nil
}

var alice = url.Values{"id": {"u1"}, "name": {"Alice"}, "password": {"secret"}}

func TestSignup_SetsCookieAndRedirects(t *testing.T) {
	h := newTestServer(t, Options{}).NewRouter()

	rec := postForm(t, h, "/signup", alice)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	c := tokenCookie(t, rec)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, "/", c.Path)
	assert.NotEmpty(t, c.Value)

	rec = do(t, h, http.MethodGet, "/me", c)
	require.Equal(t, http.StatusOK, rec.Code)

	var info models.UserInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, models.UserInfo{ID: "u1", Name: "Alice"}, info)
}

func TestSignup_DuplicateIsConflict(t *testing.T) {
	h := newTestServer(t, Options{}).NewRouter()

	require.Equal(t, http.StatusSeeOther, postForm(t, h, "/signup", alice).Code)

	rec := postForm(t, h, "/signup", url.Values{"id": {"u1"}, "name": {"Mallory"}, "password": {"x"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestSignup_Validation(t *testing.T) {
	h := newTestServer(t, Options{}).NewRouter()

	rec := postForm(t, h, "/signup", url.Values{"name": {"Alice"}, "password": {"p"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignin_FailuresAreIndistinguishableByDefault(t *testing.T) {
	h := newTestServer(t, Options{}).NewRouter()
	require.Equal(t, http.StatusSeeOther, postForm(t, h, "/signup", alice).Code)

	wrong := postForm(t, h, "/signin", url.Values{"id": {"u1"}, "password": {"nope"}})
	unknown := postForm(t, h, "/signin", url.Values{"id": {"ghost"}, "password": {"secret"}})

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())

	ok := postForm(t, h, "/signin", url.Values{"id": {"u1"}, "password": {"secret"}})
	require.Equal(t, http.StatusSeeOther, ok.Code)
	tokenCookie(t, ok)
}

func TestSignin_RevealUnknownUser(t *testing.T) {
	h := newTestServer(t, Options{RevealUnknownUser: true}).NewRouter()
	require.Equal(t, http.StatusSeeOther, postForm(t, h, "/signup", alice).Code)

	assert.Equal(t, http.StatusForbidden, postForm(t, h, "/signin", url.Values{"id": {"u1"}, "password": {"nope"}}).Code)
	assert.Equal(t, http.StatusNotFound, postForm(t, h, "/signin", url.Values{"id": {"ghost"}, "password": {"secret"}}).Code)
}

func TestMe_RequiresValidCookie(t *testing.T) {
	h := newTestServer(t, Options{}).NewRouter()

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/me").Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(t, h, http.MethodGet, "/me", &http.Cookie{Name: common.TokenCookieName, Value: "Zm9v"}).Code)
}

func TestSignout_ClearsCookie(t *testing.T) {
	h := newTestServer(t, Options{}).NewRouter()

	rec := postForm(t, h, "/signout", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	c := tokenCookie(t, rec)
	assert.Empty(t, c.Value)
	assert.Less(t, c.MaxAge, 0)
}

func TestChangePasswordAndDelete(t *testing.T) {
	h := newTestServer(t, Options{}).NewRouter()
	c := tokenCookie(t, postForm(t, h, "/signup", alice))

	rec := postForm(t, h, "/me/password", url.Values{"old": {"wrong"}, "new": {"next"}}, c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postForm(t, h, "/me/password", url.Values{"old": {"secret"}, "new": {"next"}}, c)
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, http.StatusSeeOther,
		postForm(t, h, "/signin", url.Values{"id": {"u1"}, "password": {"next"}}).Code)

	rec = do(t, h, http.MethodDelete, "/me", c)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// the old cookie no longer resolves to an account
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/me", c).Code)
}

func TestIndex(t *testing.T) {
	h := newTestServer(t, Options{}).NewRouter()

	rec := do(t, h, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/", &http.Cookie{Name: common.TokenCookieName, Value: "Zm9v"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())

	c := tokenCookie(t, postForm(t, h, "/signup", alice))
	rec = do(t, h, http.MethodGet, "/", c)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/me", rec.Header().Get("Location"))

	c = tokenCookie(t, postForm(t, h, "/signout", nil))
	rec = do(t, h, http.MethodGet, "/", c)
	require.Equal(t, http.StatusOK, rec.Code)
}

type failingUsers struct {
	UserService
	err error
}

func (f failingUsers) Signup(context.Context, models.UserCreateInfo) (*models.User, string, error) {
	return nil, "", f.err
}

func (f failingUsers) Authenticate(context.Context, string) (*models.User, error) {
	return nil, f.err
}

func TestStoreErrorsAreNotLeaked(t *testing.T) {
	s := NewServer(Options{}, logging.Discard(), failingUsers{err: errors.New("db error: relation \"users\" does not exist")}, fakePinger{})
	h := s.NewRouter()

	for _, rec := range []*httptest.ResponseRecorder{
		postForm(t, h, "/signup", alice),
		do(t, h, http.MethodGet, "/", &http.Cookie{Name: common.TokenCookieName, Value: "Zm9v"}),
	} {
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		var body errorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, common.ErrorInternal.Error(), body.Error)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Options{})
	assert.Equal(t, http.StatusOK, do(t, s.NewRouter(), http.MethodGet, "/healthz").Code)

	s.store = fakePinger{err: errors.New("down")}
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s.NewRouter(), http.MethodGet, "/healthz").Code)
}

func TestRequestID(t *testing.T) {
	h := newTestServer(t, Options{}).NewRouter()

	rec := do(t, h, http.MethodGet, "/healthz")
	_, err := uuid.Parse(rec.Header().Get(requestIDHeader))
	require.NoError(t, err)

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, id)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get(requestIDHeader))
}

func TestCORS_AllowsConfiguredOriginWithCredentials(t *testing.T) {
	h := newTestServer(t, Options{AllowedOrigins: []string{"https://app.example"}}).NewRouter()

	req := httptest.NewRequest(http.MethodOptions, "/signin", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestServe_StopsOnCancel(t *testing.T) {
	s := newTestServer(t, Options{})

	listen, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, listen) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + listen.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
