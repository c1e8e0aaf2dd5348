package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/mind-engage/quizdesk/internal/auth/middleware"
	"github.com/mind-engage/quizdesk/internal/db/dbtest"
	"github.com/mind-engage/quizdesk/internal/logging"
	"github.com/mind-engage/quizdesk/internal/rbac"
	"github.com/mind-engage/quizdesk/internal/users"
)

func TestIssueAndParse(t *testing.T) {
	a := auth.NewAuthService("k1", time.Hour)
	tok, err := a.IssueJWT("u-1", "manager")
	require.NoError(t, err)

	c, err := a.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u-1", c.Subject)
	assert.Equal(t, "manager", c.Role)

	_, err = auth.NewAuthService("other", time.Hour).Parse(tok)
	assert.Error(t, err)

	expired, err := auth.NewAuthService("k1", -time.Minute).IssueJWT("u-1", "manager")
	require.NoError(t, err)
	// non-positive ttl falls back to the default
	_, err = a.Parse(expired)
	assert.NoError(t, err)
}

func TestLoginAndMiddleware(t *testing.T) {
	users.BcryptCost = bcrypt.MinCost
	dbh := dbtest.Open(t)
	store := users.NewStore(dbh)
	u, err := store.Create(context.Background(), "mgr", "Manager", "", users.RoleManager, "pw")
	require.NoError(t, err)

	a := auth.NewAuthService("k1", time.Hour)
	login := auth.LoginHandler(a, store, logging.Discard())

	rec := httptest.NewRecorder()
	login(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"mgr","password":"bad"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	login(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"mgr","password":"pw"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))

	var seen auth.Principal
	h := auth.JWTMiddleware(a)(auth.AttachRoleFromDB(dbh, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.PrincipalFromContext(r.Context())
	})))

	req := httptest.NewRequest(http.MethodGet, "/courses", nil)
	req.Header.Set("Authorization", "Bearer "+out.AccessToken)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.Principal{ID: u.ID, Role: users.RoleManager}, seen)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/courses", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// tokens for unknown subjects are refused unless the claim fallback is on
	ghost, err := a.IssueJWT("ghost", users.RoleAdmin)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/courses", nil)
	req.Header.Set("Authorization", "Bearer "+ghost)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	lenient := auth.JWTMiddleware(a)(auth.AttachRoleFromDB(dbh, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, users.RoleAdmin, rbac.RoleFromContext(r.Context()))
	})))
	rec = httptest.NewRecorder()
	lenient.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
