package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/accounts/domain"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/accounts/repository"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := repository.NewRedisStore(client)

	ctx := context.Background()
	require.NoError(t, store.AddAccount(ctx, &domain.Account{Sid: "AC1", Email: "root@acme.io", Status: domain.StatusActive, Role: domain.RoleAdministrator}))
	require.NoError(t, store.AddAccount(ctx, &domain.Account{Sid: "AC2", ParentSid: "AC1", Email: "dev@acme.io", Status: domain.StatusActive, Role: domain.RoleDeveloper}))

	r := gin.New()
	New(store, nil).Register(r.Group("/api/v1/accounts"))
	return r
}

func call(r *gin.Engine, method, path, user string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-Id", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAccountRoutes(t *testing.T) {
	r := setupRouter(t)

	w := call(r, http.MethodGet, "/api/v1/accounts/me", "dev@acme.io", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sid":"AC2"`)

	w = call(r, http.MethodGet, "/api/v1/accounts/AC1", "dev@acme.io", nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "developers cannot manage accounts")

	w = call(r, http.MethodGet, "/api/v1/accounts/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(r, http.MethodPost, "/api/v1/accounts", "root@acme.io", map[string]string{"email": "ops@acme.io", "role": "Developer"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = call(r, http.MethodPost, "/api/v1/accounts", "root@acme.io", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(r, http.MethodPost, "/api/v1/accounts", "root@acme.io", map[string]string{"email": "ops@acme.io"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = call(r, http.MethodGet, "/api/v1/accounts/AC1/subaccounts", "root@acme.io", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Accounts []domain.Account `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Len(t, out.Accounts, 2)

	w = call(r, http.MethodPut, "/api/v1/accounts/AC2", "root@acme.io", map[string]string{"status": "suspended"})
	require.Equal(t, http.StatusOK, w.Code)

	w = call(r, http.MethodGet, "/api/v1/accounts/me", "dev@acme.io", nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "suspended accounts are rejected")

	w = call(r, http.MethodDelete, "/api/v1/accounts/AC2", "root@acme.io", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = call(r, http.MethodGet, "/api/v1/accounts/AC2", "root@acme.io", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
