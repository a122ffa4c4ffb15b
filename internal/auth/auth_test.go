package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/accounts/domain"
)

type fakeAccounts map[string]*domain.Account

func (f fakeAccounts) GetAccountToAuthenticate(_ context.Context, name string) (*domain.Account, error) {
	if name == "broken" {
		return nil, errors.New("db down")
	}
	a, ok := f[name]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return a, nil
}

func setupRouter(accounts AccountLookup, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WithIdentity())
	r.GET("/p", RequireRole(accounts, role, nil), func(c *gin.Context) {
		a, _ := Account(c)
		c.JSON(http.StatusOK, gin.H{"identity": Identity(c), "role": a.Role})
	})
	return r
}

func call(r *gin.Engine, identity string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	if identity != "" {
		req.Header.Set(HeaderIdentity, identity)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireRole(t *testing.T) {
	accounts := fakeAccounts{
		"admin":     {Sid: "AC1", Status: domain.StatusActive, Role: domain.RoleAdministrator},
		"dev":       {Sid: "AC2", Status: domain.StatusActive, Role: domain.RoleDeveloper},
		"user":      {Sid: "AC3", Status: domain.StatusActive, Role: domain.RoleRestcommUser},
		"suspended": {Sid: "AC4", Status: domain.StatusSuspended, Role: domain.RoleAdministrator},
	}
	r := setupRouter(accounts, domain.RoleDeveloper)

	tests := []struct {
		identity string
		want     int
	}{
		{"", http.StatusUnauthorized},
		{"stranger", http.StatusUnauthorized},
		{"admin", http.StatusOK},
		{"dev", http.StatusOK},
		{"user", http.StatusForbidden},
		{"suspended", http.StatusForbidden},
		{"broken", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.identity, func(t *testing.T) {
			w := call(r, tt.identity)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestRequireRoleWithoutAccounts(t *testing.T) {
	r := setupRouter(nil, domain.RoleDeveloper)

	w := call(r, "  alice ")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"identity":"alice","role":"Developer"}`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, call(r, "").Code)

	admin := setupRouter(nil, domain.RoleAdministrator)
	assert.Equal(t, http.StatusForbidden, call(admin, "alice").Code)
}
