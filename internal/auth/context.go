package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/accounts/domain"
)

const (
	HeaderIdentity = "X-User-Id"

	CtxIdentity = "identity"
	CtxAccount  = "account"
)

// Identity returns the caller identity set by WithIdentity, or "".
func Identity(c *gin.Context) string {
	return strings.TrimSpace(c.GetString(CtxIdentity))
}

// Account returns the account resolved by RequireRole, if any.
func Account(c *gin.Context) (*domain.Account, bool) {
	v, ok := c.Get(CtxAccount)
	if !ok {
		return nil, false
	}
	a, ok := v.(*domain.Account)
	return a, ok
}
