package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/accounts/domain"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/logging"
)

// AccountLookup resolves an authenticated identity to its account.
type AccountLookup interface {
	GetAccountToAuthenticate(ctx context.Context, name string) (*domain.Account, error)
}

// WithIdentity stores the caller identity from the X-User-Id header. Token
// checks happen upstream; a missing header leaves the identity empty.
func WithIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(CtxIdentity, strings.TrimSpace(c.GetHeader(HeaderIdentity)))
		c.Next()
	}
}

// RequireRole rejects callers without an identity (401) and callers whose
// account is inactive or lacks role (403). With a nil accounts every
// identified caller counts as an active Developer.
func RequireRole(accounts AccountLookup, role string, log *zap.Logger) gin.HandlerFunc {
	log = logging.OrNop(log)
	return func(c *gin.Context) {
		id := Identity(c)
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "authentication required"})
			return
		}

		var acct *domain.Account
		if accounts == nil {
			acct = &domain.Account{Sid: id, Email: id, Status: domain.StatusActive, Role: domain.RoleDeveloper}
		} else {
			a, err := accounts.GetAccountToAuthenticate(c.Request.Context(), id)
			if errors.Is(err, domain.ErrAccountNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unknown account"})
				return
			}
			if err != nil {
				log.Error("account lookup failed", zap.String("identity", id), zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "account lookup failed"})
				return
			}
			acct = a
		}

		if !acct.Active() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"ok": false, "error": "account is not active"})
			return
		}
		if !acct.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"ok": false, "error": "requires role " + role})
			return
		}
		c.Set(CtxAccount, acct)
		c.Next()
	}
}
