package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/accounts/domain"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/accounts/service"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/auth"
)

// GetProfile returns the caller's account
func (h *Handler) GetProfile(c *gin.Context) {
	acct, ok := auth.Account(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "user not authenticated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "account": acct})
}

func (h *Handler) GetAccount(c *gin.Context) {
	actor, _ := auth.Account(c)
	a, err := h.accountService.Get(c.Request.Context(), actor, c.Param("sid"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "account": a})
}

func (h *Handler) ListSubAccounts(c *gin.Context) {
	actor, _ := auth.Account(c)
	subs, err := h.accountService.SubAccounts(c.Request.Context(), actor, c.Param("sid"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if subs == nil {
		subs = []domain.Account{}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "accounts": subs})
}

// CreateSubAccount adds an account under the caller
func (h *Handler) CreateSubAccount(c *gin.Context) {
	var req service.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid request body", "details": err.Error()})
		return
	}
	actor, _ := auth.Account(c)
	a, err := h.accountService.CreateSubAccount(c.Request.Context(), actor, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "account": a})
}

// UpdateAccount changes the fields present in the body and keeps the rest
func (h *Handler) UpdateAccount(c *gin.Context) {
	var req service.UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid request body"})
		return
	}
	actor, _ := auth.Account(c)
	a, err := h.accountService.Update(c.Request.Context(), actor, c.Param("sid"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "account": a})
}

func (h *Handler) RemoveAccount(c *gin.Context) {
	actor, _ := auth.Account(c)
	if err := h.accountService.Remove(c.Request.Context(), actor, c.Param("sid")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": err.Error()})
	case errors.Is(err, domain.ErrAccountExists):
		c.JSON(http.StatusConflict, gin.H{"ok": false, "error": err.Error()})
	case errors.Is(err, domain.ErrInvalidAccount):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"ok": false, "error": err.Error()})
	default:
		h.log.Error("account request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "account operation failed"})
	}
}
