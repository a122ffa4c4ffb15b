package http

import (
	"github.com/gin-gonic/gin"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/accounts/domain"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/auth"
)

func (h *Handler) Register(rg *gin.RouterGroup) {
	rg = rg.Group("", auth.WithIdentity())
	user := auth.RequireRole(h.store, domain.RoleRestcommUser, h.log)
	admin := auth.RequireRole(h.store, domain.RoleAdministrator, h.log)

	rg.GET("/me", user, h.GetProfile)
	rg.POST("", admin, h.CreateSubAccount)
	rg.GET("/:sid", admin, h.GetAccount)
	rg.GET("/:sid/subaccounts", admin, h.ListSubAccounts)
	rg.PUT("/:sid", admin, h.UpdateAccount)
	rg.DELETE("/:sid", admin, h.RemoveAccount)
}
