package http

import (
	"github.com/gin-gonic/gin"

	accountsdomain "github.com/GoSim-25-26J-441/rvd-backend/internal/accounts/domain"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/auth"
)

// Register attaches project routes to the given router group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg = rg.Group("", auth.WithIdentity())

	user := auth.RequireRole(h.accounts, accountsdomain.RoleRestcommUser, h.log)
	dev := auth.RequireRole(h.accounts, accountsdomain.RoleDeveloper, h.log)

	upload := func(final gin.HandlerFunc) []gin.HandlerFunc {
		chain := []gin.HandlerFunc{dev}
		if h.uploadLimiter != nil {
			chain = append(chain, h.uploadLimiter)
		}
		return append(chain, final)
	}

	rg.GET("", user, h.list)
	rg.POST("", upload(h.importArchive)...)

	rg.PUT("/:name", dev, h.create)
	rg.GET("/:name", user, h.get)
	rg.POST("/:name", dev, h.update)
	rg.DELETE("/:name", dev, h.delete)
	rg.GET("/:name/info", user, h.info)
	rg.PUT("/:name/rename", dev, h.rename)
	rg.PUT("/:name/upgrade", dev, h.upgrade)
	rg.POST("/:name/build", dev, h.build)
	rg.GET("/:name/archive", user, h.archive)

	rg.GET("/:name/settings", user, h.getSettings)
	rg.POST("/:name/settings", dev, h.saveSettings)
	rg.GET("/:name/cc", user, h.getCallControl)
	rg.POST("/:name/cc", dev, h.saveCallControl)

	rg.GET("/:name/wavs", user, h.listWavs)
	rg.POST("/:name/wavs", upload(h.uploadWav)...)
	rg.DELETE("/:name/wavs", dev, h.removeWav)
	// Streamed to the media server, which carries no identity.
	rg.GET("/:name/wavs/:file", h.streamWav)
}
