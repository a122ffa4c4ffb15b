package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/auth"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/domain"
)

func (h *Handler) list(c *gin.Context) {
	items, err := h.svc.ListProjects(c.Request.Context(), auth.Identity(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	base := h.appsBase(c)
	for i := range items {
		items[i].StartURL = base + "/" + url.PathEscape(items[i].Name) + "/controller"
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "projects": items})
}

// appsBase is the configured runtime URL, or the apps path on the host the
// request came in on.
func (h *Handler) appsBase(c *gin.Context) string {
	if h.appsBaseURL != "" {
		return strings.TrimRight(h.appsBaseURL, "/")
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if fwd := c.GetHeader("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + c.Request.Host + "/apps"
}

func (h *Handler) create(c *gin.Context) {
	name := c.Param("name")
	state, err := h.svc.CreateProject(c.Request.Context(), name, c.Query("kind"), auth.Identity(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "name": name, "state": state})
}

func (h *Handler) get(c *gin.Context) {
	state, err := h.svc.LoadProject(c.Request.Context(), auth.Identity(c), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "state": state})
}

func (h *Handler) info(c *gin.Context) {
	header, err := h.svc.LoadProjectInfo(c.Request.Context(), auth.Identity(c), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "header": header})
}

func (h *Handler) update(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload))
	if err != nil {
		readBodyFailed(c, err)
		return
	}
	if err := h.svc.UpdateProject(c.Request.Context(), auth.Identity(c), c.Param("name"), body); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) rename(c *gin.Context) {
	newName := strings.TrimSpace(c.Query("newName"))
	if newName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "newName is required"})
		return
	}
	if err := h.svc.RenameProject(c.Request.Context(), auth.Identity(c), c.Param("name"), newName); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "name": newName})
}

func (h *Handler) upgrade(c *gin.Context) {
	name := c.Param("name")
	from, err := h.svc.UpgradeProject(c.Request.Context(), auth.Identity(c), name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "fromVersion": from, "version": h.svc.Version()})
}

func (h *Handler) build(c *gin.Context) {
	m, err := h.svc.BuildProject(c.Request.Context(), auth.Identity(c), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "manifest": m})
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.DeleteProject(c.Request.Context(), auth.Identity(c), c.Param("name")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) getSettings(c *gin.Context) {
	s, err := h.svc.GetSettings(c.Request.Context(), auth.Identity(c), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "settings": s})
}

func (h *Handler) saveSettings(c *gin.Context) {
	var s domain.ProjectSettings
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}
	if err := h.svc.SaveSettings(c.Request.Context(), auth.Identity(c), c.Param("name"), &s); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) getCallControl(c *gin.Context) {
	info, err := h.svc.GetCallControl(c.Request.Context(), auth.Identity(c), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "cc": info})
}

func (h *Handler) saveCallControl(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload))
	if err != nil {
		readBodyFailed(c, err)
		return
	}

	var info *domain.CallControlInfo
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && string(trimmed) != "null" {
		info = &domain.CallControlInfo{}
		if err := json.Unmarshal(trimmed, info); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": fmt.Sprintf("invalid body: %v", err)})
			return
		}
	}
	if err := h.svc.SaveCallControl(c.Request.Context(), auth.Identity(c), c.Param("name"), info); err != nil {
		h.fail(c, err)
		return
	}
	h.log.Debug("call control saved", zap.String("project", c.Param("name")), zap.Bool("cleared", info == nil))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
