package http

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/auth"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/domain"
)

func (h *Handler) listWavs(c *gin.Context) {
	items, err := h.svc.ListWavs(c.Request.Context(), auth.Identity(c), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "wavs": items})
}

// uploadWav stores every file in the multipart body. The "filename" form
// field renames the upload when it holds a single file.
func (h *Handler) uploadWav(c *gin.Context) {
	files, ok := h.uploadedFiles(c, "wav")
	if !ok {
		return
	}
	rename := strings.TrimSpace(c.PostForm("filename"))
	if len(files) > 1 {
		rename = ""
	}

	var first *domain.WavItem
	results := make([]uploadResult, 0, len(files))
	for _, uf := range files {
		filename := rename
		if filename == "" {
			filename = filepath.Base(uf.header.Filename)
		}
		item, err := h.storeWav(c, uf, filename)
		if err != nil {
			h.fail(c, err)
			return
		}
		if first == nil {
			first = item
		}
		results = append(results, uploadResult{FieldName: uf.field, Name: item.Filename, Size: item.Size})
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "wav": first, "files": results})
}

func (h *Handler) storeWav(c *gin.Context, uf uploadedFile, filename string) (*domain.WavItem, error) {
	f, err := uf.header.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read upload %s", domain.ErrInvalidServiceParameters, uf.header.Filename)
	}
	defer f.Close()
	return h.svc.AddWav(c.Request.Context(), auth.Identity(c), c.Param("name"), filename, f)
}

func (h *Handler) removeWav(c *gin.Context) {
	filename := c.Query("filename")
	if filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "filename is required"})
		return
	}
	if err := h.svc.RemoveWav(c.Request.Context(), auth.Identity(c), c.Param("name"), filename); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) streamWav(c *gin.Context) {
	filename := c.Param("file")
	f, err := h.svc.OpenWav(c.Request.Context(), c.Param("name"), filename)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Type", "audio/x-wav")
	http.ServeContent(c.Writer, c.Request, filename, fi.ModTime(), f)
}
