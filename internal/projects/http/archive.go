package http

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/auth"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/domain"
)

// lazyZipWriter sets the download headers on the first write, so a failure
// before any byte is produced can still be reported as JSON.
type lazyZipWriter struct {
	c       *gin.Context
	name    string
	started bool
}

func (w *lazyZipWriter) Write(p []byte) (int, error) {
	if !w.started {
		w.started = true
		w.c.Header("Content-Type", "application/zip")
		w.c.Header("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(w.name, `"`, "")+`.zip"`)
		w.c.Status(http.StatusOK)
	}
	return w.c.Writer.Write(p)
}

func (h *Handler) archive(c *gin.Context) {
	name := c.Param("name")
	w := &lazyZipWriter{c: c, name: name}
	err := h.svc.ArchiveProject(c.Request.Context(), auth.Identity(c), name, w)
	if err == nil {
		if !w.started {
			c.Status(http.StatusOK)
		}
		return
	}
	if w.started {
		// Headers are out; all we can do is cut the stream short.
		h.log.Error("archive interrupted", zap.String("project", name), zap.Error(err))
		_ = c.Error(err)
		c.Abort()
		return
	}
	h.fail(c, err)
}

// importArchive installs every archive in the multipart body. A ?name=
// applies to all of them; otherwise each is named after its file. Archives
// before a failing one stay imported.
func (h *Handler) importArchive(c *gin.Context) {
	files, ok := h.uploadedFiles(c, "archive")
	if !ok {
		return
	}

	query := strings.TrimSpace(c.Query("name"))
	results := make([]uploadResult, 0, len(files))
	for _, uf := range files {
		suggested := query
		if suggested == "" {
			base := filepath.Base(uf.header.Filename)
			suggested = strings.TrimSuffix(base, filepath.Ext(base))
		}

		name, err := h.importOne(c, uf, suggested)
		if err != nil {
			h.fail(c, err)
			return
		}
		results = append(results, uploadResult{FieldName: uf.field, Name: uf.header.Filename, ProjectName: name})
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "name": results[0].ProjectName, "files": results})
}

func (h *Handler) importOne(c *gin.Context, uf uploadedFile, suggested string) (string, error) {
	f, err := uf.header.Open()
	if err != nil {
		return "", fmt.Errorf("%w: cannot read upload %s", domain.ErrInvalidServiceParameters, uf.header.Filename)
	}
	defer f.Close()
	return h.svc.ImportProjectFromArchive(c.Request.Context(), auth.Identity(c), f, suggested)
}
